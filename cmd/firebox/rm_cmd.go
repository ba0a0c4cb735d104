package main

import (
	"context"
	"fmt"
)

// RmCmd releases (permanently removes) one or more sandboxes, via a
// sequential loop since the registry's own mutex already serializes the
// bookkeeping a concurrent fan-out would contend on.
type RmCmd struct {
	ID  string `arg:"" optional:"" help:"sandbox ID to release"`
	All bool   `help:"release every sandbox"`
}

func (c *RmCmd) Run(cctx *Context) error {
	ctx := context.Background()
	client, err := rpcClient(cctx)
	if err != nil {
		return err
	}

	ids := []string{}
	if c.All {
		entries, err := client.List(ctx, true)
		if err != nil {
			return err
		}
		for _, e := range entries {
			ids = append(ids, e.SandboxID)
		}
	} else {
		if c.ID == "" {
			return fmt.Errorf("either an ID or --all is required")
		}
		ids = append(ids, c.ID)
	}

	var firstErr error
	for _, id := range ids {
		if err := client.Release(ctx, id); err != nil {
			fmt.Printf("%s: %v\n", id, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Println(id)
	}
	return firstErr
}
