package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// LsCmd lists sandboxes via the RPC daemon rather than touching the
// registry directly.
type LsCmd struct {
	All bool `help:"include closed sandboxes"`
}

func (c *LsCmd) Run(cctx *Context) error {
	ctx := context.Background()
	client, err := rpcClient(cctx)
	if err != nil {
		return err
	}

	entries, err := client.List(ctx, c.All)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SANDBOX ID\tSTATUS\tCONTAINER ID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.SandboxID, e.Status, e.Metadata["container_id"])
	}
	return w.Flush()
}
