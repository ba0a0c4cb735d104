package main

import (
	"context"
	"fmt"
	"time"
)

// ExecCmd runs a single command inside an already-open sandbox and prints
// its combined output and exit code.
type ExecCmd struct {
	ID      string `arg:"" help:"sandbox ID"`
	Command string `arg:"" passthrough:"" help:"command to run"`
	Timeout int    `default:"60" help:"exec timeout, seconds"`
}

func (c *ExecCmd) Run(cctx *Context) error {
	ctx := context.Background()

	reg, cleanup, err := openRegistry(cctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sb := reg.Get(c.ID)
	if sb == nil {
		return fmt.Errorf("sandbox %s is not open", c.ID)
	}

	exitCode, out, err := sb.Exec(ctx, c.Command, time.Duration(c.Timeout)*time.Second)
	if err != nil {
		return err
	}
	fmt.Print(out)
	if exitCode != 0 {
		return fmt.Errorf("command exited with code %d", exitCode)
	}
	return nil
}
