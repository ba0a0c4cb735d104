package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jiandong01/firebox/portscanner"
)

// PortsCmd runs one port-scan pass against an open sandbox and prints the
// listening sockets found, per spec.md §4.H.
type PortsCmd struct {
	ID string `arg:"" help:"sandbox ID"`
}

func (c *PortsCmd) Run(cctx *Context) error {
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

	scanner := portscanner.New(sb)
	ports, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "IP\tPORT\tSTATE")
	for _, p := range ports {
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.IP, p.Port, p.State)
	}
	return w.Flush()
}
