package main

import (
	"context"
	"fmt"

	"github.com/jiandong01/firebox/rpc"
)

// DaemonCmd starts, stops, or reports the status of the optional RPC
// front end (spec.md §9).
type DaemonCmd struct {
	Action string `arg:"" optional:"" default:"status" enum:"start,stop,status" help:"start, stop, or status (default)"`
}

func (c *DaemonCmd) Run(cctx *Context) error {
	ctx := context.Background()

	switch c.Action {
	case "start":
		reg, cleanup, err := openRegistry(cctx)
		if err != nil {
			return err
		}
		defer cleanup()
		srv := rpc.NewServer(cctx.AppBaseDir, reg)
		return srv.ServeUnix(ctx)
	case "stop":
		srv := rpc.NewServer(cctx.AppBaseDir, nil)
		client := srv.NewClient()
		if err := client.Ping(ctx); err != nil {
			fmt.Println("daemon is not running")
			return nil
		}
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
		fmt.Println("daemon stopped")
		return nil
	default:
		srv := rpc.NewServer(cctx.AppBaseDir, nil)
		client := srv.NewClient()
		if err := client.Ping(ctx); err != nil {
			fmt.Println("daemon is not running")
			return nil
		}
		fmt.Println("daemon is running")
		return nil
	}
}
