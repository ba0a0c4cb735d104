package main

import "context"

// CloseCmd stops a sandbox's container but keeps its registry entry for a
// later reconnect.
type CloseCmd struct {
	ID string `arg:"" help:"sandbox ID"`
}

func (c *CloseCmd) Run(cctx *Context) error {
	client, err := rpcClient(cctx)
	if err != nil {
		return err
	}
	return client.Close(context.Background(), c.ID)
}
