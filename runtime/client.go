// Package runtime is the Container Adapter (spec.md §4.A): a thin typed
// wrapper over a Docker-compatible HTTP API. It is the only package that
// talks to the container runtime; every other subsystem reaches the
// runtime through Sandbox's exec/archive primitives.
package runtime

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/jiandong01/firebox/cleanup"
	"github.com/jiandong01/firebox/execpool"
)

// execConcurrency bounds how many exec calls may be in flight against the
// runtime daemon at once, per spec.md §5's worker-pool offload model.
const execConcurrency = 16

// Client is the Container Adapter. Containers/Images/Networks/System are
// service handles scoped to one Client instance, so multiple Clients (e.g.
// one per DOCKER_HOST in tests) can coexist without shared global state.
type Client struct {
	docker *client.Client

	Containers *ContainersService
	Images     *ImagesService
	Networks   *NetworksService
	System     *SystemService
}

// New connects to the runtime at dockerHost (a URL like
// "unix:///var/run/docker.sock"; empty uses the platform default, per
// spec.md §6).
func New(dockerHost string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}
	dc, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime.New: %w", err)
	}

	pool := execpool.New(execConcurrency)

	c := &Client{docker: dc}
	c.Containers = &ContainersService{docker: dc, pool: pool}
	c.Images = &ImagesService{docker: dc}
	c.Networks = &NetworksService{docker: dc}
	c.System = &SystemService{docker: dc}

	cleanup.Global().Register("runtime.Client."+dockerHost, func(context.Context) error {
		return c.Close()
	})
	return c, nil
}

// Close releases the underlying HTTP transport. New registers Close with
// the process-wide cleanup queue, per spec.md §4.A.
func (c *Client) Close() error {
	if c.docker == nil {
		return nil
	}
	return c.docker.Close()
}

// Ping verifies connectivity to the runtime daemon.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}
