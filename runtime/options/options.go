// Package options defines the typed request shapes the runtime package's
// Containers/Images/Networks services accept, and the builders that turn
// them into Docker engine API request structs. ProcessOptions,
// ResourceOptions, and ManagementOptions group process, resource, and
// naming/mount/port concerns separately so each can be composed into
// different request shapes (Create vs Exec) without repeating fields.
package options

import (
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
)

// ProcessOptions controls the primary process of a container or exec call.
type ProcessOptions struct {
	Env         map[string]string
	User        string // "name|uid[:gid]"
	WorkDir     string
	Interactive bool
	TTY         bool
}

// ResourceOptions bounds CPU/memory, per spec.md §3 Sandbox configuration.
type ResourceOptions struct {
	CPUs   int    // whole cores; 0 means "validate before create" per §8
	Memory string // human string e.g. "1g"; "" means "validate before create"
}

// ManagementOptions covers naming, mounts, ports, capabilities, and the
// keep-alive default-command behavior from spec.md §4.A.
type ManagementOptions struct {
	Name          string
	Mounts        []mount.Mount
	PublishedPort map[string]string // containerPort -> hostPort, e.g. "8080/tcp":"18080"
	Capabilities  []string          // additional capabilities to add back after dropping ALL
	Labels        map[string]string
	KeepAlive     bool // if true and no Entrypoint/Cmd, default to an infinite no-op command
	Entrypoint    []string
	Cmd           []string
	NetworkName   string
}

// CreateContainer is the full request for Containers.Create.
type CreateContainer struct {
	ProcessOptions
	ResourceOptions
	ManagementOptions
	Image string
}

// ExecContainer is the request for Containers.Exec.
type ExecContainer struct {
	ProcessOptions
	Cmd []string
}

// keepAliveCmd is the default command used when KeepAlive is requested and
// no entrypoint/cmd was given, per spec.md §4.A: "an infinite `tail`-style
// no-op so the container does not exit immediately."
var keepAliveCmd = []string{"tail", "-f", "/dev/null"}

// ToContainerConfig builds the Docker engine API's container.Config for a
// CreateContainer request.
func (c *CreateContainer) ToContainerConfig() *container.Config {
	cfg := &container.Config{
		Image:        c.Image,
		Env:          envSlice(c.Env),
		User:         c.User,
		WorkingDir:   c.WorkDir,
		Tty:          c.TTY,
		OpenStdin:    c.Interactive,
		Entrypoint:   c.Entrypoint,
		Cmd:          c.Cmd,
		Labels:       c.Labels,
		AttachStdout: true,
		AttachStderr: true,
	}
	if len(cfg.Cmd) == 0 && len(cfg.Entrypoint) == 0 && c.KeepAlive {
		cfg.Cmd = keepAliveCmd
	}
	return cfg
}

// ToHostConfig builds the Docker engine API's container.HostConfig,
// applying CPU/memory bounds, bind mounts, published ports, and the
// "no-new-privileges, drop ALL then add requested" security posture from
// spec.md §4.A.
func (c *CreateContainer) ToHostConfig() (*container.HostConfig, error) {
	if c.CPUs == 0 {
		return nil, fmt.Errorf("cpu quota must be > 0")
	}
	if c.Memory == "" {
		return nil, fmt.Errorf("memory limit must be set")
	}
	memBytes, err := ParseMemory(c.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid memory limit %q: %w", c.Memory, err)
	}

	hc := &container.HostConfig{
		Mounts: c.Mounts,
		Resources: container.Resources{
			NanoCPUs: int64(c.CPUs) * 1_000_000_000,
			Memory:   memBytes,
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		CapAdd:      c.Capabilities,
	}
	if c.NetworkName != "" {
		hc.NetworkMode = container.NetworkMode(c.NetworkName)
	}
	if len(c.PublishedPort) > 0 {
		hc.PortBindings = toPortMap(c.PublishedPort)
	}
	return hc, nil
}

// ToNetworkingConfig is a convenience for wiring the container into a
// single named network at create time.
func (c *CreateContainer) ToNetworkingConfig() *network.NetworkingConfig {
	if c.NetworkName == "" {
		return nil
	}
	return &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			c.NetworkName: {},
		},
	}
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// BindMount builds a single read-write (or read-only) bind mount, matching
// spec.md §4.C's "always bind <persistent_storage_path>:<cwd>:rw".
func BindMount(source, target string, readOnly bool) mount.Mount {
	return mount.Mount{
		Type:     mount.TypeBind,
		Source:   source,
		Target:   target,
		ReadOnly: readOnly,
	}
}
