// Package rtypes holds the typed shapes the runtime package returns to its
// callers: a small, dependency-free struct set decoupled from whichever
// wire format the adapter happens to speak, so callers never see a
// Docker-specific type directly.
package rtypes

import "time"

// ContainerStatus mirrors the fields of spec.md's "status_record" returned
// by Container Adapter inspect.
type ContainerStatus struct {
	ID         string
	Name       string
	Image      string
	State      string // "created", "running", "exited", "removing", ...
	Running    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Mounts     []Mount
	Env        []string
}

// Mount mirrors a single bind mount entry in the container's host config.
type Mount struct {
	Type        string // "bind", "volume", "tmpfs"
	Source      string
	Destination string
	ReadOnly    bool
}

// ExecResult is what Container Adapter Exec returns, per spec.md §4.A:
// "exec(handle, argv, user, workdir) → {exit_code, combined_output}".
type ExecResult struct {
	ExitCode int
	Output   string // merged stdout+stderr, UTF-8, right-stripped
}

// Stats mirrors spec.md §4.A "stats(handle) → {cpu_usage, memory_usage,
// net_rx, net_tx}".
type Stats struct {
	CPUUsage    uint64
	MemoryUsage uint64
	NetRxBytes  uint64
	NetTxBytes  uint64
}

// Image is a single entry from the runtime's image list.
type Image struct {
	ID      string
	Tags    []string
	Size    int64
	Created time.Time
}

// Network mirrors a single network entry.
type Network struct {
	ID     string
	Name   string
	Driver string
}

// BuildEvent is one line of the image builder's streamed JSON build log
// (spec.md §4.B step 3): either a log line, or the final image ID.
type BuildEvent struct {
	Stream  string
	ImageID string
	Error   string
}
