// Package firebox implements the Sandbox Core (spec.md §4.C): an ephemeral,
// isolated code-execution container with a CREATED→RUNNING→CLOSED→RELEASED
// lifecycle. It owns exactly one container and mediates every exec call
// that Process, Filesystem, Terminal, and the Port Scanner make, driving
// the Container Adapter's Create/Start/Exec flow against an arbitrary
// code-execution template.
package firebox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	dockermount "github.com/docker/docker/api/types/mount"
	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/idgen"
	"github.com/jiandong01/firebox/runtime"
	"github.com/jiandong01/firebox/runtime/options"
	"github.com/jiandong01/firebox/runtime/rtypes"
	"github.com/jiandong01/firebox/telemetry"
)

// readyProbeCmd is exec'd repeatedly after start until the container
// accepts commands, per spec.md §4.C "Readiness probe".
const readyProbeCmd = "echo 'Container is ready'"
const readyProbeWant = "Container is ready"

// Template describes what Sandbox.Open should materialize: either a
// pre-built image reference, or Dockerfile text to hand to the Image
// Builder (spec.md GLOSSARY "Template").
type Template struct {
	Image          string // mutually exclusive with Dockerfile
	Dockerfile     string
	BuildContext   map[string][]byte // extra files alongside the Dockerfile, path -> content
	BuildArgs      map[string]string
	CPU            int
	Memory         string
	Env            map[string]string
	ExtraMounts    []MountSpec
	PublishedPorts map[string]string
	CWD            string // defaults to "/sandbox" per spec.md §6
	Capabilities   []string
	Metadata       map[string]string
}

// MountSpec is an additional host bind mount merged with the mandatory
// persistent-storage mount.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ImageBuilder is the subset of the imagebuilder package Sandbox needs,
// expressed as an interface so this package never imports imagebuilder
// directly (imagebuilder instead depends on runtime, same as this package).
type ImageBuilder interface {
	Build(ctx context.Context, dockerfile string, extraFiles map[string][]byte, tag string, buildArgs map[string]string) (string, error)
}

// Sandbox owns one container and the CWD bound into it. Methods are safe
// for concurrent use; state transitions are serialized by mu.
type Sandbox struct {
	ID                    string
	PersistentStoragePath string
	ContainerPrefix       string

	mu          sync.Mutex
	state       State
	containerID string
	networkID   string
	tmpl        Template
	cwd         string

	rt      *runtime.Client
	builder ImageBuilder
}

// New constructs a Sandbox in CREATED state. id should come from
// idgen.NewSandboxID when the caller has no preferred stable ID.
func New(rt *runtime.Client, builder ImageBuilder, id, persistentStoragePath, containerPrefix string, tmpl Template) *Sandbox {
	if tmpl.CWD == "" {
		tmpl.CWD = "/sandbox"
	}
	return &Sandbox{
		ID:                    id,
		PersistentStoragePath: persistentStoragePath,
		ContainerPrefix:       containerPrefix,
		state:                 StateCreated,
		tmpl:                  tmpl,
		cwd:                   tmpl.CWD,
		rt:                    rt,
		builder:               builder,
	}
}

// Adopt reconstructs a Sandbox around a container the Registry already
// knows about (from its closed-map persistence or from a runtime list
// scan), skipping straight to state rather than going through create.
// Used by the registry package, which owns the decision of whether a
// reconnect should adopt an existing container versus Open a fresh one.
func Adopt(rt *runtime.Client, builder ImageBuilder, id, containerID, networkID, persistentStoragePath, containerPrefix string, tmpl Template, state State) *Sandbox {
	if tmpl.CWD == "" {
		tmpl.CWD = "/sandbox"
	}
	return &Sandbox{
		ID:                    id,
		PersistentStoragePath: persistentStoragePath,
		ContainerPrefix:       containerPrefix,
		state:                 state,
		containerID:           containerID,
		networkID:             networkID,
		tmpl:                  tmpl,
		cwd:                   tmpl.CWD,
		rt:                    rt,
		builder:               builder,
	}
}

// State returns the sandbox's current lifecycle phase.
func (sb *Sandbox) State() State {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.state
}

// CWD returns the sandbox's working directory inside the container.
func (sb *Sandbox) CWD() string { return sb.cwd }

// Open acquires or creates the container, starts it, waits for the
// readiness probe, ensures the CWD and /root/commands exist, and
// transitions CREATED→RUNNING. On any failure it cleans up (stop+remove)
// and leaves the sandbox in CREATED, per spec.md §4.C.
func (sb *Sandbox) Open(ctx context.Context, timeout time.Duration) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if err := checkTransition(sb.state, StateRunning); err != nil {
		return err
	}

	if err := os.MkdirAll(sb.PersistentStoragePath, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindOpenFailed, "Sandbox.Open", err)
	}

	if sb.containerID == "" {
		if err := sb.create(ctx); err != nil {
			sb.cleanupFailedOpen(ctx)
			return ferrors.Wrap(ferrors.KindOpenFailed, "Sandbox.Open", err)
		}
	}

	if err := sb.rt.Containers.Start(ctx, sb.containerID); err != nil {
		sb.cleanupFailedOpen(ctx)
		return ferrors.Wrap(ferrors.KindOpenFailed, "Sandbox.Open", err)
	}

	if err := sb.waitReady(ctx, timeout); err != nil {
		sb.cleanupFailedOpen(ctx)
		return err
	}

	if err := sb.postReadyInit(ctx); err != nil {
		sb.cleanupFailedOpen(ctx)
		return ferrors.Wrap(ferrors.KindOpenFailed, "Sandbox.Open", err)
	}

	sb.state = StateRunning
	slog.InfoContext(ctx, "Sandbox.Open", "id", sb.ID, "container", sb.containerID)
	return nil
}

func (sb *Sandbox) create(ctx context.Context) error {
	image := sb.tmpl.Image
	if sb.tmpl.Dockerfile != "" {
		tag := idgen.ContainerName(sb.ContainerPrefix, sb.ID) + ":build"
		imageID, err := sb.builder.Build(ctx, sb.tmpl.Dockerfile, sb.tmpl.BuildContext, tag, sb.tmpl.BuildArgs)
		if err != nil {
			return err
		}
		image = imageID
	}
	if image == "" {
		return fmt.Errorf("sandbox %s: template has neither image nor dockerfile", sb.ID)
	}

	if sb.tmpl.CPU <= 0 {
		return fmt.Errorf("cpu quota must be > 0")
	}
	if sb.tmpl.Memory == "" {
		return fmt.Errorf("memory limit must be set")
	}

	networkID, err := sb.rt.Networks.Create(ctx, idgen.ContainerName(sb.ContainerPrefix, sb.ID)+"-net")
	if err != nil {
		return err
	}
	sb.networkID = networkID

	mounts := sb.effectiveMounts()

	containerID, err := sb.rt.Containers.Create(ctx, &options.CreateContainer{
		Image: image,
		ProcessOptions: options.ProcessOptions{
			Env:         sb.tmpl.Env,
			Interactive: true,
			TTY:         true,
			WorkDir:     sb.cwd,
		},
		ResourceOptions: options.ResourceOptions{
			CPUs:   sb.tmpl.CPU,
			Memory: sb.tmpl.Memory,
		},
		ManagementOptions: options.ManagementOptions{
			Name:          idgen.ContainerName(sb.ContainerPrefix, sb.ID),
			Mounts:        mounts,
			PublishedPort: sb.tmpl.PublishedPorts,
			Capabilities:  sb.tmpl.Capabilities,
			Labels:        sb.tmpl.Metadata,
			KeepAlive:     true,
			NetworkName:   networkID,
		},
	})
	if err != nil {
		return err
	}
	sb.containerID = containerID
	return nil
}

// effectiveMounts always binds PersistentStoragePath:CWD:rw, merging any
// user-supplied extra mounts, per spec.md §4.C "Volume binding".
func (sb *Sandbox) effectiveMounts() []dockermount.Mount {
	mounts := []dockermount.Mount{options.BindMount(sb.PersistentStoragePath, sb.cwd, false)}
	for _, m := range sb.tmpl.ExtraMounts {
		mounts = append(mounts, options.BindMount(m.Source, m.Target, m.ReadOnly))
	}
	return mounts
}

func (sb *Sandbox) waitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return ferrors.New(ferrors.KindTimeout, "Sandbox.Open", "timeout must be > 0", nil)
	}
	deadline := time.Now().Add(timeout)
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Second)
		res, err := sb.rt.Containers.Exec(attemptCtx, sb.containerID, readyProbeCmd, nil, "", "")
		cancel()
		if err == nil && res.ExitCode == 0 && res.Output == readyProbeWant {
			return nil
		}
		if time.Now().After(deadline) {
			return ferrors.New(ferrors.KindTimeout, "Sandbox.Open", "readiness probe did not succeed before timeout", err)
		}
		select {
		case <-ctx.Done():
			return ferrors.Wrap(ferrors.KindTimeout, "Sandbox.Open", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// postReadyInit ensures /root/commands exists and is on PATH, and that the
// CWD exists, per spec.md §4.C.
func (sb *Sandbox) postReadyInit(ctx context.Context) error {
	cmd := fmt.Sprintf("mkdir -p /root/commands %s && echo 'export PATH=\"/root/commands:$PATH\"' >> /root/.bashrc", shellQuote(sb.cwd))
	res, err := sb.rt.Containers.Exec(ctx, sb.containerID, cmd, nil, "", "")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("post-ready init failed: %s", res.Output)
	}
	return nil
}

func (sb *Sandbox) cleanupFailedOpen(ctx context.Context) {
	if sb.containerID != "" {
		_ = sb.rt.Containers.Stop(ctx, sb.containerID)
		_ = sb.rt.Containers.Remove(ctx, sb.containerID, true, true)
		sb.containerID = ""
	}
	if sb.networkID != "" {
		_ = sb.rt.Networks.Remove(ctx, sb.networkID)
		sb.networkID = ""
	}
}

// Close stops the container but keeps it (and the sandbox entry) around
// for a later Reconnect. Illegal from RELEASED.
func (sb *Sandbox) Close(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if err := checkTransition(sb.state, StateClosed); err != nil {
		return err
	}
	if err := sb.rt.Containers.Stop(ctx, sb.containerID); err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Sandbox.Close", err)
	}
	sb.state = StateClosed
	slog.InfoContext(ctx, "Sandbox.Close", "id", sb.ID)
	return nil
}

// Release removes the container (and its private network) and transitions
// to the terminal RELEASED state. Idempotent after the first call.
func (sb *Sandbox) Release(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.state == StateReleased {
		return nil
	}
	if err := checkTransition(sb.state, StateReleased); err != nil {
		return err
	}
	if sb.containerID != "" {
		if err := sb.rt.Containers.Remove(ctx, sb.containerID, true, true); err != nil {
			return ferrors.Wrap(ferrors.KindRuntime, "Sandbox.Release", err)
		}
	}
	if sb.networkID != "" {
		_ = sb.rt.Networks.Remove(ctx, sb.networkID)
	}
	sb.state = StateReleased
	slog.InfoContext(ctx, "Sandbox.Release", "id", sb.ID)
	return nil
}

// Reconnect restarts a CLOSED sandbox's container and transitions back to
// RUNNING, re-running the readiness probe. Per spec.md §4.C, reconnecting
// to an id not in the closed-set but still present in the runtime is the
// Registry's job (it adopts the container before calling this); Reconnect
// itself only requires the sandbox be CLOSED.
func (sb *Sandbox) Reconnect(ctx context.Context, timeout time.Duration) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if err := checkTransition(sb.state, StateRunning); err != nil {
		return err
	}
	if err := sb.rt.Containers.Start(ctx, sb.containerID); err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Sandbox.Reconnect", err)
	}
	if err := sb.waitReady(ctx, timeout); err != nil {
		return err
	}
	sb.state = StateRunning
	slog.InfoContext(ctx, "Sandbox.Reconnect", "id", sb.ID)
	return nil
}

// KeepAlive cooperatively sleeps for seconds, bounded to [0, 3600] per
// spec.md §4.C, to defer external teardown (e.g. an idle-reaper).
func (sb *Sandbox) KeepAlive(ctx context.Context, seconds int) error {
	if seconds < 0 || seconds > 3600 {
		return ferrors.New(ferrors.KindInvalidState, "Sandbox.KeepAlive", "seconds must be within [0, 3600]", nil)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(seconds) * time.Second):
		return nil
	}
}

// Exec is the single primitive all higher subsystems share: run cmd inside
// the container and return its exit code and merged output. Requires
// RUNNING.
func (sb *Sandbox) Exec(ctx context.Context, cmd string, timeout time.Duration) (exitCode int, output string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Sandbox.Exec", sb.ID)
	defer func() { telemetry.EndSpan(span, err) }()

	sb.mu.Lock()
	state := sb.state
	containerID := sb.containerID
	sb.mu.Unlock()

	if state != StateRunning {
		err = ferrors.Wrap(ferrors.KindNotOpen, "Sandbox.Exec", fmt.Errorf("sandbox %s is not open", sb.ID))
		return 0, "", err
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, execErr := sb.rt.Containers.Exec(execCtx, containerID, cmd, nil, "", sb.cwd)
	if execErr != nil {
		if execCtx.Err() != nil {
			err = ferrors.Wrap(ferrors.KindTimeout, "Sandbox.Exec", execCtx.Err())
		} else {
			err = ferrors.Wrap(ferrors.KindProcessFailed, "Sandbox.Exec", execErr)
		}
		return 0, "", err
	}
	return res.ExitCode, res.Output, nil
}

// Logs returns the container's own stdout/stderr, independent of any
// Process, per the supplemented firebox SandboxLogs feature.
func (sb *Sandbox) Logs(ctx context.Context, since, tail string) (string, error) {
	sb.mu.Lock()
	containerID := sb.containerID
	sb.mu.Unlock()
	out, err := sb.rt.Containers.Logs(ctx, containerID, since, tail)
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindRuntime, "Sandbox.Logs", err)
	}
	return out, nil
}

// Inspect returns the container's status record.
func (sb *Sandbox) Inspect(ctx context.Context) (*rtypes.ContainerStatus, error) {
	sb.mu.Lock()
	containerID := sb.containerID
	sb.mu.Unlock()
	return sb.rt.Containers.Inspect(ctx, containerID)
}

// ContainerID exposes the adopted/created container's ID, used by the
// Registry, the RPC server and the CLI for direct adapter calls.
func (sb *Sandbox) ContainerID() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.containerID
}
