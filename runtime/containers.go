package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/jiandong01/firebox/execpool"
	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/runtime/options"
	"github.com/jiandong01/firebox/runtime/rtypes"
)

// ContainersService is the container-lifecycle half of the Container
// Adapter: Create, Start, Stop, Delete/Remove, Exec, Inspect, List, Logs,
// Stats, and archive copy, each a thin typed call onto the Docker engine
// API.
type ContainersService struct {
	docker *client.Client
	pool   *execpool.Pool
}

// Create builds and creates (but does not start) a container from req.
// Matches spec.md §4.A Create: image, env, host config (cpu/mem/mounts/
// ports/security opts), tty, entrypoint, cmd.
func (s *ContainersService) Create(ctx context.Context, req *options.CreateContainer) (string, error) {
	cfg := req.ToContainerConfig()
	hostCfg, err := req.ToHostConfig()
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindOpenFailed, "Containers.Create", err)
	}
	netCfg := req.ToNetworkingConfig()

	slog.InfoContext(ctx, "Containers.Create", "name", req.Name, "image", req.Image)
	resp, err := s.docker.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, req.Name)
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindRuntime, "Containers.Create", err)
	}
	return resp.ID, nil
}

// Start starts a previously created container.
func (s *ContainersService) Start(ctx context.Context, containerID string) error {
	slog.InfoContext(ctx, "Containers.Start", "id", containerID)
	if err := s.docker.ContainerStart(ctx, containerID, containertypes.StartOptions{}); err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Containers.Start", err)
	}
	return nil
}

// Stop stops a running container, leaving it in the runtime for later
// restart (spec.md §4.C close()).
func (s *ContainersService) Stop(ctx context.Context, containerID string) error {
	slog.InfoContext(ctx, "Containers.Stop", "id", containerID)
	if err := s.docker.ContainerStop(ctx, containerID, containertypes.StopOptions{}); err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Containers.Stop", err)
	}
	return nil
}

// Remove removes a container, optionally force-killing it and its volumes,
// matching spec.md §4.A "remove(handle, force=true, with_volumes=true)".
func (s *ContainersService) Remove(ctx context.Context, containerID string, force, withVolumes bool) error {
	slog.InfoContext(ctx, "Containers.Remove", "id", containerID, "force", force)
	err := s.docker.ContainerRemove(ctx, containerID, containertypes.RemoveOptions{
		Force:         force,
		RemoveVolumes: withVolumes,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return ferrors.Wrap(ferrors.KindNotFound, "Containers.Remove", err)
		}
		return ferrors.Wrap(ferrors.KindRuntime, "Containers.Remove", err)
	}
	return nil
}

// Inspect returns the container's current status record.
func (s *ContainersService) Inspect(ctx context.Context, containerID string) (*rtypes.ContainerStatus, error) {
	info, err := s.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ferrors.Wrap(ferrors.KindNotFound, "Containers.Inspect", err)
		}
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Containers.Inspect", err)
	}

	out := &rtypes.ContainerStatus{
		ID:    info.ID,
		Name:  strings.TrimPrefix(info.Name, "/"),
		Image: info.Config.Image,
	}
	if info.State != nil {
		out.State = info.State.Status
		out.Running = info.State.Running
	}
	if info.Config != nil {
		out.Env = info.Config.Env
	}
	for _, m := range info.Mounts {
		out.Mounts = append(out.Mounts, rtypes.Mount{
			Type:        string(m.Type),
			Source:      m.Source,
			Destination: m.Destination,
			ReadOnly:    !m.RW,
		})
	}
	return out, nil
}

// List returns every container (running or not) whose name contains
// namePrefix (the runtime's name filter is a substring match). The Sandbox
// Registry uses it to find an existing container by name when adopting one.
func (s *ContainersService) List(ctx context.Context, namePrefix string) ([]rtypes.ContainerStatus, error) {
	f := filters.NewArgs(filters.Arg("name", namePrefix))
	containers, err := s.docker.ContainerList(ctx, containertypes.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Containers.List", err)
	}

	out := make([]rtypes.ContainerStatus, 0, len(containers))
	for _, c := range containers {
		name := strings.TrimPrefix(firstOrEmpty(c.Names), "/")
		out = append(out, rtypes.ContainerStatus{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			State:   c.State,
			Running: c.State == "running",
		})
	}
	return out, nil
}

func firstOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Exec runs argv inside a running container as a one-shot command and
// returns the merged, right-stripped stdout+stderr and exit code, per
// spec.md §4.A: "The shell invocation MUST be [/bin/bash -c command] when a
// command string is passed".
func (s *ContainersService) Exec(ctx context.Context, containerID string, command string, env []string, user, workdir string) (*rtypes.ExecResult, error) {
	argv := []string{"/bin/bash", "-c", command}

	var result *rtypes.ExecResult
	err := s.pool.Submit(ctx, func(ctx context.Context) error {
		execCfg := containertypes.ExecOptions{
			Cmd:          argv,
			Env:          env,
			User:         user,
			WorkingDir:   workdir,
			AttachStdout: true,
			AttachStderr: true,
		}
		created, err := s.docker.ContainerExecCreate(ctx, containerID, execCfg)
		if err != nil {
			if client.IsErrNotFound(err) {
				return ferrors.Wrap(ferrors.KindNotFound, "Containers.Exec", err)
			}
			return ferrors.Wrap(ferrors.KindRuntime, "Containers.Exec", err)
		}

		attach, err := s.docker.ContainerExecAttach(ctx, created.ID, containertypes.ExecAttachOptions{})
		if err != nil {
			return ferrors.Wrap(ferrors.KindRuntime, "Containers.Exec", err)
		}
		defer attach.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, attach.Reader); err != nil && err != io.EOF {
			return ferrors.Wrap(ferrors.KindRuntime, "Containers.Exec", err)
		}

		inspect, err := s.docker.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return ferrors.Wrap(ferrors.KindRuntime, "Containers.Exec", err)
		}

		result = &rtypes.ExecResult{
			ExitCode: inspect.ExitCode,
			Output:   strings.TrimRight(stripDockerFrames(buf.Bytes()), "\r\n"),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// stripDockerFrames removes the 8-byte multiplexing header Docker prepends
// to each stdout/stderr frame on a non-TTY attach stream. A raw TTY stream
// (one that does not start with such a header) is a no-op passthrough.
func stripDockerFrames(raw []byte) string {
	var out bytes.Buffer
	for len(raw) > 0 {
		if len(raw) < 8 || raw[0] > 2 || raw[1] != 0 || raw[2] != 0 || raw[3] != 0 {
			out.Write(raw)
			break
		}
		// Header bytes: [stream_type, 0, 0, 0, size(4 bytes big-endian)]
		size := int(raw[4])<<24 | int(raw[5])<<16 | int(raw[6])<<8 | int(raw[7])
		raw = raw[8:]
		if size > len(raw) {
			size = len(raw)
		}
		out.Write(raw[:size])
		raw = raw[size:]
	}
	return out.String()
}

// Logs returns the container's own stdout/stderr, independent of any
// Process — grounded on firebox/api/models.py's SandboxLogs (SPEC_FULL.md
// supplemented features).
func (s *ContainersService) Logs(ctx context.Context, containerID string, since string, tail string) (string, error) {
	if tail == "" {
		tail = "all"
	}
	rc, err := s.docker.ContainerLogs(ctx, containerID, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Since:      since,
		Tail:       tail,
	})
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindRuntime, "Containers.Logs", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil && err != io.EOF {
		return "", ferrors.Wrap(ferrors.KindRuntime, "Containers.Logs", err)
	}
	return stripDockerFrames(buf.Bytes()), nil
}

// Stats reports CPU/memory/network counters, per spec.md §4.A (interface
// defaults to eth0).
func (s *ContainersService) Stats(ctx context.Context, containerID string) (*rtypes.Stats, error) {
	resp, err := s.docker.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Containers.Stats", err)
	}
	defer resp.Body.Close()

	var raw containertypes.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Containers.Stats", err)
	}

	st := &rtypes.Stats{
		CPUUsage:    raw.CPUStats.CPUUsage.TotalUsage,
		MemoryUsage: raw.MemoryStats.Usage,
	}
	if net, ok := raw.Networks["eth0"]; ok {
		st.NetRxBytes = net.RxBytes
		st.NetTxBytes = net.TxBytes
	}
	return st, nil
}

// PutArchive uploads a tar stream into the container at destDir. Filesystem
// uploads do not use it; they write through the shell exec primitive.
func (s *ContainersService) PutArchive(ctx context.Context, containerID, destDir string, tarData io.Reader) error {
	if err := s.docker.CopyToContainer(ctx, containerID, destDir, tarData, containertypes.CopyToContainerOptions{}); err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Containers.PutArchive", err)
	}
	return nil
}

// GetArchive downloads path from the container as a tar stream.
func (s *ContainersService) GetArchive(ctx context.Context, containerID, path string) (io.ReadCloser, error) {
	rc, _, err := s.docker.CopyFromContainer(ctx, containerID, path)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ferrors.Wrap(ferrors.KindNotFound, "Containers.GetArchive", err)
		}
		return nil, ferrors.Wrap(ferrors.KindIO, "Containers.GetArchive", err)
	}
	return rc, nil
}
