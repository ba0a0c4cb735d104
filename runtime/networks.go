package runtime

import (
	"context"
	"log/slog"

	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/runtime/rtypes"
)

// NetworksService covers network lifecycle: Create/Connect/Disconnect/
// Remove/Inspect. The
// Sandbox Core uses this to give each sandbox its own bridge network
// instead of the runtime's default bridge, isolating sandboxes from each
// other per spec.md's isolation requirement.
type NetworksService struct {
	docker *client.Client
}

// Create makes a new bridge network named name.
func (s *NetworksService) Create(ctx context.Context, name string) (string, error) {
	slog.InfoContext(ctx, "Networks.Create", "name", name)
	resp, err := s.docker.NetworkCreate(ctx, name, networktypes.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindRuntime, "Networks.Create", err)
	}
	return resp.ID, nil
}

// Connect attaches containerID to the named network.
func (s *NetworksService) Connect(ctx context.Context, networkID, containerID string) error {
	if err := s.docker.NetworkConnect(ctx, networkID, containerID, nil); err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Networks.Connect", err)
	}
	return nil
}

// Disconnect detaches containerID from the named network.
func (s *NetworksService) Disconnect(ctx context.Context, networkID, containerID string) error {
	if err := s.docker.NetworkDisconnect(ctx, networkID, containerID, true); err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Networks.Disconnect", err)
	}
	return nil
}

// Remove deletes a network, called during sandbox release once its
// container has been removed.
func (s *NetworksService) Remove(ctx context.Context, networkID string) error {
	if err := s.docker.NetworkRemove(ctx, networkID); err != nil {
		if client.IsErrNotFound(err) {
			return ferrors.Wrap(ferrors.KindNotFound, "Networks.Remove", err)
		}
		return ferrors.Wrap(ferrors.KindRuntime, "Networks.Remove", err)
	}
	return nil
}

// Inspect returns a network's summary record.
func (s *NetworksService) Inspect(ctx context.Context, networkID string) (*rtypes.Network, error) {
	info, err := s.docker.NetworkInspect(ctx, networkID, networktypes.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ferrors.Wrap(ferrors.KindNotFound, "Networks.Inspect", err)
		}
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Networks.Inspect", err)
	}
	return &rtypes.Network{ID: info.ID, Name: info.Name, Driver: info.Driver}, nil
}
