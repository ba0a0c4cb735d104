package runtime

import (
	"context"

	"github.com/docker/docker/client"
	"github.com/jiandong01/firebox/ferrors"
)

// SystemService exposes runtime-wide status such as the engine version.
type SystemService struct {
	docker *client.Client
}

// Version reports the runtime daemon's version string.
func (s *SystemService) Version(ctx context.Context) (string, error) {
	v, err := s.docker.ServerVersion(ctx)
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindRuntime, "System.Version", err)
	}
	return v.Version, nil
}

// Info reports daemon-wide resource totals (CPU count and total memory).
func (s *SystemService) Info(ctx context.Context) (ncpu int, memTotal int64, err error) {
	info, err := s.docker.Info(ctx)
	if err != nil {
		return 0, 0, ferrors.Wrap(ferrors.KindRuntime, "System.Info", err)
	}
	return info.NCPU, info.MemTotal, nil
}
