package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/build"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/runtime/rtypes"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ImagesService wraps the subset of the image API the Image Builder and
// Sandbox Core need: build, pull, list, inspect, remove.
type ImagesService struct {
	docker *client.Client
}

// Build streams a tar build context (prepared by the imagebuilder package)
// through the engine's image build endpoint and relays the JSON build log
// as a sequence of BuildEvent, per spec.md §4.B step 3: "stream each line
// of the build log; the final line carrying `aux.ID` is the built image's
// ID."
func (s *ImagesService) Build(ctx context.Context, buildContext io.Reader, tags []string) ([]rtypes.BuildEvent, string, error) {
	slog.InfoContext(ctx, "Images.Build", "tags", tags)
	resp, err := s.docker.ImageBuild(ctx, buildContext, build.ImageBuildOptions{Tags: tags, Remove: true})
	if err != nil {
		return nil, "", ferrors.Wrap(ferrors.KindBuildFailed, "Images.Build", err)
	}
	defer resp.Body.Close()

	var events []rtypes.BuildEvent
	var imageID string
	dec := json.NewDecoder(resp.Body)
	for {
		var line struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
			Aux    struct {
				ID string `json:"ID"`
			} `json:"aux"`
		}
		if err := dec.Decode(&line); err == io.EOF {
			break
		} else if err != nil {
			return events, imageID, ferrors.Wrap(ferrors.KindBuildFailed, "Images.Build", err)
		}
		if line.Error != "" {
			return events, imageID, ferrors.New(ferrors.KindBuildFailed, "Images.Build", line.Error, nil)
		}
		if line.Aux.ID != "" {
			imageID = line.Aux.ID
		}
		events = append(events, rtypes.BuildEvent{Stream: line.Stream, ImageID: line.Aux.ID, Error: line.Error})
	}
	if imageID == "" {
		return events, "", ferrors.New(ferrors.KindBuildFailed, "Images.Build", "build log ended without an image ID", nil)
	}
	return events, imageID, nil
}

// Pull fetches imageRef from its registry, matching spec.md §4.A's
// "pull(image_ref)" primitive. Sandbox creation does not call it, so an
// image missing from the runtime's cache is not pulled automatically.
func (s *ImagesService) Pull(ctx context.Context, imageRef string) error {
	slog.InfoContext(ctx, "Images.Pull", "image", imageRef)
	rc, err := s.docker.ImagePull(ctx, imageRef, imagetypes.PullOptions{})
	if err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Images.Pull", err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	if err != nil {
		return ferrors.Wrap(ferrors.KindRuntime, "Images.Pull", err)
	}
	return nil
}

// List enumerates locally cached images.
func (s *ImagesService) List(ctx context.Context) ([]rtypes.Image, error) {
	imgs, err := s.docker.ImageList(ctx, imagetypes.ListOptions{})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Images.List", err)
	}
	out := make([]rtypes.Image, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, rtypes.Image{
			ID:   img.ID,
			Tags: img.RepoTags,
			Size: img.Size,
		})
	}
	return out, nil
}

// Inspect returns imageRef's OCI image config (entrypoint, cmd, env,
// working dir, exposed ports), decoded into the standard
// github.com/opencontainers/image-spec shape rather than Docker's own
// ImageInspect struct, so the Image Builder can validate a freshly built
// image against the OCI config schema instead of a vendor-specific one.
func (s *ImagesService) Inspect(ctx context.Context, imageRef string) (*ocispec.ImageConfig, error) {
	inspect, err := s.docker.ImageInspect(ctx, imageRef)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ferrors.Wrap(ferrors.KindNotFound, "Images.Inspect", err)
		}
		return nil, ferrors.Wrap(ferrors.KindRuntime, "Images.Inspect", err)
	}
	cfg := &ocispec.ImageConfig{
		Env:        inspect.Config.Env,
		Entrypoint: inspect.Config.Entrypoint,
		Cmd:        inspect.Config.Cmd,
		WorkingDir: inspect.Config.WorkingDir,
		User:       inspect.Config.User,
	}
	if len(inspect.Config.ExposedPorts) > 0 {
		cfg.ExposedPorts = make(map[string]struct{}, len(inspect.Config.ExposedPorts))
		for port := range inspect.Config.ExposedPorts {
			cfg.ExposedPorts[string(port)] = struct{}{}
		}
	}
	return cfg, nil
}

// Remove deletes imageRef from the local cache. Releasing a sandbox does
// not call it, so images built for a sandbox stay cached.
func (s *ImagesService) Remove(ctx context.Context, imageRef string) error {
	_, err := s.docker.ImageRemove(ctx, imageRef, imagetypes.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return ferrors.Wrap(ferrors.KindNotFound, "Images.Remove", err)
		}
		return ferrors.Wrap(ferrors.KindRuntime, "Images.Remove", err)
	}
	return nil
}
