// Package imagebuilder implements the Image Builder (spec.md §4.B): packs a
// Dockerfile body plus optional extra files into a tar stream, submits it
// to the runtime's build endpoint, and extracts the resulting image ID
// from the streamed JSON build log. Uses go-containerregistry for
// reference validation and klauspost/compress for the tar's gzip layer,
// wired against the Container Adapter's runtime.ImagesService.Build.
package imagebuilder

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/runtime"
	"github.com/klauspost/compress/gzip"
	digest "github.com/opencontainers/go-digest"
)

// Builder submits Dockerfile build contexts to a runtime.Client's image
// endpoint. It satisfies firebox.ImageBuilder.
type Builder struct {
	rt *runtime.Client
}

// New wraps rt's Images service as an Image Builder.
func New(rt *runtime.Client) *Builder {
	return &Builder{rt: rt}
}

// Build implements spec.md §4.B's four steps: pack a single-file tar
// context, submit with streaming, parse the JSON log for `stream`/`aux.ID`,
// and fail with BuildFailed if no image ID was ever captured.
func (b *Builder) Build(ctx context.Context, dockerfile string, extraFiles map[string][]byte, tag string, buildArgs map[string]string) (string, error) {
	if tag != "" {
		if _, err := name.ParseReference(tag); err != nil {
			return "", ferrors.New(ferrors.KindBuildFailed, "Builder.Build", fmt.Sprintf("invalid tag %q", tag), err)
		}
	}

	dgst := digest.FromString(dockerfile)
	slog.InfoContext(ctx, "Builder.Build", "tag", tag, "dockerfile_digest", dgst.String())

	buildCtx, err := buildContext(dockerfile, extraFiles)
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindBuildFailed, "Builder.Build", err)
	}

	var tags []string
	if tag != "" {
		tags = []string{tag}
	}
	events, imageID, err := b.rt.Images.Build(ctx, buildCtx, tags)
	for _, ev := range events {
		if ev.Stream != "" {
			slog.DebugContext(ctx, "Builder.Build log", "tag", tag, "line", ev.Stream)
		}
	}
	if err != nil {
		return "", err // already a *ferrors.Error with KindBuildFailed
	}
	if imageID == "" {
		return "", ferrors.New(ferrors.KindBuildFailed, "Builder.Build", "build log ended without an image ID", nil)
	}

	cfg, err := b.rt.Images.Inspect(ctx, imageID)
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindBuildFailed, "Builder.Build", fmt.Errorf("inspecting built image: %w", err))
	}
	slog.InfoContext(ctx, "Builder.Build image config", "tag", tag, "image_id", imageID, "entrypoint", cfg.Entrypoint, "cmd", cfg.Cmd, "workdir", cfg.WorkingDir)

	return imageID, nil
}

// buildContext packs dockerfile as "Dockerfile" plus any extraFiles into a
// gzip'd tar stream, matching spec.md §4.B step 1: "a single-file tar
// stream containing Dockerfile with the correct length field" — generalized
// to allow side files a Dockerfile's COPY/ADD instructions might reference.
func buildContext(dockerfile string, extraFiles map[string][]byte) (io.Reader, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := writeTarFile(tw, "Dockerfile", []byte(dockerfile)); err != nil {
		return nil, err
	}
	for path, content := range extraFiles {
		if err := writeTarFile(tw, path, content); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return &buf, nil
}

func writeTarFile(tw *tar.Writer, path string, content []byte) error {
	hdr := &tar.Header{
		Name: path,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", path, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("writing tar content for %s: %w", path, err)
	}
	return nil
}
