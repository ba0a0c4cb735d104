package filesystem

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/jiandong01/firebox/ferrors"
)

// UploadFile reads localPath from the host and writes its content into the
// sandbox at remotePath, creating the remote parent directory first, per
// spec.md §4.E upload_file().
func (m *Manager) UploadFile(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.UploadFile", err)
	}
	if err := m.WriteBytes(ctx, remotePath, data); err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.UploadFile", err)
	}
	return nil
}

// DownloadFile reads remotePath from the sandbox and writes it to localPath
// on the host, per spec.md §4.E download_file().
func (m *Manager) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	p := m.resolve(remotePath)
	exitCode, out, err := m.exec(ctx, "base64 "+quote(p))
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.DownloadFile", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindNotFound, "Manager.DownloadFile", fmt.Sprintf("remote path %q not found", remotePath), nil)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.DownloadFile", err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.DownloadFile", err)
	}
	return nil
}
