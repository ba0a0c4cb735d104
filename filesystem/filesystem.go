// Package filesystem implements the Filesystem Manager (spec.md §4.E): CRUD
// on paths within the sandbox's CWD, expressed as exec'd shell commands run
// through the sandbox's exec primitive, behind a small interface so tests
// can swap in a fake implementation.
package filesystem

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/idgen"
)

// Sandbox is the subset of firebox.Sandbox the Filesystem Manager needs.
type Sandbox interface {
	Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error)
	CWD() string
}

// FileInfo is one entry from a directory listing, per spec.md §4.E list().
type FileInfo struct {
	Name  string
	IsDir bool
}

// Manager implements every operation in spec.md §4.E's table.
type Manager struct {
	sb      Sandbox
	timeout time.Duration
}

// NewManager returns a Filesystem Manager bound to sb. timeout bounds every
// individual exec call it issues.
func NewManager(sb Sandbox, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{sb: sb, timeout: timeout}
}

func (m *Manager) resolve(path string) string {
	return idgen.ResolvePath(m.sb.CWD(), path)
}

func (m *Manager) exec(ctx context.Context, cmd string) (int, string, error) {
	return m.sb.Exec(ctx, cmd, m.timeout)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Read returns path's content as UTF-8 text.
func (m *Manager) Read(ctx context.Context, path string) (string, error) {
	p := m.resolve(path)
	exitCode, out, err := m.exec(ctx, "cat "+quote(p))
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindIO, "Manager.Read", err)
	}
	if exitCode != 0 {
		return "", ferrors.New(ferrors.KindNotFound, "Manager.Read", fmt.Sprintf("path %q not found", path), nil)
	}
	return out, nil
}

// ReadBytes returns path's content decoded from the container's base64
// representation, per spec.md §4.E read_bytes().
func (m *Manager) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	p := m.resolve(path)
	exitCode, out, err := m.exec(ctx, "base64 "+quote(p))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, "Manager.ReadBytes", err)
	}
	if exitCode != 0 {
		return nil, ferrors.New(ferrors.KindNotFound, "Manager.ReadBytes", fmt.Sprintf("path %q not found", path), nil)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, "Manager.ReadBytes", err)
	}
	return data, nil
}

// Write ensures path's parent directory exists then writes text to it.
func (m *Manager) Write(ctx context.Context, path, text string) error {
	p := m.resolve(path)
	dir := parentDir(p)
	b64 := base64.StdEncoding.EncodeToString([]byte(text))
	cmd := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s", quote(dir), quote(b64), quote(p))
	exitCode, out, err := m.exec(ctx, cmd)
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.Write", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindIO, "Manager.Write", out, nil)
	}
	return nil
}

// WriteBytes base64-encodes data and writes it to path.
func (m *Manager) WriteBytes(ctx context.Context, path string, data []byte) error {
	p := m.resolve(path)
	dir := parentDir(p)
	b64 := base64.StdEncoding.EncodeToString(data)
	cmd := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s", quote(dir), quote(b64), quote(p))
	exitCode, out, err := m.exec(ctx, cmd)
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.WriteBytes", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindIO, "Manager.WriteBytes", out, nil)
	}
	return nil
}

// Remove deletes path, recursively if it is a directory.
func (m *Manager) Remove(ctx context.Context, path string) error {
	p := m.resolve(path)
	existed, err := m.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !existed {
		return ferrors.New(ferrors.KindNotFound, "Manager.Remove", fmt.Sprintf("path %q not found", path), nil)
	}
	exitCode, out, err := m.exec(ctx, "rm -rf "+quote(p))
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.Remove", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindNotFound, "Manager.Remove", out, nil)
	}
	return nil
}

// MakeDir creates path and any missing parents; idempotent.
func (m *Manager) MakeDir(ctx context.Context, path string) error {
	p := m.resolve(path)
	exitCode, out, err := m.exec(ctx, "mkdir -p "+quote(p))
	if err != nil {
		return ferrors.Wrap(ferrors.KindOS, "Manager.MakeDir", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindOS, "Manager.MakeDir", out, nil)
	}
	return nil
}

// Exists, IsFile, IsDir test path with the matching `test` flag.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) { return m.test(ctx, path, "-e") }
func (m *Manager) IsFile(ctx context.Context, path string) (bool, error) { return m.test(ctx, path, "-f") }
func (m *Manager) IsDir(ctx context.Context, path string) (bool, error)  { return m.test(ctx, path, "-d") }

func (m *Manager) test(ctx context.Context, path, flag string) (bool, error) {
	p := m.resolve(path)
	exitCode, _, err := m.exec(ctx, fmt.Sprintf("test %s %s", flag, quote(p)))
	if err != nil {
		return false, ferrors.Wrap(ferrors.KindIO, "Manager.test", err)
	}
	return exitCode == 0, nil
}

// List returns every entry in path (excluding "." and "..").
func (m *Manager) List(ctx context.Context, path string) ([]FileInfo, error) {
	p := m.resolve(path)
	exitCode, out, err := m.exec(ctx, "ls -la "+quote(p))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, "Manager.List", err)
	}
	if exitCode != 0 {
		return nil, ferrors.New(ferrors.KindNotFound, "Manager.List", fmt.Sprintf("path %q not found", path), nil)
	}
	return parseLsLa(out), nil
}

// parseLsLa turns `ls -la` output into FileInfo entries, skipping the
// leading "total N" line and "."/"..".
func parseLsLa(out string) []FileInfo {
	var entries []FileInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		name := strings.Join(fields[8:], " ")
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, FileInfo{Name: name, IsDir: fields[0][0] == 'd'})
	}
	return entries
}

// GetSize returns path's total size in bytes via `du -sb`.
func (m *Manager) GetSize(ctx context.Context, path string) (int64, error) {
	p := m.resolve(path)
	exitCode, out, err := m.exec(ctx, fmt.Sprintf("du -sb %s | cut -f1", quote(p)))
	if err != nil {
		return 0, ferrors.Wrap(ferrors.KindIO, "Manager.GetSize", err)
	}
	if exitCode != 0 {
		return 0, ferrors.New(ferrors.KindNotFound, "Manager.GetSize", fmt.Sprintf("path %q not found", path), nil)
	}
	size, convErr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if convErr != nil {
		return 0, ferrors.Wrap(ferrors.KindIO, "Manager.GetSize", convErr)
	}
	return size, nil
}

// WatchDir constructs (but does not start) a Watcher bound to path, per
// spec.md §4.E watch_dir().
func (m *Manager) WatchDir(path string) *Watcher {
	return m.NewWatcher(path)
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return "/"
}
