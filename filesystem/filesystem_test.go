package filesystem

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jiandong01/firebox/ferrors"
)

type fakeSandbox struct {
	cwd      string
	execFunc func(cmd string) (int, string, error)
}

func (f *fakeSandbox) Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error) {
	return f.execFunc(cmd)
}

func (f *fakeSandbox) CWD() string { return f.cwd }

func TestManager_Read(t *testing.T) {
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			if !strings.HasPrefix(cmd, "cat ") {
				t.Fatalf("unexpected command: %s", cmd)
			}
			return 0, "hello", nil
		},
	}
	m := NewManager(sb, time.Second)
	out, err := m.Read(context.Background(), "a.txt")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if out != "hello" {
		t.Errorf("Read = %q, want %q", out, "hello")
	}
}

func TestManager_ReadNotFound(t *testing.T) {
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			return 1, "No such file or directory", nil
		},
	}
	m := NewManager(sb, time.Second)
	_, err := m.Read(context.Background(), "missing.txt")
	if !errors.Is(err, ferrors.ErrNotFound) {
		t.Errorf("Read error = %v, want ErrNotFound", err)
	}
}

func TestManager_WriteBytesCommand(t *testing.T) {
	var written string
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			written = cmd
			return 0, "", nil
		},
	}
	m := NewManager(sb, time.Second)
	if err := m.WriteBytes(context.Background(), "dir/b.bin", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteBytes returned error: %v", err)
	}
	if !strings.Contains(written, "mkdir -p") || !strings.Contains(written, "base64 -d") {
		t.Errorf("WriteBytes command = %q, want mkdir+base64 pipeline", written)
	}
}

func TestManager_RemoveMissingPath(t *testing.T) {
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			if strings.HasPrefix(cmd, "test -e") {
				return 1, "", nil
			}
			t.Fatalf("unexpected command after failed existence check: %s", cmd)
			return 0, "", nil
		},
	}
	m := NewManager(sb, time.Second)
	err := m.Remove(context.Background(), "gone.txt")
	if !errors.Is(err, ferrors.ErrNotFound) {
		t.Errorf("Remove error = %v, want ErrNotFound", err)
	}
}

func TestParseLsLa(t *testing.T) {
	out := "total 8\n" +
		"drwxr-xr-x 2 root root 4096 Jan  1 00:00 .\n" +
		"drwxr-xr-x 3 root root 4096 Jan  1 00:00 ..\n" +
		"-rw-r--r-- 1 root root    5 Jan  1 00:00 a.txt\n" +
		"drwxr-xr-x 2 root root 4096 Jan  1 00:00 sub\n"
	entries := parseLsLa(out)
	if len(entries) != 2 {
		t.Fatalf("parseLsLa returned %d entries, want 2", len(entries))
	}
	if entries[0].Name != "a.txt" || entries[0].IsDir {
		t.Errorf("entries[0] = %+v, want a.txt file", entries[0])
	}
	if entries[1].Name != "sub" || !entries[1].IsDir {
		t.Errorf("entries[1] = %+v, want sub dir", entries[1])
	}
}

func TestParentDir(t *testing.T) {
	tests := map[string]string{
		"/sandbox/a.txt":     "/sandbox",
		"/sandbox/sub/a.txt": "/sandbox/sub",
		"/a.txt":             "/",
	}
	for in, want := range tests {
		if got := parentDir(in); got != want {
			t.Errorf("parentDir(%q) = %q, want %q", in, got, want)
		}
	}
}
