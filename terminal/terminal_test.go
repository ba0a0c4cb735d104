package terminal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSandbox struct {
	mu       sync.Mutex
	execFunc func(cmd string) (int, string, error)
}

func (f *fakeSandbox) Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execFunc(cmd)
}

func TestManager_StartBackgroundsShellLoop(t *testing.T) {
	var startCmd string
	sb := &fakeSandbox{
		execFunc: func(cmd string) (int, string, error) {
			startCmd = cmd
			return 0, "", nil
		},
	}
	m := NewManager(sb)
	term, err := m.Start(context.Background(), nil, 80, 24, "/sandbox", "", nil, "")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if term.ID == "" {
		t.Error("Start did not assign a terminal ID")
	}
	if !strings.Contains(startCmd, "disown") {
		t.Errorf("start script = %q, want backgrounded loop", startCmd)
	}
}

func TestManager_SendData(t *testing.T) {
	var gotCmd string
	sb := &fakeSandbox{
		execFunc: func(cmd string) (int, string, error) {
			gotCmd = cmd
			return 0, "", nil
		},
	}
	m := NewManager(sb)
	term := &Terminal{ID: "t1", InputFile: "/tmp/terminal_t1_input"}
	if err := m.SendData(context.Background(), term, "ls\n"); err != nil {
		t.Fatalf("SendData returned error: %v", err)
	}
	if !strings.Contains(gotCmd, term.InputFile) {
		t.Errorf("SendData command = %q, want it to reference %q", gotCmd, term.InputFile)
	}
}

func TestManager_ResizeIsRecordOnly(t *testing.T) {
	sb := &fakeSandbox{execFunc: func(cmd string) (int, string, error) { return 0, "", nil }}
	m := NewManager(sb)
	term := &Terminal{ID: "t1"}
	if err := m.Resize(term, 120, 40); err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}
	term.mu.Lock()
	cols, rows := term.cols, term.rows
	term.mu.Unlock()
	if cols != 120 || rows != 40 {
		t.Errorf("Resize recorded %d x %d, want 120 x 40", cols, rows)
	}
}

func TestManager_KillRemovesTerminal(t *testing.T) {
	sb := &fakeSandbox{execFunc: func(cmd string) (int, string, error) { return 0, "", nil }}
	m := NewManager(sb)
	term, err := m.Start(context.Background(), nil, 80, 24, "/sandbox", "", nil, "fixed-id")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := m.Kill(context.Background(), term); err != nil {
		t.Fatalf("Kill returned error: %v", err)
	}
	m.mu.Lock()
	_, exists := m.terminals[term.ID]
	m.mu.Unlock()
	if exists {
		t.Error("Kill did not remove the terminal from the manager")
	}
}

func TestQuote(t *testing.T) {
	got := quote("it's a test")
	want := `'it'\''s a test'`
	if got != want {
		t.Errorf("quote = %q, want %q", got, want)
	}
}
