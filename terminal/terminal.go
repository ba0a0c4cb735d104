// Package terminal implements the Terminal Manager (spec.md §4.G): an
// interactive PTY-like session backed by rendezvous files inside the
// container, run as a backgrounded, pollable command loop so the caller
// need not hold an exec stream open for the life of the session.
package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/idgen"
)

// Sandbox is the subset of firebox.Sandbox the Terminal Manager needs.
type Sandbox interface {
	Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error)
}

const readPollPeriod = 100 * time.Millisecond

// OnData is invoked with every new output chunk the reader task observes.
type OnData func(chunk string)

// Terminal is one interactive session. Its state lives in two rendezvous
// files inside the container; resize is recorded locally only (spec.md §9
// design note iii: the default backend has no real PTY to re-ioctl).
type Terminal struct {
	ID         string
	InputFile  string
	OutputFile string

	mu       sync.Mutex
	cols     int
	rows     int
	killed   bool
	cancel   context.CancelFunc
	onData   OnData
	bufBytes []byte
}

// Manager starts and tracks Terminals for one Sandbox.
type Manager struct {
	sb Sandbox

	mu        sync.Mutex
	terminals map[string]*Terminal
}

// NewManager returns a Terminal Manager bound to sb.
func NewManager(sb Sandbox) *Manager {
	return &Manager{sb: sb, terminals: map[string]*Terminal{}}
}

// Start allocates a terminal ID if none is given, backgrounds the
// rendezvous-file shell loop inside the container, and begins the reader
// task, per spec.md §4.G.
func (m *Manager) Start(ctx context.Context, onData OnData, cols, rows int, cwd, cmd string, env map[string]string, terminalID string) (*Terminal, error) {
	if terminalID == "" {
		terminalID = idgen.NewTerminalID()
	}

	t := &Terminal{
		ID:         terminalID,
		InputFile:  fmt.Sprintf("/tmp/terminal_%s_input", terminalID),
		OutputFile: fmt.Sprintf("/tmp/terminal_%s_output", terminalID),
		cols:       cols,
		rows:       rows,
		onData:     onData,
	}

	loop := buildShellLoopScript(t, cwd, cmd, env)
	exitCode, out, err := m.sb.Exec(ctx, loop, 0)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindProcessFailed, "Manager.Start", err)
	}
	if exitCode != 0 {
		return nil, ferrors.New(ferrors.KindProcessFailed, "Manager.Start", out, nil)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	m.mu.Lock()
	m.terminals[terminalID] = t
	m.mu.Unlock()

	if onData != nil {
		go m.readLoop(readCtx, t)
	}
	return t, nil
}

// buildShellLoopScript composes the backgrounded shell loop from spec.md
// §4.G step 2: every ~100ms, check for input, pipe it through bash -c,
// truncate the input file, append combined output.
func buildShellLoopScript(t *Terminal, cwd, cmd string, env map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "touch %s %s; ", quote(t.InputFile), quote(t.OutputFile))
	for k, v := range env {
		fmt.Fprintf(&b, "export %s=%s; ", k, quote(v))
	}
	if cwd != "" {
		fmt.Fprintf(&b, "cd %s; ", quote(cwd))
	}
	if cmd == "" {
		cmd = "bash"
	}
	fmt.Fprintf(&b,
		"( while pkill -0 -f %s >/dev/null 2>&1 || true; do "+
			"if [ -s %s ]; then "+
			"bash -c \"$(cat %s)\" >> %s 2>&1; "+
			"> %s; "+
			"fi; sleep 0.1; done ) & disown",
		"terminal_"+t.ID,
		quote(t.InputFile), quote(t.InputFile), quote(t.OutputFile), quote(t.InputFile))
	return b.String()
}

// readLoop periodically tails the output file and invokes onData with
// every new chunk, per spec.md §4.G step 3.
func (m *Manager) readLoop(ctx context.Context, t *Terminal) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(readPollPeriod):
		}
		exitCode, out, err := m.sb.Exec(ctx, fmt.Sprintf("tail -c +%d %s", offset+1, quote(t.OutputFile)), 5*time.Second)
		if err != nil || exitCode != 0 || out == "" {
			continue
		}
		offset += int64(len(out))
		t.onData(out)
	}
}

// SendData appends text to the terminal's input file. A trailing newline
// triggers execution of the accumulated line, per spec.md §4.G.
func (m *Manager) SendData(ctx context.Context, t *Terminal, text string) error {
	cmd := fmt.Sprintf("printf %%s %s >> %s", quote(text), quote(t.InputFile))
	exitCode, out, err := m.sb.Exec(ctx, cmd, 5*time.Second)
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "Manager.SendData", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindIO, "Manager.SendData", out, nil)
	}
	return nil
}

// Resize records cols/rows. The default shell-loop backend has no real PTY
// to re-ioctl, so this is a recording-only no-op, per spec.md §9 design
// note (iii) — it MUST still succeed.
func (m *Manager) Resize(t *Terminal, cols, rows int) error {
	t.mu.Lock()
	t.cols, t.rows = cols, rows
	t.mu.Unlock()
	return nil
}

// Kill runs `pkill -f terminal_<id>` then stops the reader task.
func (m *Manager) Kill(ctx context.Context, t *Terminal) error {
	_, _, _ = m.sb.Exec(ctx, fmt.Sprintf("pkill -f %s 2>/dev/null", quote("terminal_"+t.ID)), 5*time.Second)

	t.mu.Lock()
	t.killed = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	delete(m.terminals, t.ID)
	m.mu.Unlock()

	slog.InfoContext(ctx, "Manager.Kill", "terminal", t.ID)
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
