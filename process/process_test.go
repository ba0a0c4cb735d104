package process

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

func TestManager_StartCapturesPID(t *testing.T) {
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			if strings.HasPrefix(cmd, "test -d") {
				return 0, "", nil
			}
			return 0, "4321", nil
		},
	}
	m := NewManager(sb)
	p, err := m.Start(context.Background(), "echo hi", "", nil, Callbacks{})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if p.PID() != 4321 {
		t.Errorf("PID = %d, want 4321", p.PID())
	}
	if p.Status() != StatusRunning {
		t.Errorf("Status = %s, want RUNNING", p.Status())
	}
}

func TestManager_StartMissingCwd(t *testing.T) {
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			if strings.HasPrefix(cmd, "test -d") {
				return 1, "", nil
			}
			t.Fatalf("unexpected command after missing cwd: %s", cmd)
			return 0, "", nil
		},
	}
	m := NewManager(sb)
	_, err := m.Start(context.Background(), "echo hi", "/does/not/exist", nil, Callbacks{})
	if !errors.Is(err, ferrors.ErrCwdMissing) {
		t.Errorf("Start error = %v, want ErrCwdMissing", err)
	}
}

func TestBuildStartScript(t *testing.T) {
	p := newProcess("p1", "echo hi", "/sandbox", map[string]string{"FOO": "bar"}, Callbacks{})
	script := buildStartScript(p, map[string]string{"FOO": "bar"}, "/sandbox", "echo hi")
	if !strings.Contains(script, "export FOO='bar';") {
		t.Errorf("script missing env export: %s", script)
	}
	if !strings.Contains(script, "cd '/sandbox'") {
		t.Errorf("script missing cd: %s", script)
	}
	if !strings.Contains(script, p.OutputFile) || !strings.Contains(script, p.ExitCodeFile) {
		t.Errorf("script missing rendezvous files: %s", script)
	}
}

func TestShellQuote(t *testing.T) {
	got := shellQuote("it's a test")
	want := `'it'\''s a test'`
	if got != want {
		t.Errorf("shellQuote = %q, want %q", got, want)
	}
}

func TestProcess_WaitTimesOut(t *testing.T) {
	p := newProcess("p1", "sleep 100", "/sandbox", nil, Callbacks{})
	_, err := p.Wait(context.Background(), 10*time.Millisecond)
	if err == nil {
		t.Fatal("Wait returned nil error, want timeout")
	}
}

func TestProcess_WaitReturnsResultOnFinish(t *testing.T) {
	p := newProcess("p1", "echo hi", "/sandbox", nil, Callbacks{})
	p.output.Append(Message{Line: "hi", Timestamp: 1})
	p.mu.Lock()
	p.exitCode = 0
	p.status = StatusFinished
	p.mu.Unlock()
	close(p.done)

	res, err := p.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if res.Stdout != "hi" || res.ExitCode != 0 {
		t.Errorf("Wait result = %+v", res)
	}
}

func TestOutput_AppendOrdersByTimestamp(t *testing.T) {
	var o Output
	o.Append(Message{Line: "second", Timestamp: 2})
	o.Append(Message{Line: "first", Timestamp: 1})
	o.Append(Message{Line: "third", Timestamp: 3, Error: true})

	if got := o.Stdout(); got != "first\nsecond" {
		t.Errorf("Stdout() = %q, want %q", got, "first\nsecond")
	}
	msgs := o.Messages()
	if len(msgs) != 3 || msgs[0].Line != "first" || msgs[1].Line != "second" {
		t.Errorf("Messages() = %+v, want ordered by timestamp", msgs)
	}
	if !o.HadError() {
		t.Error("HadError() = false, want true")
	}
	if o.Stderr() != "third" {
		t.Errorf("Stderr() = %q, want %q", o.Stderr(), "third")
	}
}
