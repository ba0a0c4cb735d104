package process

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/idgen"
)

// Sandbox is the subset of firebox.Sandbox the Process Manager needs: the
// shared exec primitive and the default working directory. Expressed as an
// interface so this package never imports the root firebox package,
// matching spec.md §9's "manager holds a non-owning reference to its
// sandbox" without creating an import cycle.
type Sandbox interface {
	Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error)
	CWD() string
}

const (
	streamPollPeriod = 100 * time.Millisecond
	drainGrace       = 1 * time.Second
)

// Manager starts, tracks, and reaps Processes for one Sandbox.
type Manager struct {
	sb Sandbox

	mu        sync.Mutex
	processes map[string]*Process
	lastIDMS  int64
}

// NewManager returns a Process Manager bound to sb.
func NewManager(sb Sandbox) *Manager {
	return &Manager{sb: sb, processes: map[string]*Process{}}
}

// Start launches cmd as a backgrounded shell command, per spec.md §4.D.
func (m *Manager) Start(ctx context.Context, cmd string, workdir string, env map[string]string, cb Callbacks) (*Process, error) {
	if workdir == "" {
		workdir = m.sb.CWD()
	}

	exists, existsErr := m.dirExists(ctx, workdir)
	if existsErr == nil && !exists {
		return nil, ferrors.New(ferrors.KindCwdMissing, "Manager.Start", fmt.Sprintf("cwd %q does not exist", workdir), nil)
	}

	m.mu.Lock()
	nowMS := time.Now().UnixMilli()
	if nowMS <= m.lastIDMS {
		nowMS = m.lastIDMS + 1
	}
	m.lastIDMS = nowMS
	m.mu.Unlock()
	id := idgen.NewProcessID(nowMS)
	p := newProcess(id, cmd, workdir, env, cb)

	script := buildStartScript(p, env, workdir, cmd)
	exitCode, output, err := m.sb.Exec(ctx, script, 0)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindProcessFailed, "Manager.Start", err)
	}
	if exitCode != 0 {
		return nil, ferrors.New(ferrors.KindProcessFailed, "Manager.Start", fmt.Sprintf("could not background command: %s", output), nil)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(output))
	if err == nil {
		p.setPID(pid)
	}
	p.setStatus(StatusRunning)

	m.mu.Lock()
	m.processes[id] = p
	m.mu.Unlock()

	go m.stream(p)
	return p, nil
}

func (m *Manager) dirExists(ctx context.Context, dir string) (bool, error) {
	exitCode, _, err := m.sb.Exec(ctx, "test -d "+shellQuote(dir), 5*time.Second)
	if err != nil {
		return false, err
	}
	return exitCode == 0, nil
}

// buildStartScript composes the shell one-liner from spec.md §4.D step 2:
// export the merged environment, cd into workdir, run the command, write
// $? to the exit code file, with stdout+stderr redirected to the output
// file and the whole group backgrounded. It prints the backgrounded PID.
func buildStartScript(p *Process, env map[string]string, workdir, cmd string) string {
	var b strings.Builder
	for k, v := range env {
		fmt.Fprintf(&b, "export %s=%s; ", k, shellQuote(v))
	}
	fmt.Fprintf(&b, "cd %s && ", shellQuote(workdir))
	fmt.Fprintf(&b, "( (%s) > %s 2>&1; echo $? > %s ) & echo $!",
		cmd, p.OutputFile, p.ExitCodeFile)
	return b.String()
}

// stream is the streaming task from spec.md §4.D: poll the output file for
// growth, synthesize messages, invoke callbacks, and detect completion via
// the exit-code file materializing.
func (m *Manager) stream(p *Process) {
	ctx := context.Background()
	var offset int64
	finishedAt := time.Time{}

	for {
		grew, newOffset, err := m.readGrowth(ctx, p, offset)
		if err != nil {
			slog.ErrorContext(ctx, "process.stream poll error", "process", p.ID, "error", err)
		} else if grew != "" {
			m.dispatch(p, grew)
			offset = newOffset
		}

		finished := m.exitCodeExists(ctx, p)
		if finished && finishedAt.IsZero() {
			finishedAt = time.Now()
		}
		if finished && time.Since(finishedAt) >= drainGrace {
			m.finish(ctx, p)
			return
		}

		select {
		case <-p.done:
			return
		case <-time.After(streamPollPeriod):
		}
	}
}

func (m *Manager) readGrowth(ctx context.Context, p *Process, offset int64) (string, int64, error) {
	exitCode, out, err := m.sb.Exec(ctx, "wc -c < "+shellQuote(p.OutputFile), 5*time.Second)
	if err != nil || exitCode != 0 {
		return "", offset, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil || size <= offset {
		return "", offset, nil
	}
	_, chunk, err := m.sb.Exec(ctx, fmt.Sprintf("tail -c +%d %s", offset+1, shellQuote(p.OutputFile)), 5*time.Second)
	if err != nil {
		return "", offset, err
	}
	return chunk, size, nil
}

func (m *Manager) dispatch(p *Process, chunk string) {
	for _, line := range strings.Split(chunk, "\n") {
		if line == "" {
			continue
		}
		msg := Message{Line: line, Timestamp: time.Now().UnixNano()}
		p.output.Append(msg)
		if p.cb.OnStdout != nil {
			p.cb.OnStdout(msg)
		}
	}
}

func (m *Manager) exitCodeExists(ctx context.Context, p *Process) bool {
	exitCode, _, err := m.sb.Exec(ctx, "test -f "+shellQuote(p.ExitCodeFile), 5*time.Second)
	return err == nil && exitCode == 0
}

func (m *Manager) finish(ctx context.Context, p *Process) {
	_, out, err := m.sb.Exec(ctx, "cat "+shellQuote(p.ExitCodeFile), 5*time.Second)
	code := -1
	if err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(out)); convErr == nil {
			code = n
		}
	}
	p.mu.Lock()
	p.exitCode = code
	if p.status != StatusKilled {
		p.status = StatusFinished
	}
	p.mu.Unlock()
	close(p.done)
	if p.cb.OnExit != nil {
		p.cb.OnExit(code)
	}
}

// Wait delegates to the Process's own Wait, kept on Manager so every
// process operation is reachable through one manager-fronted API.
func (m *Manager) Wait(ctx context.Context, p *Process, timeout time.Duration) (*Result, error) {
	return p.Wait(ctx, timeout)
}

// Kill sends SIGTERM, escalates to SIGKILL after a 5s poll window if the
// process is still alive, and returns successfully even if the process
// ends up a zombie, per spec.md §4.D "Kill": "the contract is 'no longer
// schedulable'".
func (m *Manager) Kill(ctx context.Context, p *Process) error {
	pid := p.PID()
	if pid == 0 {
		return ferrors.New(ferrors.KindProcessFailed, "Manager.Kill", "process has no PID yet", nil)
	}

	_, _, _ = m.sb.Exec(ctx, fmt.Sprintf("kill -TERM %d 2>/dev/null", pid), 5*time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !m.alive(ctx, pid) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if m.alive(ctx, pid) {
		_, _, _ = m.sb.Exec(ctx, fmt.Sprintf("kill -KILL %d 2>/dev/null", pid), 5*time.Second)
	}

	reapDeadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(reapDeadline) {
		if m.zombieOrAbsent(ctx, pid) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	_, _, _ = m.sb.Exec(ctx, fmt.Sprintf("wait %d 2>/dev/null", pid), 2*time.Second)

	p.mu.Lock()
	p.status = StatusKilled
	p.mu.Unlock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}

func (m *Manager) alive(ctx context.Context, pid int) bool {
	exitCode, _, err := m.sb.Exec(ctx, fmt.Sprintf("kill -0 %d 2>/dev/null", pid), 5*time.Second)
	return err == nil && exitCode == 0
}

func (m *Manager) zombieOrAbsent(ctx context.Context, pid int) bool {
	_, out, err := m.sb.Exec(ctx, fmt.Sprintf("ps -o stat= -p %d 2>/dev/null", pid), 5*time.Second)
	if err != nil {
		return true
	}
	state := strings.TrimSpace(out)
	return state == "" || strings.HasPrefix(state, "Z")
}

// SendStdin appends line to the process's input rendezvous file, escaping
// it so embedded single quotes cannot terminate the shell quoting, per
// spec.md §4.D "Send-stdin".
func (m *Manager) SendStdin(ctx context.Context, p *Process, line string) error {
	cmd := fmt.Sprintf("echo %s >> %s", shellQuote(line), shellQuote(p.InputFile))
	exitCode, out, err := m.sb.Exec(ctx, cmd, 5*time.Second)
	if err != nil {
		return ferrors.Wrap(ferrors.KindProcessFailed, "Manager.SendStdin", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindProcessFailed, "Manager.SendStdin", out, nil)
	}
	return nil
}

// RunningProcess is a synthesized handle for a live PID the manager didn't
// itself start, returned by GetByPID, per spec.md §4.D "List processes".
type RunningProcess struct {
	PID     int
	PPID    int
	Command string
}

// List parses `ps -eo pid,ppid,cmd --no-headers` into RunningProcess
// entries.
func (m *Manager) List(ctx context.Context) ([]RunningProcess, error) {
	exitCode, out, err := m.sb.Exec(ctx, "ps -eo pid,ppid,cmd --no-headers", 5*time.Second)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindProcessFailed, "Manager.List", err)
	}
	if exitCode != 0 {
		return nil, ferrors.New(ferrors.KindProcessFailed, "Manager.List", out, nil)
	}
	var procs []RunningProcess
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		cmdStart := strings.Index(line, fields[2])
		procs = append(procs, RunningProcess{PID: pid, PPID: ppid, Command: line[cmdStart:]})
	}
	return procs, nil
}

// GetByPID returns a synthesized RunningProcess handle (without callbacks)
// if pid is still live.
func (m *Manager) GetByPID(ctx context.Context, pid int) (*RunningProcess, error) {
	procs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range procs {
		if p.PID == pid {
			return &p, nil
		}
	}
	return nil, ferrors.New(ferrors.KindNotFound, "Manager.GetByPID", fmt.Sprintf("pid %d not found", pid), nil)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
