package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jiandong01/firebox/ferrors"
)

// Status is a Process's lifecycle phase, per spec.md §3.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusKilled   Status = "KILLED"
)

// Callbacks are invoked as the process produces output and terminates. Each
// may be nil. The manager always invokes them from the streaming task's own
// goroutine so a slow callback never blocks the sandbox's shared exec
// endpoint (spec.md §5 "never blocking the scheduler on a sync callback").
type Callbacks struct {
	OnStdout func(Message)
	OnStderr func(Message)
	OnExit   func(exitCode int)
}

// Process is a single backgrounded shell command. Exactly one rendezvous
// pair (output file, exit-code file) identifies it inside the container;
// those paths are the source of truth, not any in-memory OS handle,
// per spec.md §9 "Rendezvous via files".
type Process struct {
	ID      string
	Command string
	Env     map[string]string
	WorkDir string

	OutputFile   string
	ExitCodeFile string
	InputFile    string

	mu       sync.Mutex
	status   Status
	pid      int
	exitCode int
	output   Output
	done     chan struct{}
	cb       Callbacks
}

func newProcess(id, cmd, workdir string, env map[string]string, cb Callbacks) *Process {
	return &Process{
		ID:           id,
		Command:      cmd,
		Env:          env,
		WorkDir:      workdir,
		OutputFile:   fmt.Sprintf("/tmp/%s_output", id),
		ExitCodeFile: fmt.Sprintf("/tmp/%s_exit_code", id),
		InputFile:    fmt.Sprintf("/tmp/%s_input", id),
		status:       StatusNew,
		exitCode:     -1,
		done:         make(chan struct{}),
		cb:           cb,
	}
}

// Status returns the process's current lifecycle phase.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// PID returns the OS PID captured at start, or 0 if not yet known.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Output returns the live ProcessOutput aggregator; safe to read while the
// process is still running.
func (p *Process) Output() *Output { return &p.output }

func (p *Process) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *Process) setPID(pid int) {
	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()
}

// Result is what Wait returns: the full captured stdout and the process's
// exit code, per spec.md §3 "the aggregate result {stdout, exit_code}".
type Result struct {
	Stdout   string
	ExitCode int
}

// Wait blocks until the process reaches FINISHED or KILLED, or ctx/timeout
// expires first (in which case it returns a Timeout error without
// cancelling the process itself, per spec.md §4.D "Wait").
func (p *Process) Wait(ctx context.Context, timeout time.Duration) (*Result, error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return &Result{Stdout: p.output.Stdout(), ExitCode: p.exitCode}, nil
	case <-waitCtx.Done():
		return nil, ferrors.New(ferrors.KindTimeout, "Process.Wait", fmt.Sprintf("process %s: wait timed out", p.ID), waitCtx.Err())
	}
}
