// Package cleanup implements the process-wide cleanup queue from spec.md
// §5 ("The global cleanup queue is a singleton; registration is idempotent;
// execution is reverse-insertion order"). The Container Adapter registers
// its own close hook here (spec.md §4.A), and the CLI entrypoint drains the
// queue on shutdown the same way boxer.go's Close tears down its sqlite
// handle.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
)

// Func is a single cleanup action. It receives the shutdown context so it
// can bound how long it waits on anything slow.
type Func func(ctx context.Context) error

// Queue is a LIFO, idempotent-registration list of cleanup actions.
type Queue struct {
	mu       sync.Mutex
	named    map[string]bool
	fns      []Func
	fnLabels []string
}

// global is the process-wide singleton queue referenced by spec.md §5.
var global = &Queue{named: map[string]bool{}}

// Global returns the process-wide cleanup queue.
func Global() *Queue { return global }

// Register adds fn to the queue under name. A second Register call with the
// same name is a no-op, matching "registration is idempotent".
func (q *Queue) Register(name string, fn Func) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.named[name] {
		return
	}
	q.named[name] = true
	q.fns = append(q.fns, fn)
	q.fnLabels = append(q.fnLabels, name)
}

// Run executes every registered action in reverse-insertion order, logging
// (but not stopping on) individual failures, and returns the first error
// encountered, if any.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	fns := make([]Func, len(q.fns))
	labels := make([]string, len(q.fnLabels))
	copy(fns, q.fns)
	copy(labels, q.fnLabels)
	q.mu.Unlock()

	var firstErr error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](ctx); err != nil {
			slog.ErrorContext(ctx, "cleanup.Run", "name", labels[i], "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
