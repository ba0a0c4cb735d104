package filesystem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventOp is a FilesystemEvent's operation kind, per spec.md §3. Write,
// Rename, and Chmod are part of the schema but are never emitted by this
// polling implementation — see spec.md §9 design note (i).
type EventOp string

const (
	EventCreate EventOp = "Create"
	EventWrite  EventOp = "Write"
	EventRemove EventOp = "Remove"
	EventRename EventOp = "Rename"
	EventChmod  EventOp = "Chmod"
)

// Event is one filesystem change observed by a Watcher.
type Event struct {
	Path      string
	Name      string
	Operation EventOp
	Timestamp int64 // nanoseconds, the poll moment
	IsDir     bool
}

// Listener receives Events. Implementations must return promptly; the
// Watcher isolates slow/erroring listeners by invoking each in its own
// goroutine (spec.md §4.F "Delivery").
type Listener func(Event)

const watchPollPeriod = 1 * time.Second

// Watcher polls a directory inside the sandbox, diffing successive
// listings to synthesize Create/Remove events for its listeners, per
// spec.md §4.F.
type Watcher struct {
	m    *Manager
	path string

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	running   bool
	cancel    context.CancelFunc
	snapshot  map[string]bool // name -> isDir
}

// NewWatcher constructs (but does not start) a Watcher bound to path.
func (m *Manager) NewWatcher(path string) *Watcher {
	return &Watcher{m: m, path: path, listeners: map[int]Listener{}}
}

// AddEventListener registers cb and returns an unsubscribe function, per
// spec.md §4.F "add_event_listener(cb) → unsubscribe()".
func (w *Watcher) AddEventListener(cb Listener) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = cb
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// Start records an initial snapshot and begins the 1-second poll loop.
// Idempotent.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	snap, err := w.list(ctx)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.snapshot = snap
	pollCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	go w.loop(pollCtx)
	return nil
}

// Stop cancels the poll task and clears all listeners. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
	w.listeners = map[int]Listener{}
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(watchPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	current, err := w.list(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Watcher.poll", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	previous := w.snapshot
	w.snapshot = current
	w.mu.Unlock()

	now := time.Now().UnixNano()
	var events []Event
	for name, isDir := range current {
		if _, ok := previous[name]; !ok {
			events = append(events, Event{Path: w.path, Name: name, Operation: EventCreate, Timestamp: now, IsDir: isDir})
		}
	}
	for name, isDir := range previous {
		if _, ok := current[name]; !ok {
			events = append(events, Event{Path: w.path, Name: name, Operation: EventRemove, Timestamp: now, IsDir: isDir})
		}
	}
	for _, ev := range events {
		w.deliver(ctx, ev)
	}
}

// deliver fans the event out to every listener concurrently, logging and
// swallowing per-listener panics/errors so one bad listener never affects
// another, per spec.md §4.F "Delivery".
func (w *Watcher) deliver(ctx context.Context, ev Event) {
	w.mu.Lock()
	listeners := make([]Listener, 0, len(w.listeners))
	for _, cb := range w.listeners {
		listeners = append(listeners, cb)
	}
	w.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, cb := range listeners {
		cb := cb
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("listener panic: %v", r)
				}
			}()
			cb(ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Watcher listener error", "path", w.path, "error", err)
	}
}

func (w *Watcher) list(ctx context.Context) (map[string]bool, error) {
	exitCode, out, err := w.m.exec(ctx, "ls -la "+quote(w.m.resolve(w.path)))
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("watcher: ls -la %s: %s", w.path, strings.TrimSpace(out))
	}
	snap := map[string]bool{}
	for _, fi := range parseLsLa(out) {
		snap[fi.Name] = fi.IsDir
	}
	return snap, nil
}
