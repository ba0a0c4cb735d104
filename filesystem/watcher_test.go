package filesystem

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWatcher_PollDetectsCreateAndRemove(t *testing.T) {
	listings := []string{
		"total 0\n-rw-r--r-- 1 root root 0 Jan 1 00:00 a.txt\n",
		"total 0\n-rw-r--r-- 1 root root 0 Jan 1 00:00 b.txt\n",
	}
	call := 0
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			if !strings.HasPrefix(cmd, "ls -la") {
				t.Fatalf("unexpected command: %s", cmd)
			}
			out := listings[call]
			if call < len(listings)-1 {
				call++
			}
			return 0, out, nil
		},
	}
	m := NewManager(sb, time.Second)
	w := m.NewWatcher("watched")

	var mu sync.Mutex
	var events []Event
	unsub := w.AddEventListener(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer unsub()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer w.Stop()

	w.poll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	var sawCreate, sawRemove bool
	for _, ev := range events {
		switch ev.Operation {
		case EventCreate:
			if ev.Name == "b.txt" {
				sawCreate = true
			}
		case EventRemove:
			if ev.Name == "a.txt" {
				sawRemove = true
			}
		}
	}
	if !sawCreate {
		t.Error("poll did not emit a Create event for the new file")
	}
	if !sawRemove {
		t.Error("poll did not emit a Remove event for the deleted file")
	}
}

func TestWatcher_StartIsIdempotent(t *testing.T) {
	sb := &fakeSandbox{
		cwd: "/sandbox",
		execFunc: func(cmd string) (int, string, error) {
			return 0, "total 0\n", nil
		},
	}
	m := NewManager(sb, time.Second)
	w := m.NewWatcher("watched")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start returned error: %v", err)
	}
	w.Stop()
	w.Stop() // Stop must also be idempotent
}

func TestWatcher_AddEventListenerUnsubscribe(t *testing.T) {
	sb := &fakeSandbox{cwd: "/sandbox", execFunc: func(cmd string) (int, string, error) { return 0, "total 0\n", nil }}
	m := NewManager(sb, time.Second)
	w := m.NewWatcher("watched")

	var called bool
	unsub := w.AddEventListener(func(ev Event) { called = true })
	unsub()

	w.deliver(context.Background(), Event{Name: "x.txt", Operation: EventCreate})
	if called {
		t.Error("listener was invoked after unsubscribing")
	}
}
