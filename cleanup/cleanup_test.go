package cleanup

import (
	"context"
	"errors"
	"testing"
)

func TestQueue_RunsReverseInsertionOrder(t *testing.T) {
	q := &Queue{named: map[string]bool{}}
	var order []string
	q.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	q.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})
	q.Register("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("ran %d funcs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestQueue_RegistrationIsIdempotent(t *testing.T) {
	q := &Queue{named: map[string]bool{}}
	calls := 0
	register := func() {
		q.Register("dup", func(ctx context.Context) error {
			calls++
			return nil
		})
	}
	register()
	register()
	register()

	q.Run(context.Background())
	if calls != 1 {
		t.Errorf("cleanup ran %d times, want 1 (idempotent registration)", calls)
	}
}

func TestQueue_RunReturnsFirstErrorButRunsAll(t *testing.T) {
	q := &Queue{named: map[string]bool{}}
	ran := map[string]bool{}
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	q.Register("a", func(ctx context.Context) error {
		ran["a"] = true
		return errA
	})
	q.Register("b", func(ctx context.Context) error {
		ran["b"] = true
		return errB
	})

	err := q.Run(context.Background())
	if !ran["a"] || !ran["b"] {
		t.Error("expected both cleanup funcs to run despite errors")
	}
	if !errors.Is(err, errB) {
		t.Errorf("Run() error = %v, want the first-run (last registered, first executed) func's error %v", err, errB)
	}
}
