package execpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_SubmitRunsJob(t *testing.T) {
	p := New(2)
	var ran int32
	err := p.Submit(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("job did not run")
	}
}

func TestPool_SubmitPropagatesJobError(t *testing.T) {
	p := New(1)
	wantErr := errors.New("job failed")
	err := p.Submit(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Submit error = %v, want %v", err, wantErr)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				mu.Lock()
				if n > maxInFlight {
					maxInFlight = n
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight > 2 {
		t.Errorf("observed %d concurrent jobs, pool size was 2", maxInFlight)
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := New(1)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Shutdown = %v, want ErrClosed", err)
	}
}

func TestPool_SubmitRespectsContextCancellation(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	done := make(chan struct{})
	go func() {
		p.Submit(context.Background(), func(ctx context.Context) error {
			<-block
			return nil
		})
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit with cancelled ctx = %v, want context.Canceled", err)
	}
	close(block)
	<-done
}
