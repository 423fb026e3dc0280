package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "notigate/pkg/logx"
)

func TestGoRunsAndStops(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	var ran atomic.Bool
	s.Go("worker", func(ctx context.Context) error {
		ran.Store(true)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !ran.Load() {
		t.Fatal("goroutine never ran")
	}
	if s.Active() != 0 {
		t.Fatalf("active = %d after stop", s.Active())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))
	s.Go("boom", func(context.Context) error {
		panic("kaput")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if err == nil {
		t.Fatal("panic should surface as supervisor error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true), WithLogger(logx.Nop()))
	s.Go("fails", func(context.Context) error {
		return errors.New("nope")
	})

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after error")
	}
	if s.Err() == nil {
		t.Fatal("first error not recorded")
	}
}

func TestGoRestartRecoversThenStopsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	var runs atomic.Int32
	done := make(chan struct{})
	s.GoRestart("flaky", func(context.Context) error {
		n := runs.Add(1)
		if n < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runs = %d, expected restart until clean exit", runs.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d, want 3", runs.Load())
	}
}

func TestGoRestartGivesUpAfterMax(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	var runs atomic.Int32
	s.GoRestart("doomed", func(context.Context) error {
		runs.Add(1)
		return errors.New("always")
	},
		WithRestartBackoff(time.Millisecond, 2*time.Millisecond),
		WithMaxRestarts(2),
	)

	deadline := time.Now().Add(2 * time.Second)
	for s.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("no error after %d runs", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Fatal("exhausted restarts should record an error")
	}
	if got := runs.Load(); got != 3 { // initial run + 2 restarts
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))
	s.Go("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
	s.Cancel()
}
