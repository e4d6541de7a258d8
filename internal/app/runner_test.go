package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type funcTask func(ctx context.Context) error

func (f funcTask) Run(ctx context.Context) error { return f(ctx) }

type failureRecorder struct {
	mu       sync.Mutex
	failures []bool
}

func (f *failureRecorder) OnTaskFailure(subtask int, err error, attempt int, willRestart bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, willRestart)
}

func testRunnerConfig(parallelism, maxRestarts int) RunnerConfig {
	return RunnerConfig{
		Parallelism:    parallelism,
		MaxRestarts:    maxRestarts,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

func TestRunner_RestartsUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	factory := func(subtask int) (TaskRunner, error) {
		return funcTask(func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		}), nil
	}

	rec := &failureRecorder{}
	r := NewRunner(testRunnerConfig(1, 5), factory, NewLifecycle(&mockLogger{}, nil), &mockLogger{}, rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	if len(rec.failures) != 2 {
		t.Errorf("failures = %v, want 2", rec.failures)
	}
}

func TestRunner_GivesUpAfterMaxRestarts(t *testing.T) {
	boom := errors.New("boom")
	var attempts atomic.Int32
	factory := func(subtask int) (TaskRunner, error) {
		return funcTask(func(ctx context.Context) error {
			attempts.Add(1)
			return boom
		}), nil
	}

	rec := &failureRecorder{}
	r := NewRunner(testRunnerConfig(1, 2), factory, NewLifecycle(&mockLogger{}, nil), &mockLogger{}, rec)
	err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	if n := len(rec.failures); n != 3 || rec.failures[n-1] {
		t.Errorf("failures = %v, want last without restart", rec.failures)
	}
}

func TestRunner_RunsEverySubtask(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	factory := func(subtask int) (TaskRunner, error) {
		return funcTask(func(ctx context.Context) error {
			mu.Lock()
			seen[subtask] = true
			mu.Unlock()
			return nil
		}), nil
	}

	r := NewRunner(testRunnerConfig(4, 0), factory, NewLifecycle(&mockLogger{}, nil), &mockLogger{}, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 4 {
		t.Errorf("subtasks run = %v, want 4", seen)
	}
}

func TestRunner_Canceled(t *testing.T) {
	factory := func(subtask int) (TaskRunner, error) {
		return funcTask(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := NewLifecycle(&mockLogger{}, nil)
	r := NewRunner(testRunnerConfig(2, 1), factory, l, &mockLogger{}, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	if err := l.Drain(drainCtx); err != nil {
		t.Errorf("workers not released: %v", err)
	}
}

func TestRunner_FactoryError(t *testing.T) {
	factory := func(subtask int) (TaskRunner, error) {
		return nil, errors.New("no source")
	}
	r := NewRunner(testRunnerConfig(1, -1), factory, NewLifecycle(&mockLogger{}, nil), &mockLogger{}, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Error("Run() error = nil")
	}
}
