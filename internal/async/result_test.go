package async

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResult_ResolveOnce(t *testing.T) {
	r := NewResult()
	if r.Done() {
		t.Fatal("new result is done")
	}

	if !r.Resolve(5, nil) {
		t.Fatal("first Resolve() = false")
	}
	if r.Resolve(9, errors.New("late")) {
		t.Error("second Resolve() = true")
	}

	off, err := r.Wait(context.Background())
	if off != 5 || err != nil {
		t.Errorf("Wait() = (%d, %v), want (5, nil)", off, err)
	}
	if !r.Done() {
		t.Error("Done() = false after Resolve")
	}
}

func TestResult_WaitFromOtherGoroutine(t *testing.T) {
	r := NewResult()
	wantErr := errors.New("boom")

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Resolve(0, wantErr)
	}()

	if _, err := r.Wait(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Wait() error = %v, want %v", err, wantErr)
	}
}

func TestResult_WaitContextCanceled(t *testing.T) {
	r := NewResult()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if r.Done() {
		t.Error("Done() = true after canceled wait")
	}
}

func TestResolved(t *testing.T) {
	r := Resolved(3, nil)
	select {
	case <-r.Ready():
	default:
		t.Fatal("Ready() not closed")
	}
}

func TestResult_WaitResolvedWithCanceledContext(t *testing.T) {
	r := Resolved(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 20; i++ {
		if off, err := r.Wait(ctx); off != 8 || err != nil {
			t.Fatalf("Wait() = (%d, %v), want (8, nil)", off, err)
		}
	}
}
