package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/pkg/log"
)

// mockLogger records warnings and drops everything else.
type mockLogger struct {
	mu       sync.Mutex
	warnings []string
}

func (*mockLogger) Debug(string, ...log.Field) {}
func (*mockLogger) Info(string, ...log.Field)  {}
func (*mockLogger) Error(string, ...log.Field) {}

func (m *mockLogger) Warn(msg string, _ ...log.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, msg)
}

func (m *mockLogger) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnings...)
}

type transition struct {
	from, to State
	reason   string
}

type recordingEmitter struct {
	mu  sync.Mutex
	got []transition
}

func (r *recordingEmitter) OnStateChange(previous, current State, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, transition{previous, current, reason})
}

func (r *recordingEmitter) transitions() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.got...)
}

func lifecycleIn(state State) *Lifecycle {
	l := NewLifecycle(&mockLogger{}, nil)
	l.state = state
	return l
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		StateStopped:  "Stopped",
		StateStarting: "Starting",
		StateRunning:  "Running",
		StateStopping: "Stopping",
		StateCrashed:  "Crashed",
		State(-1):     "Unknown",
		State(42):     "Unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestLifecycle_TransitionTo(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		wantErr error
	}{
		{StateStopped, StateStarting, nil},
		{StateStopped, StateRunning, domain.ErrNotRunning},
		{StateStopped, StateStopping, domain.ErrNotRunning},
		{StateStarting, StateRunning, nil},
		{StateStarting, StateStopping, nil},
		{StateStarting, StateCrashed, nil},
		{StateStarting, StateStopped, domain.ErrAlreadyRunning},
		{StateRunning, StateStopping, nil},
		{StateRunning, StateCrashed, nil},
		{StateRunning, StateStarting, domain.ErrAlreadyRunning},
		{StateRunning, StateStopped, domain.ErrAlreadyRunning},
		{StateStopping, StateStopped, nil},
		{StateStopping, StateCrashed, nil},
		{StateStopping, StateRunning, domain.ErrAlreadyRunning},
		{StateCrashed, StateStarting, nil},
		{StateCrashed, StateStopped, domain.ErrNotRunning},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			l := lifecycleIn(tt.from)
			err := l.TransitionTo(tt.to, "test")

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("TransitionTo() error = %v", err)
				}
				if l.State() != tt.to {
					t.Errorf("state = %v, want %v", l.State(), tt.to)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("TransitionTo() error = %v, want %v", err, tt.wantErr)
			}
			var terr *TransitionError
			if !errors.As(err, &terr) || terr.From != tt.from || terr.To != tt.to {
				t.Errorf("TransitionTo() error = %#v, want TransitionError{%v, %v}", err, tt.from, tt.to)
			}
			if l.State() != tt.from {
				t.Errorf("state = %v after rejected transition, want %v", l.State(), tt.from)
			}
		})
	}
}

func TestLifecycle_EmitsAcceptedTransitions(t *testing.T) {
	em := &recordingEmitter{}
	l := NewLifecycle(&mockLogger{}, em)

	_ = l.TransitionTo(StateStarting, "Start() called")
	_ = l.TransitionTo(StateStopped, "rejected")
	_ = l.TransitionTo(StateRunning, "tasks starting")

	want := []transition{
		{StateStopped, StateStarting, "Start() called"},
		{StateStarting, StateRunning, "tasks starting"},
	}
	got := em.transitions()
	if len(got) != len(want) {
		t.Fatalf("got %d transitions, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLifecycle_CanStartCanStop(t *testing.T) {
	tests := []struct {
		state     State
		wantStart bool
		wantStop  bool
	}{
		{StateStopped, true, false},
		{StateStarting, false, true},
		{StateRunning, false, true},
		{StateStopping, false, false},
		{StateCrashed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			l := lifecycleIn(tt.state)
			if got := l.CanStart(); got != tt.wantStart {
				t.Errorf("CanStart() = %v, want %v", got, tt.wantStart)
			}
			if got := l.CanStop(); got != tt.wantStop {
				t.Errorf("CanStop() = %v, want %v", got, tt.wantStop)
			}
		})
	}
}

func TestLifecycle_BindCancel(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)
	l.Cancel() // nothing bound

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Bind(cancel)

	if ctx.Err() != nil {
		t.Fatal("context canceled before Cancel()")
	}
	l.Cancel()
	if ctx.Err() == nil {
		t.Error("context not canceled by Cancel()")
	}
}

func TestLifecycle_Drain(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	var finished atomic.Int32
	for i := 0; i < 3; i++ {
		l.Go(func() {
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}
	if finished.Load() != 3 {
		t.Errorf("finished = %d, want 3", finished.Load())
	}
}

func TestLifecycle_DrainDeadline(t *testing.T) {
	logger := &mockLogger{}
	l := NewLifecycle(logger, nil)

	release := make(chan struct{})
	l.Go(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Drain(ctx); !errors.Is(err, domain.ErrShutdownTimeout) {
		t.Errorf("Drain() = %v, want ErrShutdownTimeout", err)
	}
	if len(logger.Warnings()) != 1 {
		t.Errorf("warnings = %v, want one", logger.Warnings())
	}
}

func TestLifecycle_ConcurrentStarts(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TransitionTo(StateStarting, "race") == nil {
				started.Add(1)
			}
			_ = l.CanStart()
			_ = l.CanStop()
		}()
	}
	wg.Wait()

	if started.Load() != 1 {
		t.Errorf("%d goroutines started the lifecycle, want 1", started.Load())
	}
}
