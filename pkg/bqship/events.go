package bqship

import (
	"github.com/bft-labs/bqship/internal/adapters/prometheus"
	"github.com/bft-labs/bqship/internal/app"
	"github.com/bft-labs/bqship/internal/domain"
)

// State is the lifecycle state of a Sink.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// CheckpointEvent is emitted after a subtask persisted a checkpoint.
type CheckpointEvent struct {
	Checkpoint Checkpoint
}

// TaskFailureEvent is emitted when a subtask fails.
type TaskFailureEvent struct {
	Subtask     int
	Error       error
	Attempt     int
	WillRestart bool
}

// RecordSkippedEvent is emitted when an input record is dropped because it
// cannot be serialized or exceeds the append request limit.
type RecordSkippedEvent struct {
	Subtask  int
	Position SourcePosition
	Error    error
}

// EventHandler receives Sink events. Methods are called synchronously from
// the task goroutines and should return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnCheckpoint(event CheckpointEvent)
	OnTaskFailure(event TaskFailureEvent)
	OnRecordSkipped(event RecordSkippedEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle a
// subset of events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)     {}
func (BaseEventHandler) OnCheckpoint(CheckpointEvent)       {}
func (BaseEventHandler) OnTaskFailure(TaskFailureEvent)     {}
func (BaseEventHandler) OnRecordSkipped(RecordSkippedEvent) {}

// eventEmitter adapts EventHandler and the Prometheus sinks to the internal
// emitter interfaces.
type eventEmitter struct {
	handler EventHandler
	sinks   []*prometheus.Sink
}

func (e *eventEmitter) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitter) OnCheckpoint(cp domain.Checkpoint) {
	if s := e.sink(cp.Subtask); s != nil {
		s.CheckpointSaved()
	}
	if e.handler != nil {
		e.handler.OnCheckpoint(CheckpointEvent{Checkpoint: cp})
	}
}

func (e *eventEmitter) OnRecordSkipped(subtask int, pos domain.SourcePosition, err error) {
	if e.handler != nil {
		e.handler.OnRecordSkipped(RecordSkippedEvent{Subtask: subtask, Position: pos, Error: err})
	}
}

func (e *eventEmitter) OnTaskFailure(subtask int, err error, attempt int, willRestart bool) {
	if s := e.sink(subtask); s != nil && willRestart {
		s.TaskRestarted()
	}
	if e.handler != nil {
		e.handler.OnTaskFailure(TaskFailureEvent{
			Subtask:     subtask,
			Error:       err,
			Attempt:     attempt,
			WillRestart: willRestart,
		})
	}
}

func (e *eventEmitter) sink(subtask int) *prometheus.Sink {
	if subtask < 0 || subtask >= len(e.sinks) {
		return nil
	}
	return e.sinks[subtask]
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
