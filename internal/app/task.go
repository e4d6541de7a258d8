package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/internal/writer"
	"github.com/bft-labs/bqship/pkg/log"
)

// DefaultCheckpointInterval is used when TaskConfig.CheckpointInterval is zero.
const DefaultCheckpointInterval = 10 * time.Second

// checkpointTimeout bounds the checkpoint taken after cancellation.
const checkpointTimeout = 20 * time.Second

// TaskConfig configures one subtask.
type TaskConfig struct {
	// Subtask is the index of this task
	Subtask int

	// Writer configures the writer. SubtaskID and Resume are set by the task.
	Writer writer.Config

	// CheckpointInterval is the time between checkpoints
	CheckpointInterval time.Duration

	// Once stops at the end of the input after a final flush
	Once bool
}

// TaskDeps are the collaborators of a task.
type TaskDeps struct {
	Source        ports.RecordSource
	Checkpoints   ports.CheckpointRepository
	Serializer    ports.Serializer[[]byte]
	ClientFactory ports.ClientFactory
	Metrics       ports.MetricsSink
	Logger        log.Logger
	Events        TaskEventEmitter
}

// TaskEventEmitter is notified of task progress.
type TaskEventEmitter interface {
	OnCheckpoint(cp domain.Checkpoint)
	OnRecordSkipped(subtask int, pos domain.SourcePosition, err error)
}

// Task moves records from a source into the table through one writer,
// persisting a checkpoint after every successful flush.
type Task struct {
	cfg  TaskConfig
	deps TaskDeps

	checkpoint domain.Checkpoint
	pending    int64
}

// NewTask creates a task.
func NewTask(cfg TaskConfig, deps TaskDeps) *Task {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNoopLogger()
	}
	deps.Logger = log.With(deps.Logger, log.Int("subtask", cfg.Subtask))
	return &Task{cfg: cfg, deps: deps}
}

// Run executes the task until the input ends (Once), ctx is canceled or
// an unrecoverable error occurs. On cancellation the task takes a last
// checkpoint before returning ctx.Err().
func (t *Task) Run(ctx context.Context) error {
	cp, err := t.deps.Checkpoints.Load(ctx, t.cfg.Subtask)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	cp.Subtask = t.cfg.Subtask
	t.checkpoint = cp

	if err := t.deps.Source.Open(ctx, cp.Source); err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer t.deps.Source.Close()

	wcfg := t.cfg.Writer
	wcfg.SubtaskID = t.cfg.Subtask
	wcfg.Resume = nil
	if cp.Resumable(wcfg.Guarantee) {
		resume := cp.Stream
		wcfg.Resume = &resume
		t.deps.Logger.Info("resuming stream",
			log.String("stream", resume.Name),
			log.Int64("offset", resume.Offset),
		)
	}

	opts := []writer.Option{
		writer.WithLogger(t.deps.Logger),
		writer.WithClientFactory(t.deps.ClientFactory),
	}
	if t.deps.Metrics != nil {
		opts = append(opts, writer.WithMetrics(t.deps.Metrics))
	}
	w, err := writer.New[[]byte](wcfg, t.deps.Serializer, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			t.deps.Logger.Warn("failed to close writer", log.Err(cerr))
		}
	}()

	t.deps.Logger.Info("task started",
		log.String("file", cp.Source.File),
		log.Int64("offset", cp.Source.Offset),
		log.Stringer("delivery", wcfg.Guarantee),
	)

	ticker := time.NewTicker(t.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return t.checkpointOnExit(ctx, w)
		case <-ticker.C:
			if err := t.commit(ctx, w, false); err != nil {
				return err
			}
		default:
		}

		rec, err := t.deps.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if t.cfg.Once {
					return t.commit(ctx, w, true)
				}
				if werr := t.deps.Source.Wait(ctx); werr != nil && ctx.Err() == nil {
					return fmt.Errorf("wait for input: %w", werr)
				}
				continue
			}
			if ctx.Err() != nil {
				return t.checkpointOnExit(ctx, w)
			}
			return fmt.Errorf("read input: %w", err)
		}

		if err := w.Write(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrRecordTooLarge) || errors.Is(err, domain.ErrSerialization) {
				pos := t.deps.Source.Position()
				t.deps.Logger.Warn("skipping record",
					log.String("file", pos.File),
					log.Int64("offset", pos.Offset),
					log.Err(err),
				)
				if t.deps.Events != nil {
					t.deps.Events.OnRecordSkipped(t.cfg.Subtask, pos, err)
				}
				continue
			}
			if ctx.Err() != nil {
				return t.checkpointOnExit(ctx, w)
			}
			return err
		}
		t.pending++
	}
}

// commit flushes the writer and persists the resulting checkpoint.
func (t *Task) commit(ctx context.Context, w *writer.Writer[[]byte], final bool) error {
	if err := w.Flush(ctx, final); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	cp := domain.Checkpoint{
		Subtask:     t.cfg.Subtask,
		Guarantee:   w.Guarantee(),
		Source:      t.deps.Source.Position(),
		Stream:      w.Checkpoint(),
		Records:     t.checkpoint.Records + t.pending,
		CommittedAt: time.Now().UTC(),
	}
	if final && cp.Guarantee == domain.ExactlyOnce {
		// A finalized stream accepts no more rows; the next run starts a new one.
		cp.Stream = domain.StreamPosition{}
	}

	if err := t.deps.Checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	t.checkpoint = cp
	t.pending = 0

	t.deps.Logger.Debug("checkpoint saved",
		log.String("file", cp.Source.File),
		log.Int64("offset", cp.Source.Offset),
		log.Int64("stream_offset", cp.Stream.Offset),
		log.Int64("records", cp.Records),
		log.Bool("final", final),
	)
	if t.deps.Events != nil {
		t.deps.Events.OnCheckpoint(cp)
	}
	return nil
}

// checkpointOnExit takes a last checkpoint after ctx was canceled.
func (t *Task) checkpointOnExit(ctx context.Context, w *writer.Writer[[]byte]) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()

	if err := t.commit(flushCtx, w, false); err != nil {
		t.deps.Logger.Warn("checkpoint on shutdown failed", log.Err(err))
	}
	return ctx.Err()
}
