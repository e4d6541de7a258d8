package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/bqship/pkg/log"
)

// DefaultMaxRestarts is the number of times a failed subtask is restarted
// before the run fails.
const DefaultMaxRestarts = 5

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Parallelism is the number of subtasks
	Parallelism int

	// MaxRestarts bounds restarts per subtask. Negative disables restarts.
	MaxRestarts int

	// BackoffInitial and BackoffMax bound the delay before a restart
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// TaskRunner is the unit of work supervised by a Runner.
type TaskRunner interface {
	Run(ctx context.Context) error
}

// TaskFactory builds the task of a subtask. It is called again for every
// restart so each attempt starts from the last checkpoint.
type TaskFactory func(subtask int) (TaskRunner, error)

// FailureEmitter is notified when a subtask fails.
type FailureEmitter interface {
	OnTaskFailure(subtask int, err error, attempt int, willRestart bool)
}

// Runner runs one task per subtask and restarts failed tasks with
// exponential backoff.
type Runner struct {
	cfg       RunnerConfig
	factory   TaskFactory
	lifecycle *Lifecycle
	logger    log.Logger
	emitter   FailureEmitter
}

// NewRunner creates a runner. Task goroutines are tracked by lifecycle.
func NewRunner(cfg RunnerConfig, factory TaskFactory, lifecycle *Lifecycle, logger log.Logger, emitter FailureEmitter) *Runner {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Runner{cfg: cfg, factory: factory, lifecycle: lifecycle, logger: logger, emitter: emitter}
}

// Run starts every subtask and waits for all of them.
// Returns nil when every task finished, ctx.Err() when canceled, or the
// joined errors of tasks that exhausted their restarts.
func (r *Runner) Run(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)

	for subtask := 0; subtask < r.cfg.Parallelism; subtask++ {
		subtask := subtask
		wg.Add(1)
		r.lifecycle.Go(func() {
			defer wg.Done()
			if err := r.supervise(ctx, subtask); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("subtask %d: %w", subtask, err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(errs...)
}

// supervise runs one subtask, restarting it after failures.
func (r *Runner) supervise(ctx context.Context, subtask int) error {
	logger := log.With(r.logger, log.Int("subtask", subtask))

	for attempt := 1; ; attempt++ {
		err := r.runOnce(ctx, subtask)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		willRestart := r.cfg.MaxRestarts >= 0 && attempt <= r.cfg.MaxRestarts
		logger.Error("task failed",
			log.Err(err),
			log.Int("attempt", attempt),
			log.Bool("restart", willRestart),
		)
		if r.emitter != nil {
			r.emitter.OnTaskFailure(subtask, err, attempt, willRestart)
		}
		if !willRestart {
			return err
		}

		delay := jitter(restartDelay(attempt, r.cfg.BackoffInitial, r.cfg.BackoffMax))
		logger.Info("restarting task from last checkpoint", log.Duration("backoff", delay))
		if err := sleepCtx(ctx, delay); err != nil {
			return nil
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, subtask int) error {
	task, err := r.factory(subtask)
	if err != nil {
		return fmt.Errorf("build task: %w", err)
	}
	return task.Run(ctx)
}
