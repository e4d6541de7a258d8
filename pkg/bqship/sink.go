package bqship

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/api/option"

	"github.com/bft-labs/bqship/internal/adapters/bigquery"
	"github.com/bft-labs/bqship/internal/adapters/fs"
	"github.com/bft-labs/bqship/internal/adapters/prometheus"
	"github.com/bft-labs/bqship/internal/app"
	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/internal/serializer"
	"github.com/bft-labs/bqship/internal/source"
	"github.com/bft-labs/bqship/internal/writer"
	"github.com/bft-labs/bqship/pkg/log"
)

// Sink ships newline-delimited JSON files into a BigQuery table.
// Use New to create a Sink, then Start to begin shipping.
type Sink struct {
	config    Config
	opts      options
	logger    log.Logger
	lifecycle *app.Lifecycle
	emitter   *eventEmitter
	runner    *app.Runner

	checkpoints   *fs.CheckpointFileRepository
	clientFactory ports.ClientFactory
	counters      []*writer.Counters
	promSinks     []*prometheus.Sink

	mu         sync.Mutex
	serializer ports.Serializer[[]byte]
	done       chan struct{}
	runErr     error
}

// New creates a Sink. The Sink is created in StateStopped; call Start to
// begin shipping. Returns an error if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Sink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	s := &Sink{
		config:      cfg,
		opts:        o,
		logger:      logger,
		checkpoints: fs.NewCheckpointFileRepository(cfg.StateDir),
		counters:    make([]*writer.Counters, cfg.Parallelism),
	}
	for i := range s.counters {
		s.counters[i] = writer.NewCounters()
	}
	if o.metrics != nil {
		s.promSinks = make([]*prometheus.Sink, cfg.Parallelism)
		for i := range s.promSinks {
			s.promSinks[i] = o.metrics.Sink(i)
		}
	}

	s.clientFactory = o.clientFactory
	if s.clientFactory == nil {
		s.clientFactory = bigquery.NewClientFactory(cfg.Project, bigquery.ClientOptions{
			CredentialsFile: cfg.CredentialsFile,
			EnablePooling:   cfg.EnablePooling,
			EnableRetries:   true,
		})
	}

	s.emitter = &eventEmitter{handler: o.eventHandler, sinks: s.promSinks}
	s.lifecycle = app.NewLifecycle(logger, s.emitter)
	s.runner = app.NewRunner(app.RunnerConfig{
		Parallelism: cfg.Parallelism,
		MaxRestarts: cfg.MaxRestarts,
	}, s.newTask, s.lifecycle, logger, s.emitter)

	return s, nil
}

// Start resolves the row schema, initializes plugins and starts one task
// per subtask in the background. ctx bounds the lifetime of the run.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.Bind(cancel)

	ser, err := s.resolveSerializer(runCtx)
	if err != nil {
		cancel()
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "schema: "+err.Error())
		return err
	}
	s.serializer = ser

	pluginCfg := PluginConfig{
		InputDir:    s.config.InputDir,
		StateDir:    s.config.StateDir,
		Extensions:  s.config.Extensions,
		Parallelism: s.config.Parallelism,
		Logger:      s.logger,
	}
	for i, p := range s.opts.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			s.shutdownPlugins(s.opts.plugins[:i])
			_ = s.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	done := make(chan struct{})
	s.done = done
	s.runErr = nil

	go func() {
		defer close(done)
		defer cancel()

		if err := s.lifecycle.TransitionTo(app.StateRunning, "tasks starting"); err != nil {
			s.logger.Error("failed to transition to running", log.Err(err))
			return
		}

		err := s.runner.Run(runCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()

		switch {
		case err != nil:
			s.logger.Error("sink failed", log.Err(err))
			s.finish(app.StateCrashed, err.Error())
		case s.config.Once && runCtx.Err() == nil:
			s.finish(app.StateStopped, "input drained")
		default:
			s.finish(app.StateStopped, "context canceled")
		}
	}()

	return nil
}

// finish moves a running sink to its final state unless Stop is already
// doing so.
func (s *Sink) finish(final app.State, reason string) {
	s.mu.Lock()
	if s.lifecycle.State() != app.StateRunning {
		s.mu.Unlock()
		return
	}
	if final == app.StateCrashed {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, reason)
		s.mu.Unlock()
		s.shutdownPlugins(s.opts.plugins)
		return
	}
	_ = s.lifecycle.TransitionTo(app.StateStopping, reason)
	s.mu.Unlock()

	s.shutdownPlugins(s.opts.plugins)
	_ = s.lifecycle.TransitionTo(app.StateStopped, reason)
}

// Stop cancels every task, waits for their last checkpoint and shuts down
// plugins. Waits up to app.ShutdownTimeout before giving up.
// Returns ErrShutdownTimeout if tasks did not stop in time.
func (s *Sink) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lifecycle.Cancel()
	s.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	err := s.lifecycle.Drain(drainCtx)
	cancel()

	s.shutdownPlugins(s.opts.plugins)

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return domain.ErrShutdownTimeout
	}
	_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	return nil
}

// Wait blocks until the current run ends and returns its error.
// A run ends when every subtask drained its input (Config.Once), when the
// Sink was stopped or when a subtask failed beyond its restarts.
func (s *Sink) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return domain.ErrNotRunning
	}

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Sink) Status() State {
	return convertState(s.lifecycle.State())
}

// Stats returns the writer counters of a subtask. Counters survive task
// restarts.
func (s *Sink) Stats(subtask int) Stats {
	if subtask < 0 || subtask >= len(s.counters) {
		return Stats{}
	}
	return s.counters[subtask].Snapshot()
}

// Checkpoints returns the last persisted checkpoint of every subtask that
// has one.
func (s *Sink) Checkpoints(ctx context.Context) ([]Checkpoint, error) {
	return s.checkpoints.LoadAll(ctx)
}

func (s *Sink) newTask(subtask int) (app.TaskRunner, error) {
	s.mu.Lock()
	ser := s.serializer
	s.mu.Unlock()

	src := source.NewNDJSONSource(source.Config{
		Dir:          s.config.InputDir,
		Subtask:      subtask,
		Parallelism:  s.config.Parallelism,
		Follow:       !s.config.Once,
		PollInterval: s.config.PollInterval,
		Extensions:   s.config.Extensions,
	}, log.With(s.logger, log.Int("subtask", subtask)))

	var metrics ports.MetricsSink = s.counters[subtask]
	if s.promSinks != nil {
		metrics = writer.MultiSink{s.counters[subtask], s.promSinks[subtask]}
	}

	return app.NewTask(app.TaskConfig{
		Subtask: subtask,
		Writer: writer.Config{
			Table:          bigquery.TableParent(s.config.Project, s.config.Dataset, s.config.Table),
			Guarantee:      s.config.Delivery,
			EnablePooling:  s.config.EnablePooling,
			MaxAppendBytes: s.config.MaxAppendBytes,
			TraceID:        s.config.TraceID,
		},
		CheckpointInterval: s.config.CheckpointInterval,
		Once:               s.config.Once,
	}, app.TaskDeps{
		Source:        src,
		Checkpoints:   s.checkpoints,
		Serializer:    ser,
		ClientFactory: s.clientFactory,
		Metrics:       metrics,
		Logger:        s.logger,
		Events:        s.emitter,
	}), nil
}

// resolveSerializer picks the row encoding: an explicit serializer, then an
// explicit schema, then the schema file, then the live table schema.
func (s *Sink) resolveSerializer(ctx context.Context) (ports.Serializer[[]byte], error) {
	if s.opts.serializer != nil {
		return s.opts.serializer, nil
	}

	schema := s.opts.schema
	if schema == nil {
		var err error
		if s.config.SchemaFile != "" {
			schema, err = bigquery.LoadSchemaFile(s.config.SchemaFile)
		} else {
			var copts []option.ClientOption
			if s.config.CredentialsFile != "" {
				copts = append(copts, option.WithCredentialsFile(s.config.CredentialsFile))
			}
			schema, err = bigquery.FetchSchema(ctx, s.config.Project, s.config.Dataset, s.config.Table, copts...)
		}
		if err != nil {
			return nil, err
		}
	}

	md, dp, err := bigquery.MessageDescriptor(schema)
	if err != nil {
		return nil, err
	}
	var jopts []serializer.JSONOption
	if s.config.DiscardUnknown {
		jopts = append(jopts, serializer.WithDiscardUnknown())
	}
	return serializer.NewJSONSerializer(md, dp, jopts...), nil
}

func (s *Sink) shutdownPlugins(plugins []Plugin) {
	ctx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			continue
		}
		s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
	}
}
