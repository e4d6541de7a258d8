// Package inputcleanup removes shipped input files for bqship.
// When enabled, it periodically deletes the oldest input files every
// subtask has committed, keeping the input directory below a size bound.
package inputcleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bft-labs/bqship/internal/adapters/fs"
	"github.com/bft-labs/bqship/internal/source"
	"github.com/bft-labs/bqship/pkg/bqship"
	"github.com/bft-labs/bqship/pkg/log"
)

// Config holds configuration options for the input cleanup plugin.
type Config struct {
	// CheckInterval is how often to check the input directory size.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the size in bytes above which cleanup begins.
	// Default: 2 GiB
	HighWatermark int64

	// LowWatermark is the target size in bytes after cleanup.
	// Default: 1.5 GiB
	LowWatermark int64
}

// DefaultConfig returns a Config with the default watermarks.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Hour,
		HighWatermark: 2 << 30, // 2 GiB
		LowWatermark:  3 << 29, // 1.5 GiB
	}
}

// Plugin implements input cleanup.
type Plugin struct {
	mu sync.RWMutex

	checkInterval time.Duration
	highWatermark int64
	lowWatermark  int64

	inputDir    string
	extensions  []string
	parallelism int
	checkpoints *fs.CheckpointFileRepository
	logger      log.Logger
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a cleanup plugin. Zero fields take their defaults.
func New(cfg Config) *Plugin {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = def.HighWatermark
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark * 3 / 4
	}
	return &Plugin{
		checkInterval: cfg.CheckInterval,
		highWatermark: cfg.HighWatermark,
		lowWatermark:  cfg.LowWatermark,
		logger:        log.NewNoopLogger(),
	}
}

// WithInputCleanup returns a bqship Option that enables input cleanup.
//
// Usage:
//
//	sink, err := bqship.New(cfg,
//	    inputcleanup.WithInputCleanup(inputcleanup.Config{
//	        CheckInterval: time.Hour,
//	        HighWatermark: 2 << 30, // 2 GiB
//	        LowWatermark:  3 << 29, // 1.5 GiB
//	    }),
//	)
func WithInputCleanup(cfg Config) bqship.Option {
	return bqship.WithPlugin(New(cfg))
}

// WithDefaultInputCleanup enables input cleanup with DefaultConfig.
func WithDefaultInputCleanup() bqship.Option {
	return WithInputCleanup(DefaultConfig())
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "inputcleanup"
}

// Initialize records the sink layout and starts the cleanup loop.
func (p *Plugin) Initialize(ctx context.Context, cfg bqship.PluginConfig) error {
	p.mu.Lock()
	p.inputDir = cfg.InputDir
	p.extensions = cfg.Extensions
	if len(p.extensions) == 0 {
		p.extensions = source.DefaultExtensions
	}
	p.parallelism = cfg.Parallelism
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	p.checkpoints = fs.NewCheckpointFileRepository(cfg.StateDir)
	if cfg.Logger != nil {
		p.logger = log.With(cfg.Logger, log.String("plugin", p.Name()))
	}
	p.mu.Unlock()

	if cfg.InputDir == "" || cfg.StateDir == "" {
		p.logger.Warn("input cleanup disabled: input or state directory not configured")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("input cleanup initialized",
		log.Int64("high_watermark", p.highWatermark),
		log.Int64("low_watermark", p.lowWatermark),
		log.Duration("interval", p.checkInterval),
	)

	p.wg.Add(1)
	go p.cleanupLoop(loopCtx)
	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	p.runOnce(ctx)

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Plugin) runOnce(ctx context.Context) {
	removed, err := p.Cleanup(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Error("input cleanup failed", log.Err(err))
		return
	}
	if removed > 0 {
		p.logger.Info("input cleanup completed", log.Int64("bytes_freed", removed))
	}
}

type inputFile struct {
	name string
	size int64
}

// Cleanup performs one check and returns the number of bytes removed.
// Nothing is removed while the input directory is at or below the high
// watermark. Above it, committed files are removed oldest first until the
// size drops to the low watermark.
func (p *Plugin) Cleanup(ctx context.Context) (int64, error) {
	p.mu.RLock()
	inputDir, extensions := p.inputDir, p.extensions
	p.mu.RUnlock()

	files, total, err := inputFiles(inputDir, extensions)
	if err != nil {
		return 0, err
	}
	if total <= p.highWatermark {
		return 0, nil
	}

	committed, err := p.committed(ctx)
	if err != nil {
		return 0, err
	}

	var removed int64
	var errs []error
	for _, f := range files {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if total <= p.lowWatermark {
			break
		}
		if !committed(f.name) {
			continue
		}
		if err := os.Remove(filepath.Join(inputDir, f.name)); err != nil {
			errs = append(errs, err)
			continue
		}
		p.logger.Debug("removed committed input", log.String("file", f.name), log.Int64("bytes", f.size))
		total -= f.size
		removed += f.size
	}
	return removed, errors.Join(errs...)
}

// committed returns a predicate reporting whether the subtask owning a file
// has moved past it. A subtask without a checkpoint has committed nothing.
func (p *Plugin) committed(ctx context.Context) (func(name string) bool, error) {
	cps, err := p.checkpoints.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	current := make(map[int]string, len(cps))
	for _, cp := range cps {
		current[cp.Subtask] = cp.Source.File
	}

	parallelism := p.parallelism
	return func(name string) bool {
		for subtask := 0; subtask < parallelism; subtask++ {
			if !source.Assigned(name, subtask, parallelism) {
				continue
			}
			file, ok := current[subtask]
			return ok && file != "" && name < file
		}
		return false
	}, nil
}

func inputFiles(dir string, extensions []string) ([]inputFile, int64, error) {
	names, err := source.ListFiles(dir, extensions)
	if err != nil {
		return nil, 0, err
	}
	files := make([]inputFile, 0, len(names))
	var total int64
	for _, n := range names {
		info, err := os.Stat(filepath.Join(dir, n))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, 0, err
		}
		files = append(files, inputFile{name: n, size: info.Size()})
		total += info.Size()
	}
	return files, total, nil
}
