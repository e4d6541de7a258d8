package inputcleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/bqship/internal/adapters/fs"
	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/source"
	"github.com/bft-labs/bqship/pkg/bqship"
)

type cleanupEnv struct {
	inputDir string
	stateDir string
}

func newCleanupEnv(t *testing.T, names ...string) cleanupEnv {
	t.Helper()
	env := cleanupEnv{inputDir: t.TempDir(), stateDir: t.TempDir()}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(env.inputDir, n), []byte(strings.Repeat("x", 100)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

func (e cleanupEnv) checkpoint(t *testing.T, subtask int, file string) {
	t.Helper()
	repo := fs.NewCheckpointFileRepository(e.stateDir)
	cp := domain.Checkpoint{Subtask: subtask, Source: domain.SourcePosition{File: file, Offset: 50}}
	if err := repo.Save(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
}

func (e cleanupEnv) plugin(cfg Config, parallelism int) *Plugin {
	p := New(cfg)
	p.inputDir = e.inputDir
	p.extensions = source.DefaultExtensions
	p.parallelism = parallelism
	p.checkpoints = fs.NewCheckpointFileRepository(e.stateDir)
	return p
}

func (e cleanupEnv) remaining(t *testing.T) []string {
	t.Helper()
	names, err := source.ListFiles(e.inputDir, source.DefaultExtensions)
	if err != nil {
		t.Fatal(err)
	}
	return names
}

func TestCleanup(t *testing.T) {
	files := []string{"a.ndjson", "b.ndjson", "c.ndjson", "d.ndjson", "e.ndjson"}

	tests := []struct {
		name       string
		cfg        Config
		checkpoint string
		wantFreed  int64
		wantLeft   []string
	}{
		{
			name:       "below high watermark keeps everything",
			cfg:        Config{HighWatermark: 1000, LowWatermark: 100},
			checkpoint: "e.ndjson",
			wantLeft:   files,
		},
		{
			name:       "removes committed files down to low watermark",
			cfg:        Config{HighWatermark: 450, LowWatermark: 400},
			checkpoint: "c.ndjson",
			wantFreed:  100,
			wantLeft:   []string{"b.ndjson", "c.ndjson", "d.ndjson", "e.ndjson"},
		},
		{
			name:       "never removes the current file",
			cfg:        Config{HighWatermark: 100, LowWatermark: 50},
			checkpoint: "c.ndjson",
			wantFreed:  200,
			wantLeft:   []string{"c.ndjson", "d.ndjson", "e.ndjson"},
		},
		{
			name:     "no checkpoint keeps everything",
			cfg:      Config{HighWatermark: 100, LowWatermark: 50},
			wantLeft: files,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCleanupEnv(t, files...)
			if tt.checkpoint != "" {
				env.checkpoint(t, 0, tt.checkpoint)
			}
			p := env.plugin(tt.cfg, 1)

			freed, err := p.Cleanup(context.Background())
			if err != nil {
				t.Fatalf("Cleanup() error = %v", err)
			}
			if freed != tt.wantFreed {
				t.Errorf("Cleanup() freed = %d, want %d", freed, tt.wantFreed)
			}
			if got := env.remaining(t); strings.Join(got, ",") != strings.Join(tt.wantLeft, ",") {
				t.Errorf("remaining = %v, want %v", got, tt.wantLeft)
			}
		})
	}
}

func TestCleanup_RespectsOwningSubtask(t *testing.T) {
	const parallelism = 2
	names := []string{"01.ndjson", "02.ndjson", "03.ndjson", "04.ndjson", "05.ndjson", "06.ndjson"}
	env := newCleanupEnv(t, names...)

	// Only subtask 0 has progressed, past every file.
	env.checkpoint(t, 0, "99.ndjson")

	p := env.plugin(Config{HighWatermark: 1, LowWatermark: 1}, parallelism)
	if _, err := p.Cleanup(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, n := range env.remaining(t) {
		if source.Assigned(n, 0, parallelism) {
			t.Errorf("%s belongs to subtask 0 and should be removed", n)
		}
	}
	for _, n := range names {
		if source.Assigned(n, 1, parallelism) {
			if _, err := os.Stat(filepath.Join(env.inputDir, n)); err != nil {
				t.Errorf("%s belongs to subtask 1 and should be kept: %v", n, err)
			}
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})
	def := DefaultConfig()
	if p.checkInterval != def.CheckInterval || p.highWatermark != def.HighWatermark {
		t.Errorf("New(Config{}) = interval %v high %d, want defaults", p.checkInterval, p.highWatermark)
	}
	if p.lowWatermark > p.highWatermark {
		t.Errorf("low watermark %d above high watermark %d", p.lowWatermark, p.highWatermark)
	}

	p = New(Config{HighWatermark: 100, LowWatermark: 200})
	if p.lowWatermark != 75 {
		t.Errorf("lowWatermark = %d, want 75", p.lowWatermark)
	}
}

func TestPlugin_InitializeRunsImmediately(t *testing.T) {
	env := newCleanupEnv(t, "a.ndjson", "b.ndjson")
	env.checkpoint(t, 0, "b.ndjson")

	p := New(Config{HighWatermark: 150, LowWatermark: 100, CheckInterval: time.Hour})
	err := p.Initialize(context.Background(), bqship.PluginConfig{
		InputDir:    env.inputDir,
		StateDir:    env.stateDir,
		Parallelism: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(env.remaining(t)) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := env.remaining(t); len(got) != 1 || got[0] != "b.ndjson" {
		t.Errorf("remaining = %v, want [b.ndjson]", got)
	}
}

func TestPlugin_DisabledWithoutDirectories(t *testing.T) {
	p := New(DefaultConfig())
	if err := p.Initialize(context.Background(), bqship.PluginConfig{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Name() != "inputcleanup" {
		t.Errorf("Name() = %v", p.Name())
	}
}
