package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to keep TOML and
// YAML files readable.
type FileConfig struct {
	Project         string `toml:"project" yaml:"project"`
	Dataset         string `toml:"dataset" yaml:"dataset"`
	Table           string `toml:"table" yaml:"table"`
	CredentialsFile string `toml:"credentials" yaml:"credentials"`

	InputDir string `toml:"input_dir" yaml:"input_dir"`
	StateDir string `toml:"state_dir" yaml:"state_dir"`

	Delivery       string `toml:"delivery" yaml:"delivery"`
	Pooling        *bool  `toml:"pooling" yaml:"pooling"`
	Parallelism    int    `toml:"parallelism" yaml:"parallelism"`
	MaxAppendBytes int64  `toml:"max_append_bytes" yaml:"max_append_bytes"`
	DiscardUnknown *bool  `toml:"discard_unknown" yaml:"discard_unknown"`

	CheckpointInterval string `toml:"checkpoint_interval" yaml:"checkpoint_interval"`
	PollInterval       string `toml:"poll_interval" yaml:"poll_interval"`
	Once               *bool  `toml:"once" yaml:"once"`

	SchemaFile string `toml:"schema_file" yaml:"schema_file"`
	DryRun     *bool  `toml:"dry_run" yaml:"dry_run"`

	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	LogFormat   string `toml:"log_format" yaml:"log_format"`

	MaxRestarts *int `toml:"max_restarts" yaml:"max_restarts"`

	Cleanup              *bool  `toml:"cleanup" yaml:"cleanup"`
	CleanupInterval      string `toml:"cleanup_interval" yaml:"cleanup_interval"`
	CleanupHighWatermark int64  `toml:"cleanup_high_watermark" yaml:"cleanup_high_watermark"`
	CleanupLowWatermark  int64  `toml:"cleanup_low_watermark" yaml:"cleanup_low_watermark"`
}

// LoadFileConfig reads and parses a config file from the given path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.bqship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bqship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("project", fc.Project, &cfg.Project)
	s.setString("dataset", fc.Dataset, &cfg.Dataset)
	s.setString("table", fc.Table, &cfg.Table)
	s.setString("credentials", fc.CredentialsFile, &cfg.CredentialsFile)
	s.setString("input-dir", fc.InputDir, &cfg.InputDir)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("delivery", fc.Delivery, &cfg.Delivery)
	s.setString("schema-file", fc.SchemaFile, &cfg.SchemaFile)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("checkpoint-interval", fc.CheckpointInterval, &cfg.CheckpointInterval); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("cleanup-interval", fc.CleanupInterval, &cfg.CleanupInterval); err != nil {
		return err
	}

	s.setInt("parallelism", fc.Parallelism, &cfg.Parallelism)
	s.setIntPtr("max-restarts", fc.MaxRestarts, &cfg.MaxRestarts)
	s.setInt64("max-append-bytes", fc.MaxAppendBytes, &cfg.MaxAppendBytes)
	s.setInt64("cleanup-high-watermark", fc.CleanupHighWatermark, &cfg.CleanupHighWatermark)
	s.setInt64("cleanup-low-watermark", fc.CleanupLowWatermark, &cfg.CleanupLowWatermark)

	s.setBool("pooling", fc.Pooling, &cfg.Pooling)
	s.setBool("discard-unknown", fc.DiscardUnknown, &cfg.DiscardUnknown)
	s.setBool("once", fc.Once, &cfg.Once)
	s.setBool("dry-run", fc.DryRun, &cfg.DryRun)
	s.setBool("cleanup", fc.Cleanup, &cfg.Cleanup)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
