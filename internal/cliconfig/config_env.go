package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (BQSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("project", os.Getenv("BQSHIP_PROJECT"), &cfg.Project)
	s.setString("dataset", os.Getenv("BQSHIP_DATASET"), &cfg.Dataset)
	s.setString("table", os.Getenv("BQSHIP_TABLE"), &cfg.Table)
	s.setString("credentials", os.Getenv("BQSHIP_CREDENTIALS"), &cfg.CredentialsFile)
	s.setString("input-dir", os.Getenv("BQSHIP_INPUT_DIR"), &cfg.InputDir)
	s.setString("state-dir", os.Getenv("BQSHIP_STATE_DIR"), &cfg.StateDir)
	s.setString("delivery", os.Getenv("BQSHIP_DELIVERY"), &cfg.Delivery)
	s.setString("schema-file", os.Getenv("BQSHIP_SCHEMA_FILE"), &cfg.SchemaFile)
	s.setString("metrics-addr", os.Getenv("BQSHIP_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("BQSHIP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("BQSHIP_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("checkpoint-interval", os.Getenv("BQSHIP_CHECKPOINT_INTERVAL"), &cfg.CheckpointInterval); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("BQSHIP_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("cleanup-interval", os.Getenv("BQSHIP_CLEANUP_INTERVAL"), &cfg.CleanupInterval); err != nil {
		return err
	}

	if err := s.setIntFromString("parallelism", os.Getenv("BQSHIP_PARALLELISM"), &cfg.Parallelism, false); err != nil {
		return err
	}
	if err := s.setIntFromString("max-restarts", os.Getenv("BQSHIP_MAX_RESTARTS"), &cfg.MaxRestarts, true); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-append-bytes", os.Getenv("BQSHIP_MAX_APPEND_BYTES"), &cfg.MaxAppendBytes); err != nil {
		return err
	}
	if err := s.setInt64FromString("cleanup-high-watermark", os.Getenv("BQSHIP_CLEANUP_HIGH_WATERMARK"), &cfg.CleanupHighWatermark); err != nil {
		return err
	}
	if err := s.setInt64FromString("cleanup-low-watermark", os.Getenv("BQSHIP_CLEANUP_LOW_WATERMARK"), &cfg.CleanupLowWatermark); err != nil {
		return err
	}

	s.setBoolFromString("pooling", os.Getenv("BQSHIP_POOLING"), &cfg.Pooling)
	s.setBoolFromString("discard-unknown", os.Getenv("BQSHIP_DISCARD_UNKNOWN"), &cfg.DiscardUnknown)
	s.setBoolFromString("once", os.Getenv("BQSHIP_ONCE"), &cfg.Once)
	s.setBoolFromString("dry-run", os.Getenv("BQSHIP_DRY_RUN"), &cfg.DryRun)
	s.setBoolFromString("cleanup", os.Getenv("BQSHIP_CLEANUP"), &cfg.Cleanup)

	return nil
}
