package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bft-labs/bqship/internal/domain"
)

// DryRunProject is used as the project ID when shipping to the in-memory service.
const DryRunProject = "dry-run"

// Config holds CLI configuration for bqship.
type Config struct {
	Project         string
	Dataset         string
	Table           string
	CredentialsFile string

	InputDir string
	StateDir string

	Delivery       string
	Pooling        bool
	Parallelism    int
	MaxAppendBytes int64
	DiscardUnknown bool

	CheckpointInterval time.Duration
	PollInterval       time.Duration
	Once               bool

	SchemaFile string
	DryRun     bool

	MetricsAddr string
	LogLevel    string
	LogFormat   string

	MaxRestarts int

	Cleanup              bool
	CleanupInterval      time.Duration
	CleanupHighWatermark int64
	CleanupLowWatermark  int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Delivery:             domain.AtLeastOnce.String(),
		Parallelism:          1,
		MaxAppendBytes:       domain.DefaultMaxAppendBytes,
		CheckpointInterval:   10 * time.Second,
		PollInterval:         time.Second,
		LogLevel:             "info",
		LogFormat:            "console",
		MaxRestarts:          5,
		CleanupInterval:      time.Hour,
		CleanupHighWatermark: 2 << 30, // 2 GiB
		CleanupLowWatermark:  3 << 29, // 1.5 GiB
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input-dir is required")
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.InputDir, ".bqship")
	}

	if c.Project == "" {
		if !c.DryRun {
			return fmt.Errorf("project is required (or a credentials file with project_id)")
		}
		c.Project = DryRunProject
	}
	if c.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}

	if _, err := c.Guarantee(); err != nil {
		return err
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.MaxAppendBytes < 0 || c.MaxAppendBytes > domain.MaxRequestBytes {
		return fmt.Errorf("max-append-bytes must be between 0 and %d", domain.MaxRequestBytes)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint interval must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.DryRun && c.SchemaFile == "" {
		return fmt.Errorf("schema-file is required with dry-run")
	}
	if c.Cleanup && c.CleanupLowWatermark > c.CleanupHighWatermark {
		return fmt.Errorf("cleanup low watermark must not exceed the high watermark")
	}

	return nil
}

// Guarantee parses the configured delivery guarantee.
func (c *Config) Guarantee() (domain.DeliveryGuarantee, error) {
	return domain.ParseDeliveryGuarantee(c.Delivery)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, zero and negatives included.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings. Zero and negative
// values are applied when allowNonPositive is set.
func (s *configSetter) setIntFromString(flag, value string, dst *int, allowNonPositive bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 && !allowNonPositive {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if positive.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
