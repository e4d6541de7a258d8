package bqship

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bft-labs/bqship/internal/domain"
)

// Default values applied by Config.SetDefaults.
const (
	DefaultParallelism        = 1
	DefaultCheckpointInterval = 10 * time.Second
	DefaultPollInterval       = time.Second
	DefaultMaxRestarts        = 5
)

// Config holds the configuration of a Sink.
type Config struct {
	// Project, Dataset and Table name the destination table.
	Project string
	Dataset string
	Table   string

	// CredentialsFile is a service account key file. Empty uses
	// application default credentials.
	CredentialsFile string

	// InputDir holds the newline-delimited JSON files to ship.
	InputDir string

	// StateDir holds the per-subtask checkpoint files.
	// Default: <InputDir>/.bqship
	StateDir string

	// Extensions selects the input files by suffix.
	// Default: .ndjson and .jsonl
	Extensions []string

	// Delivery selects at-least-once or exactly-once delivery.
	Delivery DeliveryGuarantee

	// EnablePooling shares one multiplexed connection between subtasks.
	EnablePooling bool

	// Parallelism is the number of subtasks. Input files are spread across
	// subtasks by name.
	Parallelism int

	// MaxAppendBytes bounds one append request. Zero selects 95% of the
	// service limit.
	MaxAppendBytes int64

	// CheckpointInterval is the time between checkpoints of a subtask.
	CheckpointInterval time.Duration

	// PollInterval bounds the wait for new input when no file event arrives.
	PollInterval time.Duration

	// Once stops every subtask at the end of its input instead of following
	// the directory.
	Once bool

	// MaxRestarts bounds restarts of a failed subtask. Zero selects
	// DefaultMaxRestarts, negative disables restarts.
	MaxRestarts int

	// SchemaFile is a table schema in bq JSON format. Empty reads the
	// schema of the destination table unless WithSchema or WithSerializer
	// is given.
	SchemaFile string

	// DiscardUnknown drops JSON fields missing from the table schema
	// instead of failing the record.
	DiscardUnknown bool

	// TraceID is attached to every append request.
	TraceID string
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.StateDir == "" && c.InputDir != "" {
		c.StateDir = filepath.Join(c.InputDir, ".bqship")
	}
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("%w: input directory is required", domain.ErrInvalidConfig)
	}
	if c.Project == "" || c.Dataset == "" || c.Table == "" {
		return fmt.Errorf("%w: project, dataset and table are required", domain.ErrInvalidConfig)
	}
	if c.Delivery != AtLeastOnce && c.Delivery != ExactlyOnce {
		return fmt.Errorf("%w: unknown delivery guarantee %d", domain.ErrInvalidConfig, c.Delivery)
	}
	if c.MaxAppendBytes < 0 || c.MaxAppendBytes > domain.MaxRequestBytes {
		return fmt.Errorf("%w: max append bytes must be at most %d", domain.ErrInvalidConfig, domain.MaxRequestBytes)
	}
	return nil
}
