package ports

import (
	"context"

	"github.com/bft-labs/bqship/internal/domain"
)

// CheckpointRepository handles checkpoint persistence for crash recovery.
type CheckpointRepository interface {
	// Load retrieves the last saved checkpoint of a subtask.
	// Returns an empty checkpoint and nil error if none exists.
	Load(ctx context.Context, subtask int) (domain.Checkpoint, error)

	// Save persists the checkpoint atomically.
	Save(ctx context.Context, cp domain.Checkpoint) error
}
