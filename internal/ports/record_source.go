package ports

import (
	"context"

	"github.com/bft-labs/bqship/internal/domain"
)

// RecordSource reads raw records in order.
type RecordSource interface {
	// Open positions the source. A zero position starts from the beginning.
	Open(ctx context.Context, pos domain.SourcePosition) error

	// Next returns the next record.
	// Returns io.EOF when no more records are currently available.
	Next(ctx context.Context) ([]byte, error)

	// Position returns the position after the last record returned by Next.
	Position() domain.SourcePosition

	// Wait blocks until more records may be available or ctx is done.
	Wait(ctx context.Context) error

	// Close releases the source.
	Close() error
}
