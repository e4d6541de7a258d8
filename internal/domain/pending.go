package domain

import "context"

// Completion is the eventual outcome of one append request.
// It resolves exactly once, on a goroutine owned by the transport.
type Completion interface {
	// Ready is closed once the outcome is available.
	Ready() <-chan struct{}

	// Wait blocks until the outcome is available or ctx is done and returns
	// the start offset reported by the service.
	Wait(ctx context.Context) (int64, error)
}

// IsResolved returns true if c has already resolved, without blocking.
func IsResolved(c Completion) bool {
	select {
	case <-c.Ready():
		return true
	default:
		return false
	}
}

// PendingAppend is a dispatched batch whose outcome has not yet been
// validated.
type PendingAppend struct {
	// Completion resolves when the service acknowledges the batch
	Completion Completion

	// StartOffset is the offset assigned to the first row of the batch
	StartOffset int64

	// ExpectedOffset is the cumulative row count after this batch
	ExpectedOffset int64

	// RowCount is the number of rows in the batch
	RowCount int64

	// Bytes is the framed size of the batch
	Bytes int64
}
