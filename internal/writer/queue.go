package writer

import (
	"context"

	"github.com/bft-labs/bqship/internal/domain"
)

// CompletionQueue holds dispatched appends in dispatch order.
type CompletionQueue struct {
	items []domain.PendingAppend
}

// NewCompletionQueue creates an empty queue.
func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{}
}

// Push appends p at the tail.
func (q *CompletionQueue) Push(p domain.PendingAppend) {
	q.items = append(q.items, p)
}

// Len returns the number of outstanding appends.
func (q *CompletionQueue) Len() int {
	return len(q.items)
}

// Clear drops all outstanding appends without inspecting them.
func (q *CompletionQueue) Clear() {
	q.items = nil
}

// Drain removes appends from the head and passes them to fn.
//
// When blocking is false, Drain stops at the first unresolved head even if
// later entries are resolved. When blocking is true, Drain waits for every
// entry in order; if ctx is done while waiting, the head stays queued and
// ctx.Err() is returned. Drain stops at the first error returned by fn.
func (q *CompletionQueue) Drain(ctx context.Context, blocking bool, fn func(domain.PendingAppend) error) error {
	for len(q.items) > 0 {
		head := q.items[0]
		if !domain.IsResolved(head.Completion) {
			if !blocking {
				return nil
			}
			select {
			case <-head.Completion.Ready():
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		q.items[0] = domain.PendingAppend{}
		q.items = q.items[1:]

		if err := fn(head); err != nil {
			return err
		}
	}
	return nil
}
