// Package async provides a resolve-once result used to model the outcome of
// asynchronous append requests.
package async

import (
	"context"
	"sync"
)

// Result is a value that becomes available once, at some later point.
// The zero value is not usable; create results with NewResult.
type Result struct {
	once   sync.Once
	ready  chan struct{}
	offset int64
	err    error
}

// NewResult returns an unresolved result.
func NewResult() *Result {
	return &Result{ready: make(chan struct{})}
}

// Resolved returns a result that is already resolved.
func Resolved(offset int64, err error) *Result {
	r := NewResult()
	r.Resolve(offset, err)
	return r
}

// Resolve sets the outcome. Only the first call has an effect; it returns
// false for later calls.
func (r *Result) Resolve(offset int64, err error) bool {
	resolved := false
	r.once.Do(func() {
		r.offset = offset
		r.err = err
		close(r.ready)
		resolved = true
	})
	return resolved
}

// Ready is closed once the result is resolved.
func (r *Result) Ready() <-chan struct{} {
	return r.ready
}

// Done returns true if the result is resolved.
func (r *Result) Done() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Wait blocks until the result is resolved or ctx is done.
// A resolved result is returned even if ctx is already done.
func (r *Result) Wait(ctx context.Context) (int64, error) {
	if r.Done() {
		return r.offset, r.err
	}
	select {
	case <-r.ready:
		return r.offset, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
