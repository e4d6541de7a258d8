package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the bqship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("bqship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("bqship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("bqship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("bqship: invalid configuration")

	// ErrRecordTooLarge is returned when a single serialized row exceeds the
	// append request ceiling. The record can never be sent and must be fixed
	// or dropped by the caller.
	ErrRecordTooLarge = errors.New("bqship: record exceeds append request limit")

	// ErrSerialization is returned when a record cannot be converted to a row.
	ErrSerialization = errors.New("bqship: serialization failed")

	// ErrBufferFull is returned by RowBuffer.Add when the row does not fit.
	ErrBufferFull = errors.New("bqship: row buffer full")

	// ErrStreamCreate is returned when the append stream cannot be created.
	ErrStreamCreate = errors.New("bqship: unable to create append stream")

	// ErrAppendFailed is returned when an append request or its response failed.
	ErrAppendFailed = errors.New("bqship: append failed")

	// ErrOffsetMismatch is returned when an acknowledged append reports a
	// different start offset than the one the writer assigned.
	ErrOffsetMismatch = errors.New("bqship: append offset mismatch")

	// ErrOffsetGap is returned when the service rejects an offset beyond the
	// end of the stream.
	ErrOffsetGap = errors.New("bqship: append offset gap")

	// ErrWriterClosed is returned by Write and Flush after Close.
	ErrWriterClosed = errors.New("bqship: writer closed")
)

// RecordTooLargeError describes a row that can never fit in an append request.
type RecordTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *RecordTooLargeError) Error() string {
	return fmt.Sprintf("%s: row of %d bytes, limit %d bytes", ErrRecordTooLarge, e.Size, e.Limit)
}

// Is reports whether target is ErrRecordTooLarge.
func (e *RecordTooLargeError) Is(target error) bool {
	return target == ErrRecordTooLarge
}
