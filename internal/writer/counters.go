package writer

import (
	"sync/atomic"

	"github.com/bft-labs/bqship/internal/ports"
)

// Counters is an in-memory MetricsSink.
type Counters struct {
	recordsSent              atomic.Int64
	bytesSent                atomic.Int64
	recordsAppended          atomic.Int64
	sendErrors               atomic.Int64
	recordsInSinceCheckpoint atomic.Int64
	appendedSinceCheckpoint  atomic.Int64
}

// CountersSnapshot is a point-in-time copy of Counters.
type CountersSnapshot struct {
	RecordsSent              int64
	BytesSent                int64
	RecordsAppended          int64
	SendErrors               int64
	RecordsInSinceCheckpoint int64
	AppendedSinceCheckpoint  int64
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) AddRecordsSent(n int64)              { c.recordsSent.Add(n) }
func (c *Counters) AddBytesSent(n int64)                { c.bytesSent.Add(n) }
func (c *Counters) AddRecordsAppended(n int64)          { c.recordsAppended.Add(n) }
func (c *Counters) AddSendErrors(n int64)               { c.sendErrors.Add(n) }
func (c *Counters) AddRecordsInSinceCheckpoint(n int64) { c.recordsInSinceCheckpoint.Add(n) }
func (c *Counters) AddAppendedSinceCheckpoint(n int64)  { c.appendedSinceCheckpoint.Add(n) }

// ResetCheckpointCounters zeroes the since-checkpoint values.
func (c *Counters) ResetCheckpointCounters() {
	c.recordsInSinceCheckpoint.Store(0)
	c.appendedSinceCheckpoint.Store(0)
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		RecordsSent:              c.recordsSent.Load(),
		BytesSent:                c.bytesSent.Load(),
		RecordsAppended:          c.recordsAppended.Load(),
		SendErrors:               c.sendErrors.Load(),
		RecordsInSinceCheckpoint: c.recordsInSinceCheckpoint.Load(),
		AppendedSinceCheckpoint:  c.appendedSinceCheckpoint.Load(),
	}
}

// MultiSink forwards every update to each of its sinks.
type MultiSink []ports.MetricsSink

func (m MultiSink) AddRecordsSent(n int64) {
	for _, s := range m {
		s.AddRecordsSent(n)
	}
}

func (m MultiSink) AddBytesSent(n int64) {
	for _, s := range m {
		s.AddBytesSent(n)
	}
}

func (m MultiSink) AddRecordsAppended(n int64) {
	for _, s := range m {
		s.AddRecordsAppended(n)
	}
}

func (m MultiSink) AddSendErrors(n int64) {
	for _, s := range m {
		s.AddSendErrors(n)
	}
}

func (m MultiSink) AddRecordsInSinceCheckpoint(n int64) {
	for _, s := range m {
		s.AddRecordsInSinceCheckpoint(n)
	}
}

func (m MultiSink) AddAppendedSinceCheckpoint(n int64) {
	for _, s := range m {
		s.AddAppendedSinceCheckpoint(n)
	}
}

func (m MultiSink) ResetCheckpointCounters() {
	for _, s := range m {
		s.ResetCheckpointCounters()
	}
}
