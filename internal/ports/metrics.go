package ports

// MetricsSink receives writer counters.
// Implementations must be safe for concurrent use because metrics are
// usually scraped from another goroutine.
type MetricsSink interface {
	AddRecordsSent(n int64)
	AddBytesSent(n int64)
	AddRecordsAppended(n int64)
	AddSendErrors(n int64)
	AddRecordsInSinceCheckpoint(n int64)
	AddAppendedSinceCheckpoint(n int64)

	// ResetCheckpointCounters zeroes the two since-checkpoint values.
	ResetCheckpointCounters()
}
