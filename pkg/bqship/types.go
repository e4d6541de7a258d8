package bqship

import (
	"github.com/bft-labs/bqship/internal/adapters/prometheus"
	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/internal/writer"
)

// DeliveryGuarantee selects how duplicates are handled across restarts.
type DeliveryGuarantee = domain.DeliveryGuarantee

const (
	AtLeastOnce = domain.AtLeastOnce
	ExactlyOnce = domain.ExactlyOnce
)

// ParseDeliveryGuarantee converts "at-least-once" or "exactly-once".
func ParseDeliveryGuarantee(s string) (DeliveryGuarantee, error) {
	return domain.ParseDeliveryGuarantee(s)
}

type (
	// Checkpoint is the committed position of one subtask.
	Checkpoint = domain.Checkpoint

	// SourcePosition locates a record in the input directory.
	SourcePosition = domain.SourcePosition

	// StreamClient creates append streams.
	StreamClient = ports.StreamClient

	// AppendStream is an open write stream.
	AppendStream = ports.AppendStream

	// StreamSpec describes the stream to create or reopen.
	StreamSpec = ports.StreamSpec

	// ClientFactory creates a StreamClient for every writer.
	ClientFactory = ports.ClientFactory

	// Serializer converts one input line to a serialized row.
	Serializer = ports.Serializer[[]byte]

	// Stats are the writer counters of one subtask.
	Stats = writer.CountersSnapshot

	// Metrics holds the Prometheus series of a Sink.
	Metrics = prometheus.Metrics
)

// NewMetrics creates the Prometheus metrics in a new registry.
// Serve them with Metrics.Handler.
func NewMetrics() *Metrics {
	return prometheus.NewMetrics()
}

// Errors returned by a Sink, for use with errors.Is.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrRecordTooLarge  = domain.ErrRecordTooLarge
	ErrSerialization   = domain.ErrSerialization
	ErrStreamCreate    = domain.ErrStreamCreate
	ErrAppendFailed    = domain.ErrAppendFailed
	ErrOffsetMismatch  = domain.ErrOffsetMismatch
	ErrOffsetGap       = domain.ErrOffsetGap
)
