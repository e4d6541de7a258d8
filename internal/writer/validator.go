package writer

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/pkg/log"
)

// Validator decides whether an acknowledged append is acceptable.
// It also owns the stream type and offset policy of its guarantee.
type Validator interface {
	// Guarantee returns the delivery guarantee implemented.
	Guarantee() domain.DeliveryGuarantee

	// StreamType returns the kind of stream appends must go to.
	StreamType() ports.StreamType

	// AppendOffset maps the writer's next offset to the offset argument
	// of the append request.
	AppendOffset(start int64) int64

	// Validate inspects the outcome of p. offset is the start offset
	// reported by the service. A non-nil return value is fatal.
	Validate(p domain.PendingAppend, offset int64, err error) error
}

// NewValidator returns the validator for g.
func NewValidator(g domain.DeliveryGuarantee, metrics ports.MetricsSink, logger log.Logger) Validator {
	if g == domain.ExactlyOnce {
		return NewExactlyOnceValidator(metrics, logger)
	}
	return NewAtLeastOnceValidator(metrics, logger)
}

// AtLeastOnceValidator accepts every successful append.
type AtLeastOnceValidator struct {
	metrics ports.MetricsSink
	logger  log.Logger
}

// NewAtLeastOnceValidator creates an at-least-once validator.
func NewAtLeastOnceValidator(metrics ports.MetricsSink, logger log.Logger) *AtLeastOnceValidator {
	return &AtLeastOnceValidator{metrics: metrics, logger: logger}
}

func (v *AtLeastOnceValidator) Guarantee() domain.DeliveryGuarantee { return domain.AtLeastOnce }

func (v *AtLeastOnceValidator) StreamType() ports.StreamType { return ports.DefaultStream }

func (v *AtLeastOnceValidator) AppendOffset(int64) int64 { return ports.NoOffset }

func (v *AtLeastOnceValidator) Validate(p domain.PendingAppend, _ int64, err error) error {
	if err != nil {
		v.metrics.AddSendErrors(p.RowCount)
		return fmt.Errorf("%w: batch of %d rows: %w", domain.ErrAppendFailed, p.RowCount, err)
	}
	v.metrics.AddRecordsAppended(p.RowCount)
	v.metrics.AddAppendedSinceCheckpoint(p.RowCount)
	return nil
}

// ExactlyOnceValidator checks every acknowledgement against the offset it
// was sent with.
//
// An AlreadyExists response means the rows were written by an earlier
// attempt and is tolerated. An OutOfRange response or a mismatching
// reported offset is fatal.
type ExactlyOnceValidator struct {
	metrics ports.MetricsSink
	logger  log.Logger

	committed  int64
	duplicates int64
}

// NewExactlyOnceValidator creates an exactly-once validator.
func NewExactlyOnceValidator(metrics ports.MetricsSink, logger log.Logger) *ExactlyOnceValidator {
	return &ExactlyOnceValidator{metrics: metrics, logger: logger}
}

func (v *ExactlyOnceValidator) Guarantee() domain.DeliveryGuarantee { return domain.ExactlyOnce }

func (v *ExactlyOnceValidator) StreamType() ports.StreamType { return ports.CommittedStream }

func (v *ExactlyOnceValidator) AppendOffset(start int64) int64 { return start }

func (v *ExactlyOnceValidator) Validate(p domain.PendingAppend, offset int64, err error) error {
	start := p.StartOffset

	if err != nil {
		switch status.Code(err) {
		case codes.AlreadyExists:
			v.duplicates += p.RowCount
			v.advance(p.ExpectedOffset)
			v.logger.Warn("rows already present in stream, skipping",
				log.Int64("start_offset", start),
				log.Int64("rows", p.RowCount),
			)
			return nil
		case codes.OutOfRange:
			v.metrics.AddSendErrors(p.RowCount)
			return fmt.Errorf("%w: append at offset %d beyond end of stream: %w", domain.ErrOffsetGap, start, err)
		default:
			v.metrics.AddSendErrors(p.RowCount)
			return fmt.Errorf("%w: batch of %d rows at offset %d: %w", domain.ErrAppendFailed, p.RowCount, start, err)
		}
	}

	if offset != start {
		v.metrics.AddSendErrors(p.RowCount)
		kind := "gap"
		if offset < start {
			kind = "duplication"
		}
		return fmt.Errorf("%w: reported offset %d, expected %d (%s)", domain.ErrOffsetMismatch, offset, start, kind)
	}

	v.advance(p.ExpectedOffset)
	v.metrics.AddRecordsAppended(p.RowCount)
	v.metrics.AddAppendedSinceCheckpoint(p.RowCount)
	return nil
}

// advance records end as the committed offset. Appends are validated in
// offset order, so the last one wins, including after a switch to a new
// stream.
func (v *ExactlyOnceValidator) advance(end int64) {
	v.committed = end
}

// CommittedOffset returns the end offset of the last validated append.
func (v *ExactlyOnceValidator) CommittedOffset() int64 {
	return v.committed
}

// DuplicateRows returns the number of rows the service reported as
// already written.
func (v *ExactlyOnceValidator) DuplicateRows() int64 {
	return v.duplicates
}
