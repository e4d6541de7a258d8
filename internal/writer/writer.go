package writer

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/pkg/log"
)

// Config configures a Writer.
type Config struct {
	// SubtaskID identifies the parallel writer instance
	SubtaskID int

	// Table is the destination table parent
	// ("projects/p/datasets/d/tables/t")
	Table string

	// Guarantee selects the validator and stream type
	Guarantee domain.DeliveryGuarantee

	// EnablePooling shares connections between default streams
	EnablePooling bool

	// MaxAppendBytes bounds the framed size of one append request.
	// Zero selects domain.DefaultMaxAppendBytes.
	MaxAppendBytes int64

	// Resume reopens an exactly-once stream at a checkpointed position
	Resume *domain.StreamPosition

	// TraceID is attached to append requests
	TraceID string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Table == "" {
		return fmt.Errorf("%w: table is required", domain.ErrInvalidConfig)
	}
	if c.MaxAppendBytes < 0 || c.MaxAppendBytes > domain.MaxRequestBytes {
		return fmt.Errorf("%w: max append bytes must be in (0, %d]", domain.ErrInvalidConfig, domain.MaxRequestBytes)
	}
	if c.Resume != nil && c.Guarantee != domain.ExactlyOnce {
		return fmt.Errorf("%w: stream resume requires exactly-once delivery", domain.ErrInvalidConfig)
	}
	if c.Resume != nil && c.Resume.Offset < 0 {
		return fmt.Errorf("%w: negative resume offset %d", domain.ErrInvalidConfig, c.Resume.Offset)
	}
	return nil
}

// Writer batches records of type T into append requests.
// A Writer is not safe for concurrent use.
type Writer[T any] struct {
	cfg        Config
	serializer ports.Serializer[T]
	validator  Validator
	streams    *StreamManager
	buffer     *domain.RowBuffer
	queue      *CompletionQueue
	metrics    ports.MetricsSink
	logger     log.Logger

	streamName string
	offset     int64
	realigning bool

	// replayEnd is the row count of a finalized resumed stream. While
	// replaying, records up to that offset are already in the table.
	replaying bool
	replayEnd int64

	err    error
	closed bool
}

// New creates a writer. No connection is made until the first append.
func New[T any](cfg Config, serializer ports.Serializer[T], opts ...Option) (*Writer[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if serializer == nil {
		return nil, fmt.Errorf("%w: serializer is required", domain.ErrInvalidConfig)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.clientFactory == nil {
		return nil, fmt.Errorf("%w: client factory is required", domain.ErrInvalidConfig)
	}

	logger := log.With(o.logger, log.Int("subtask", cfg.SubtaskID))
	validator := o.validator
	if validator == nil {
		validator = NewValidator(cfg.Guarantee, o.metrics, logger)
	}

	w := &Writer[T]{
		cfg:        cfg,
		serializer: serializer,
		validator:  validator,
		streams:    NewStreamManager(o.clientFactory, logger),
		buffer:     domain.NewRowBuffer(cfg.MaxAppendBytes),
		queue:      NewCompletionQueue(),
		metrics:    o.metrics,
		logger:     logger,
	}
	if cfg.Resume != nil {
		w.streamName = cfg.Resume.Name
		w.offset = cfg.Resume.Offset
		w.realigning = true
	}
	return w, nil
}

// Write adds a record to the current batch, dispatching the batch first if
// the record would not fit. Acknowledged batches at the head of the queue
// are validated along the way, without blocking.
//
// Every call counts as a record in for the current checkpoint, including
// records rejected by the serializer or the size check, the same way the
// host framework counts records handed to a sink.
//
// A record that can never fit in a request returns *domain.RecordTooLargeError
// and leaves the writer usable.
func (w *Writer[T]) Write(ctx context.Context, record T) error {
	if err := w.usable(); err != nil {
		return err
	}
	w.metrics.AddRecordsInSinceCheckpoint(1)

	payload, err := w.serializer.Serialize(record)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSerialization, err)
	}
	row := domain.NewRow(payload)
	if !w.buffer.Fits(row) {
		return &domain.RecordTooLargeError{Size: row.FramedSize(), Limit: w.buffer.Ceiling()}
	}

	if w.replaying {
		return w.writeReplayed(ctx, row)
	}
	if w.realigning {
		return w.writeRealigning(ctx, row)
	}
	return w.add(ctx, row)
}

func (w *Writer[T]) add(ctx context.Context, row domain.Row) error {
	if err := w.drain(ctx, false); err != nil {
		return w.fail(err)
	}
	if !w.buffer.CanAccept(row) {
		if err := w.dispatch(ctx); err != nil {
			return w.fail(err)
		}
	}
	return w.buffer.Add(row)
}

// writeRealigning sends a resumed stream one row per request and waits for
// each acknowledgement until the service stops reporting rows as already
// written. Rows replayed after a restart need not fall on the batch
// boundaries of the failed attempt, and a batch straddling the end of the
// stream would be rejected as a whole.
//
// A resumed stream that was finalized before the checkpoint recorded it
// rejects both the reopen and the append with FailedPrecondition. All of
// its rows are committed, so the writer switches to replaying.
func (w *Writer[T]) writeRealigning(ctx context.Context, row domain.Row) error {
	start := w.offset
	if err := w.buffer.Add(row); err != nil {
		return err
	}
	before := w.duplicateRows()
	err := w.dispatch(ctx)
	if err == nil {
		err = w.drain(ctx, true)
	}
	if status.Code(err) == codes.FailedPrecondition {
		w.buffer.Clear()
		w.offset = start
		return w.retireFinalized(ctx, row)
	}
	if err != nil {
		return w.fail(err)
	}
	if w.duplicateRows() == before {
		w.realigning = false
		w.logger.Info("resumed stream realigned",
			log.String("stream", w.streamName),
			log.Int64("offset", w.offset),
		)
	}
	return nil
}

// retireFinalized reads the row count of the finalized resumed stream and
// starts replaying against it.
func (w *Writer[T]) retireFinalized(ctx context.Context, row domain.Row) error {
	rows, err := w.streams.FinalizeNamed(ctx, w.cfg.Table, w.streamName)
	if err != nil {
		return w.fail(err)
	}
	w.logger.Warn("resumed stream is already finalized, skipping rows it holds",
		log.String("stream", w.streamName),
		log.Int64("offset", w.offset),
		log.Int64("stream_rows", rows),
	)
	w.realigning = false
	w.replaying = true
	w.replayEnd = rows
	return w.writeReplayed(ctx, row)
}

// writeReplayed drops rows the finalized stream already holds. The first
// row past its end goes to a new stream.
func (w *Writer[T]) writeReplayed(ctx context.Context, row domain.Row) error {
	if w.offset < w.replayEnd {
		w.offset++
		return nil
	}
	w.logger.Info("replay complete, continuing on a new stream",
		log.String("finalized_stream", w.streamName),
		log.Int64("rows", w.replayEnd),
	)
	w.replaying = false
	w.streamName = ""
	w.offset = 0
	return w.add(ctx, row)
}

func (w *Writer[T]) duplicateRows() int64 {
	if d, ok := w.validator.(interface{ DuplicateRows() int64 }); ok {
		return d.DuplicateRows()
	}
	return 0
}

// Flush dispatches buffered rows and waits until every outstanding append
// has been validated. When final is true and the writer uses exactly-once
// delivery, the stream is finalized afterwards.
func (w *Writer[T]) Flush(ctx context.Context, final bool) error {
	if err := w.usable(); err != nil {
		return err
	}

	if err := w.dispatch(ctx); err != nil {
		return w.fail(err)
	}
	if err := w.drain(ctx, true); err != nil {
		return w.fail(err)
	}

	if final && w.validator.Guarantee() == domain.ExactlyOnce {
		rows, err := w.streams.Finalize(ctx)
		if err != nil {
			return w.fail(err)
		}
		if w.streams.Stream() != nil {
			w.logger.Info("stream finalized", log.String("stream", w.streamName), log.Int64("rows", rows))
		}
	}

	w.metrics.ResetCheckpointCounters()
	w.logger.Debug("flushed", log.Int64("offset", w.offset), log.Bool("final", final))
	return nil
}

// Close discards buffered and outstanding appends and releases the stream
// and client. Close is idempotent.
func (w *Writer[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if n := w.queue.Len(); n > 0 || !w.buffer.Empty() {
		w.logger.Warn("closing with unflushed rows",
			log.Int("buffered_rows", w.buffer.Len()),
			log.Int("outstanding_appends", n),
		)
	}
	w.buffer.Clear()
	w.queue.Clear()
	return w.streams.Close()
}

// Checkpoint returns the stream name and the number of rows dispatched so
// far. After a successful Flush every one of them has been validated.
func (w *Writer[T]) Checkpoint() domain.StreamPosition {
	return domain.StreamPosition{Name: w.streamName, Offset: w.offset}
}

// Guarantee returns the delivery guarantee in effect.
func (w *Writer[T]) Guarantee() domain.DeliveryGuarantee {
	return w.validator.Guarantee()
}

// Err returns the fatal error that stopped the writer, if any.
func (w *Writer[T]) Err() error {
	return w.err
}

func (w *Writer[T]) usable() error {
	if w.closed {
		return domain.ErrWriterClosed
	}
	return w.err
}

// fail records err as fatal unless it only reflects a canceled context.
func (w *Writer[T]) fail(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if w.err == nil {
		w.err = err
		w.logger.Error("writer failed", log.Err(err), log.Int64("offset", w.offset))
	}
	return err
}

// dispatch sends the buffered rows as one asynchronous append.
func (w *Writer[T]) dispatch(ctx context.Context) error {
	if w.buffer.Empty() {
		return nil
	}

	stream, err := w.openStream(ctx)
	if err != nil {
		return err
	}

	rows, size := w.buffer.DrainAndReset()
	count := int64(len(rows))
	start := w.offset

	completion, err := stream.Append(ctx, rows, w.validator.AppendOffset(start))
	if err != nil {
		w.metrics.AddSendErrors(count)
		return fmt.Errorf("%w: batch of %d rows at offset %d: %w", domain.ErrAppendFailed, count, start, err)
	}

	w.queue.Push(domain.PendingAppend{
		Completion:     completion,
		StartOffset:    start,
		ExpectedOffset: start + count,
		RowCount:       count,
		Bytes:          size,
	})
	w.metrics.AddRecordsSent(count)
	w.metrics.AddBytesSent(size)
	w.offset += count
	return nil
}

// drain validates completed appends from the head of the queue.
func (w *Writer[T]) drain(ctx context.Context, blocking bool) error {
	return w.queue.Drain(ctx, blocking, func(p domain.PendingAppend) error {
		offset, err := p.Completion.Wait(ctx)
		return w.validator.Validate(p, offset, err)
	})
}

func (w *Writer[T]) openStream(ctx context.Context) (ports.AppendStream, error) {
	if s := w.streams.Stream(); s != nil {
		return s, nil
	}
	s, err := w.streams.Open(ctx, ports.StreamSpec{
		Table:         w.cfg.Table,
		Name:          w.streamName,
		Type:          w.validator.StreamType(),
		Schema:        w.serializer.Schema(),
		EnablePooling: w.cfg.EnablePooling,
		TraceID:       w.cfg.TraceID,
	})
	if err != nil {
		return nil, err
	}
	w.streamName = s.Name()
	return s, nil
}
