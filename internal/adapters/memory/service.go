// Package memory implements an in-memory append stream service.
//
// It mimics the offset rules of the Storage Write API closely enough for
// dry runs and tests: the default stream ignores offsets, committed streams
// require them and reject duplicates with AlreadyExists and gaps with
// OutOfRange. Acknowledgements resolve on a separate goroutine.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"

	"github.com/bft-labs/bqship/internal/async"
	"github.com/bft-labs/bqship/internal/ports"
)

// Service holds tables and streams.
type Service struct {
	mu       sync.Mutex
	streams  map[string]*streamState
	order    []string
	ackDelay time.Duration

	appendFailures []error
	ackFailures    []error

	clientsOpened int
	clientsClosed int
}

type streamState struct {
	name      string
	table     string
	kind      ports.StreamType
	rows      [][]byte
	finalized bool
}

// Option configures a Service.
type Option func(*Service)

// WithAckDelay delays every acknowledgement.
func WithAckDelay(d time.Duration) Option {
	return func(s *Service) {
		s.ackDelay = d
	}
}

// NewService creates an empty service.
func NewService(opts ...Option) *Service {
	s := &Service{streams: make(map[string]*streamState)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientFactory returns a factory producing clients of this service.
func (s *Service) ClientFactory() ports.ClientFactory {
	return func(context.Context) (ports.StreamClient, error) {
		s.mu.Lock()
		s.clientsOpened++
		s.mu.Unlock()
		return &client{svc: s}, nil
	}
}

// FailNextAppend makes the next Append call fail synchronously with err.
func (s *Service) FailNextAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendFailures = append(s.appendFailures, err)
}

// FailNextAck makes the next accepted append resolve with err instead of
// storing its rows.
func (s *Service) FailNextAck(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackFailures = append(s.ackFailures, err)
}

// Rows returns all rows stored for table, stream by stream in creation order.
func (s *Service) Rows(table string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [][]byte
	for _, name := range s.order {
		st := s.streams[name]
		if st.table == table {
			out = append(out, st.rows...)
		}
	}
	return out
}

// StreamRows returns the rows of one stream.
func (s *Service) StreamRows(name string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[name]; ok {
		return append([][]byte(nil), st.rows...)
	}
	return nil
}

// Finalized returns true if the stream has been finalized.
func (s *Service) Finalized(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[name]
	return ok && st.finalized
}

// OpenClients returns the number of clients not yet closed.
func (s *Service) OpenClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientsOpened - s.clientsClosed
}

func (s *Service) createStream(spec ports.StreamSpec) (*streamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Table == "" {
		return nil, grpcStatus.Error(codes.InvalidArgument, "missing destination table")
	}

	if spec.Name != "" {
		st, ok := s.streams[spec.Name]
		if !ok {
			return nil, grpcStatus.Errorf(codes.NotFound, "stream %s not found", spec.Name)
		}
		if st.finalized {
			return nil, grpcStatus.Errorf(codes.FailedPrecondition, "stream %s is finalized", spec.Name)
		}
		return st, nil
	}

	var name string
	switch spec.Type {
	case ports.DefaultStream:
		name = spec.Table + "/streams/_default"
		if st, ok := s.streams[name]; ok {
			return st, nil
		}
	case ports.CommittedStream:
		name = spec.Table + "/streams/" + uuid.NewString()
	default:
		return nil, grpcStatus.Errorf(codes.InvalidArgument, "unsupported stream type %s", spec.Type)
	}

	st := &streamState{name: name, table: spec.Table, kind: spec.Type}
	s.streams[name] = st
	s.order = append(s.order, name)
	return st, nil
}

// apply stores rows and returns the start offset or a status error.
func (s *Service) apply(st *streamState, rows [][]byte, offset int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ackFailures) > 0 {
		err := s.ackFailures[0]
		s.ackFailures = s.ackFailures[1:]
		return 0, err
	}
	if st.finalized {
		return 0, grpcStatus.Errorf(codes.FailedPrecondition, "stream %s is finalized", st.name)
	}

	end := int64(len(st.rows))
	switch st.kind {
	case ports.DefaultStream:
		if offset != ports.NoOffset {
			return 0, grpcStatus.Error(codes.InvalidArgument, "offsets are not supported on the default stream")
		}
	case ports.CommittedStream:
		if offset == ports.NoOffset {
			offset = end
		}
		if offset < end {
			return 0, grpcStatus.Errorf(codes.AlreadyExists, "offset %d already written, stream end is %d", offset, end)
		}
		if offset > end {
			return 0, grpcStatus.Errorf(codes.OutOfRange, "offset %d beyond stream end %d", offset, end)
		}
	}

	for _, r := range rows {
		st.rows = append(st.rows, append([]byte(nil), r...))
	}
	return end, nil
}

func (s *Service) takeAppendFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.appendFailures) == 0 {
		return nil
	}
	err := s.appendFailures[0]
	s.appendFailures = s.appendFailures[1:]
	return err
}

func (s *Service) finalize(st *streamState) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.kind == ports.DefaultStream {
		return 0, grpcStatus.Error(codes.InvalidArgument, "the default stream cannot be finalized")
	}
	st.finalized = true
	return int64(len(st.rows)), nil
}

type client struct {
	svc    *Service
	closed bool
}

func (c *client) CreateStream(ctx context.Context, spec ports.StreamSpec) (ports.AppendStream, error) {
	if c.closed {
		return nil, fmt.Errorf("memory: client closed")
	}
	st, err := c.svc.createStream(spec)
	if err != nil {
		return nil, err
	}
	return &stream{svc: c.svc, state: st}, nil
}

func (c *client) FinalizeStream(ctx context.Context, table, name string) (int64, error) {
	if c.closed {
		return 0, fmt.Errorf("memory: client closed")
	}
	c.svc.mu.Lock()
	st, ok := c.svc.streams[name]
	c.svc.mu.Unlock()
	if !ok || st.table != table {
		return 0, grpcStatus.Errorf(codes.NotFound, "stream %s not found", name)
	}
	return c.svc.finalize(st)
}

func (c *client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.svc.mu.Lock()
	c.svc.clientsClosed++
	c.svc.mu.Unlock()
	return nil
}

type stream struct {
	svc    *Service
	state  *streamState
	closed bool
}

func (s *stream) Name() string { return s.state.name }

func (s *stream) Append(ctx context.Context, rows [][]byte, offset int64) (ports.Completion, error) {
	if s.closed {
		return nil, fmt.Errorf("memory: stream %s closed", s.state.name)
	}
	if err := s.svc.takeAppendFailure(); err != nil {
		return nil, err
	}

	start, err := s.svc.apply(s.state, rows, offset)
	result := async.NewResult()
	go func() {
		if s.svc.ackDelay > 0 {
			time.Sleep(s.svc.ackDelay)
		}
		result.Resolve(start, err)
	}()
	return result, nil
}

func (s *stream) Finalize(ctx context.Context) (int64, error) {
	return s.svc.finalize(s.state)
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
