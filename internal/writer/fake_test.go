package writer

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/bft-labs/bqship/internal/async"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/pkg/log"
)

// bytesSerializer passes records through unchanged.
type bytesSerializer struct {
	fail error
}

func (s bytesSerializer) Serialize(record []byte) ([]byte, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return record, nil
}

func (bytesSerializer) Schema() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{}
}

type appendCall struct {
	rows   [][]byte
	offset int64
	result *async.Result
}

// fakeStream records appends. With manual set, completions stay
// unresolved until the test resolves them.
type fakeStream struct {
	name      string
	manual    bool
	appendErr error
	ackErr    error
	ackQueue  []error
	closeErr  error
	finalized bool
	closed    int
	appends   []*appendCall
}

func (s *fakeStream) Name() string { return s.name }

func (s *fakeStream) Append(ctx context.Context, rows [][]byte, offset int64) (ports.Completion, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	call := &appendCall{rows: rows, offset: offset, result: async.NewResult()}
	s.appends = append(s.appends, call)
	if !s.manual {
		start := offset
		if start < 0 {
			start = 0
		}
		ackErr := s.ackErr
		if len(s.ackQueue) > 0 {
			ackErr, s.ackQueue = s.ackQueue[0], s.ackQueue[1:]
		}
		call.result.Resolve(start, ackErr)
	}
	return call.result, nil
}

func (s *fakeStream) Finalize(ctx context.Context) (int64, error) {
	s.finalized = true
	var rows int64
	for _, a := range s.appends {
		rows += int64(len(a.rows))
	}
	return rows, nil
}

func (s *fakeStream) Close() error {
	s.closed++
	return s.closeErr
}

type fakeClient struct {
	stream    *fakeStream
	createErr error
	closeErr  error
	specs     []ports.StreamSpec
	closed    int

	finalizedRows  int64
	finalizeErr    error
	finalizedNames []string
}

func (c *fakeClient) CreateStream(ctx context.Context, spec ports.StreamSpec) (ports.AppendStream, error) {
	c.specs = append(c.specs, spec)
	if c.createErr != nil {
		return nil, c.createErr
	}
	if spec.Name != "" {
		c.stream.name = spec.Name
	}
	return c.stream, nil
}

func (c *fakeClient) FinalizeStream(ctx context.Context, table, name string) (int64, error) {
	c.finalizedNames = append(c.finalizedNames, name)
	if c.finalizeErr != nil {
		return 0, c.finalizeErr
	}
	return c.finalizedRows, nil
}

func (c *fakeClient) Close() error {
	c.closed++
	return c.closeErr
}

func (c *fakeClient) factory() ports.ClientFactory {
	return func(context.Context) (ports.StreamClient, error) {
		return c, nil
	}
}

func newFakeClient() *fakeClient {
	return &fakeClient{stream: &fakeStream{name: "projects/p/datasets/d/tables/t/streams/_default"}}
}

func failingFactory(err error) ports.ClientFactory {
	return func(context.Context) (ports.StreamClient, error) {
		return nil, err
	}
}

// mockLogger captures warnings and errors.
type mockLogger struct {
	log.NoopLogger
	warnings []string
	errors   []string
}

func (m *mockLogger) Warn(msg string, fields ...log.Field) {
	m.warnings = append(m.warnings, msg)
}

func (m *mockLogger) Error(msg string, fields ...log.Field) {
	m.errors = append(m.errors, msg)
}

var errBoom = errors.New("boom")

func payload(n int) []byte {
	return []byte(fmt.Sprintf("%0*d", n, 0))
}
