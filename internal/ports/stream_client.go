package ports

import (
	"context"

	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/bft-labs/bqship/internal/domain"
)

// StreamType selects the kind of write stream.
type StreamType int

const (
	// DefaultStream is the table's shared stream. Rows are visible as soon as
	// they are acknowledged and offsets are not supported.
	DefaultStream StreamType = iota

	// CommittedStream is an application-created stream that accepts explicit
	// offsets. Rows are visible as soon as they are acknowledged.
	CommittedStream
)

func (t StreamType) String() string {
	switch t {
	case DefaultStream:
		return "default"
	case CommittedStream:
		return "committed"
	default:
		return "unknown"
	}
}

// NoOffset requests an append without an explicit offset.
const NoOffset int64 = -1

// StreamSpec describes the stream to create or reopen.
type StreamSpec struct {
	// Table is the destination table parent
	// ("projects/p/datasets/d/tables/t")
	Table string

	// Name is an existing stream to reopen. Empty creates a new stream.
	Name string

	// Type is the kind of stream to create
	Type StreamType

	// Schema describes the row payloads
	Schema *descriptorpb.DescriptorProto

	// EnablePooling shares connections between streams of the same client
	EnablePooling bool

	// TraceID is attached to requests for server-side diagnostics
	TraceID string
}

// StreamClient is a connection to the table store.
type StreamClient interface {
	// CreateStream opens a write stream described by spec.
	CreateStream(ctx context.Context, spec StreamSpec) (AppendStream, error)

	// FinalizeStream finalizes the named stream of table and returns its
	// row count. A stream that is already finalized reports its count.
	FinalizeStream(ctx context.Context, table, name string) (int64, error)

	// Close releases the client and its connections.
	Close() error
}

// AppendStream issues append requests on one write stream.
// Appends are asynchronous: the returned Completion resolves when the
// service acknowledges the rows.
type AppendStream interface {
	// Name returns the fully qualified stream name.
	Name() string

	// Append sends rows. offset is NoOffset or the stream offset of the
	// first row. An error means the request could not be sent at all.
	Append(ctx context.Context, rows [][]byte, offset int64) (Completion, error)

	// Finalize prevents further appends and returns the final row count.
	Finalize(ctx context.Context) (int64, error)

	// Close releases the stream.
	Close() error
}

// Completion is the eventual outcome of one append request.
type Completion = domain.Completion

// ClientFactory creates a StreamClient on demand.
type ClientFactory func(ctx context.Context) (StreamClient, error)
