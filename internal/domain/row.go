package domain

const (
	// RowOverheadBytes is the protobuf framing added to every serialized row
	// inside an append request.
	RowOverheadBytes = 2

	// MaxRequestBytes is the largest append request the Storage Write API accepts.
	MaxRequestBytes int64 = 10_000_000

	// DefaultMaxAppendBytes is the ceiling used for batching: 95% of
	// MaxRequestBytes, leaving room for request metadata added by the transport.
	DefaultMaxAppendBytes = MaxRequestBytes * 95 / 100
)

// Row is a single serialized record ready to be appended.
// The payload must not be modified after the row is created.
type Row struct {
	payload []byte
}

// NewRow wraps a serialized payload.
func NewRow(payload []byte) Row {
	return Row{payload: payload}
}

// Payload returns the serialized bytes.
func (r Row) Payload() []byte {
	return r.payload
}

// FramedSize returns the number of bytes the row occupies in an append request.
func (r Row) FramedSize() int64 {
	return int64(len(r.payload)) + RowOverheadBytes
}
