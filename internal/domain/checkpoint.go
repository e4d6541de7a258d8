package domain

import "time"

// SourcePosition identifies the next unread record of a record source.
type SourcePosition struct {
	// File is the input file currently being read
	File string `json:"file"`

	// Offset is the byte offset of the next unread line in File
	Offset int64 `json:"offset"`
}

// IsZero returns true if no position has been recorded.
func (p SourcePosition) IsZero() bool {
	return p.File == "" && p.Offset == 0
}

// StreamPosition identifies how far a writer has appended to its stream.
type StreamPosition struct {
	// Name is the fully qualified write stream name
	Name string `json:"name"`

	// Offset is the number of rows dispatched to the stream
	Offset int64 `json:"offset"`
}

// Checkpoint is the persistent state of one subtask.
// It is saved after every successful flush so a restarted subtask can
// resume reading and, for exactly-once, resume appending to the same stream.
type Checkpoint struct {
	// Subtask is the index of the parallel writer instance
	Subtask int `json:"subtask"`

	// Guarantee is the delivery guarantee the checkpoint was written under
	Guarantee DeliveryGuarantee `json:"guarantee"`

	// Source is the input position covered by the checkpoint
	Source SourcePosition `json:"source"`

	// Stream is the append stream position covered by the checkpoint
	Stream StreamPosition `json:"stream"`

	// Records is the total number of records acknowledged by this subtask
	Records int64 `json:"records"`

	// CommittedAt is the time of the last successful flush
	CommittedAt time.Time `json:"committed_at"`
}

// IsEmpty returns true if the checkpoint has not been initialized.
func (c Checkpoint) IsEmpty() bool {
	return c.Source.IsZero() && c.Stream.Name == "" && c.CommittedAt.IsZero()
}

// Resumable returns true if the stream position can be reused after a
// restart. Only exactly-once streams carry offsets worth resuming.
func (c Checkpoint) Resumable(g DeliveryGuarantee) bool {
	return g == ExactlyOnce && c.Guarantee == ExactlyOnce && c.Stream.Name != ""
}
