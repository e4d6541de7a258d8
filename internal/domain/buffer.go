package domain

// RowBuffer accumulates rows for the next append request.
// It maintains the invariant that TotalBytes equals the sum of the framed
// sizes of its rows and never exceeds the ceiling.
type RowBuffer struct {
	rows       [][]byte
	totalBytes int64
	ceiling    int64
}

// NewRowBuffer creates an empty buffer bounded by ceiling bytes.
// A non-positive ceiling selects DefaultMaxAppendBytes.
func NewRowBuffer(ceiling int64) *RowBuffer {
	if ceiling <= 0 {
		ceiling = DefaultMaxAppendBytes
	}
	return &RowBuffer{
		rows:    make([][]byte, 0),
		ceiling: ceiling,
	}
}

// CanAccept returns true if the row fits without exceeding the ceiling.
func (b *RowBuffer) CanAccept(row Row) bool {
	return b.totalBytes+row.FramedSize() <= b.ceiling
}

// Fits returns true if the row could ever be sent, i.e. it fits in an
// empty buffer.
func (b *RowBuffer) Fits(row Row) bool {
	return row.FramedSize() <= b.ceiling
}

// Add appends a row to the buffer.
// Returns ErrBufferFull and leaves the buffer untouched if the row does not fit.
func (b *RowBuffer) Add(row Row) error {
	if !b.CanAccept(row) {
		return ErrBufferFull
	}
	b.rows = append(b.rows, row.Payload())
	b.totalBytes += row.FramedSize()
	return nil
}

// DrainAndReset returns the buffered payloads and their framed size, then
// clears the buffer. The returned slice is owned by the caller.
func (b *RowBuffer) DrainAndReset() ([][]byte, int64) {
	rows, total := b.rows, b.totalBytes
	b.rows = make([][]byte, 0, len(rows))
	b.totalBytes = 0
	return rows, total
}

// Clear discards all buffered rows.
func (b *RowBuffer) Clear() {
	b.rows = b.rows[:0]
	b.totalBytes = 0
}

// Len returns the number of buffered rows.
func (b *RowBuffer) Len() int {
	return len(b.rows)
}

// Bytes returns the framed size of the buffered rows.
func (b *RowBuffer) Bytes() int64 {
	return b.totalBytes
}

// Empty returns true if the buffer has no rows.
func (b *RowBuffer) Empty() bool {
	return len(b.rows) == 0
}

// Ceiling returns the maximum framed size of a request.
func (b *RowBuffer) Ceiling() int64 {
	return b.ceiling
}
