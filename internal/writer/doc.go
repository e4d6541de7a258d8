// Package writer implements the asynchronous batched-append writer.
//
// A Writer serializes records into rows, packs rows into append requests
// bounded by a byte ceiling, and dispatches each request to a write stream
// without waiting for the acknowledgement. Acknowledgements are validated
// in dispatch order by a Validator chosen from the delivery guarantee:
//
//   - at-least-once writes to the table's default stream and only checks
//     for errors
//   - exactly-once writes to a committed stream with explicit offsets and
//     checks that every acknowledgement matches the offset it was sent with
//
// Flush dispatches whatever is buffered and blocks until every outstanding
// request has been validated, which is what a checkpoint barrier needs.
//
// A Writer is driven by a single goroutine. Completions are resolved on
// transport goroutines and only read by the writer.
package writer
