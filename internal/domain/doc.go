// Package domain holds the value types the writer works with: rows and
// their framed request size ([Row]), the bounded batch of the next append
// ([RowBuffer]), dispatched appends awaiting their result ([PendingAppend]),
// the delivery guarantee of a stream and the per-subtask [Checkpoint].
//
// Nothing here performs I/O. Errors shared by every layer are declared in
// errors.go and are compared with errors.Is.
package domain
