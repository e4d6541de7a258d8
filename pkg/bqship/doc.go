// Package bqship ships newline-delimited JSON files into a BigQuery table
// through the Storage Write API.
//
// Files in the input directory are spread across parallel subtasks by name.
// Each subtask reads its files in order, batches rows into append requests
// and persists a checkpoint of its input position and stream offset after
// every successful flush. A restarted subtask resumes from its checkpoint.
//
// # Basic Usage
//
//	cfg := bqship.Config{
//	    Project:  "my-project",
//	    Dataset:  "analytics",
//	    Table:    "events",
//	    InputDir: "/var/spool/events",
//	    Delivery: bqship.ExactlyOnce,
//	}
//
//	sink, err := bqship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sink.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := sink.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Delivery Guarantees
//
// [AtLeastOnce] appends to the table's default stream. Rows written after
// the last checkpoint are written again after a restart.
//
// [ExactlyOnce] appends to a dedicated committed stream at explicit offsets.
// After a restart the stream is reopened at the checkpointed offset and rows
// the service already holds are skipped. With [Config.Once] the stream is
// finalized when the input is drained.
//
// # Row Encoding
//
// Every input line is a JSON object decoded against the table schema. The
// schema comes from [WithSchema], [Config.SchemaFile] or the destination
// table itself. Use [WithSerializer] for other encodings. Records that
// cannot be encoded or exceed the request limit are skipped and reported
// through [EventHandler.OnRecordSkipped].
//
// # Events and Metrics
//
// Implement [EventHandler] (embedding [BaseEventHandler]) and pass it via
// [WithEventHandler] to observe state changes, checkpoints, skipped records
// and task failures. [WithMetrics] exports the writer counters to
// Prometheus.
//
// # Lifecycle States
//
// A Sink can be in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Use [Sink.Status] to
// query the current state and [Sink.Wait] to block until a run ends.
package bqship
