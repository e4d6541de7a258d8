// Package ports declares what the writer and the task runner need from
// the outside: append streams ([StreamClient], [AppendStream]), row
// encoding ([Serializer]), counters ([MetricsSink]), checkpoint storage
// ([CheckpointRepository]) and input ([RecordSource]).
//
// BigQuery, file system, Prometheus and in-memory implementations live
// under internal/adapters.
package ports
