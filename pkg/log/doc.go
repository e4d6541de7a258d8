// Package log is the structured logging interface used across bqship.
//
// Components take a [Logger] and attach typed [Field] values. [New] builds
// the zerolog-backed implementation from the --log-level and --log-format
// settings:
//
//	logger, err := log.New(log.Options{Level: "debug", Format: log.FormatJSON})
//
// [With] binds fields to every message of a component:
//
//	taskLog := log.With(logger, log.Int("subtask", 3), log.String("stream", name))
//
// Tests and embedders that do not want output use [NewNoopLogger]. Any
// other logging library can be plugged in by implementing the four
// methods of Logger.
package log
