package bqship

import (
	bq "cloud.google.com/go/bigquery"

	"github.com/bft-labs/bqship/pkg/log"
)

// Option configures optional behavior of a Sink.
type Option func(*options)

type options struct {
	logger        log.Logger
	eventHandler  EventHandler
	plugins       []Plugin
	clientFactory ClientFactory
	serializer    Serializer
	schema        bq.Schema
	metrics       *Metrics
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for Sink events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the Sink starts.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithClientFactory replaces the Storage Write API client, for example with
// an in-memory service in tests.
func WithClientFactory(factory ClientFactory) Option {
	return func(o *options) {
		o.clientFactory = factory
	}
}

// WithSchema sets the table schema used to encode JSON records.
func WithSchema(schema bq.Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithSerializer replaces JSON encoding entirely.
func WithSerializer(s Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// WithMetrics exports writer counters, checkpoints and restarts to m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
