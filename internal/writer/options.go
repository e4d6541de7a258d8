package writer

import (
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/pkg/log"
)

// Option configures optional behavior of a Writer.
type Option func(*options)

type options struct {
	logger        log.Logger
	metrics       ports.MetricsSink
	clientFactory ports.ClientFactory
	validator     Validator
}

func defaultOptions() options {
	return options{
		logger:  log.NewNoopLogger(),
		metrics: NewCounters(),
	}
}

// WithLogger sets the logger. Messages carry a subtask field.
// If not provided, a no-op logger is used.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the sink that receives writer counters.
// If not provided, an in-memory Counters is used.
func WithMetrics(sink ports.MetricsSink) Option {
	return func(o *options) {
		if sink != nil {
			o.metrics = sink
		}
	}
}

// WithClientFactory sets how stream clients are created. Required.
func WithClientFactory(factory ports.ClientFactory) Option {
	return func(o *options) {
		o.clientFactory = factory
	}
}

// WithValidator replaces the validator derived from Config.Guarantee.
func WithValidator(v Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}
