package bqship

import (
	"context"

	"github.com/bft-labs/bqship/pkg/log"
)

// Plugin extends a Sink with work that runs alongside the subtasks.
// Plugins are initialized in registration order on Start and shut down in
// reverse order when the Sink stops.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. Background work must stop when ctx is
	// canceled or Shutdown is called.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// PluginConfig describes the running Sink to its plugins.
type PluginConfig struct {
	InputDir    string
	StateDir    string
	Extensions  []string
	Parallelism int
	Logger      log.Logger
}
