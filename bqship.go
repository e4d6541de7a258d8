// Package bqship provides a lightweight agent for shipping newline-delimited
// JSON files into BigQuery.
//
// Example usage:
//
//	cfg := bqship.DefaultConfig()
//	cfg.Project = "my-project"
//	cfg.Dataset = "analytics"
//	cfg.Table = "events"
//	cfg.InputDir = "/var/spool/events"
//	if err := bqship.Run(context.Background(), cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// See package github.com/bft-labs/bqship/pkg/bqship for the embeddable Sink.
package bqship

import (
	"context"

	"github.com/bft-labs/bqship/pkg/bqship"
)

// Config holds the configuration of the shipping agent.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = bqship.Config

// Option configures optional behavior of the agent.
type Option = bqship.Option

// Run ships the input directory until ctx is canceled, the input is drained
// (cfg.Once) or a subtask fails beyond its restarts.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	sink, err := bqship.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := sink.Start(ctx); err != nil {
		return err
	}
	return sink.Wait()
}

// DefaultConfig returns a Config with default values.
// At minimum, set Project, Dataset, Table and InputDir before calling Run.
func DefaultConfig() Config {
	cfg := Config{Delivery: bqship.AtLeastOnce}
	cfg.SetDefaults()
	return cfg
}
