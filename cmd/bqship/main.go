package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/bqship/internal/adapters/bigquery"
	"github.com/bft-labs/bqship/internal/adapters/memory"
	"github.com/bft-labs/bqship/internal/cliconfig"
	"github.com/bft-labs/bqship/pkg/bqship"
	"github.com/bft-labs/bqship/pkg/log"
	"github.com/bft-labs/bqship/plugins/inputcleanup"
)

const helpDescription = `
Ship newline-delimited JSON files into BigQuery through the Storage Write API.

Highlights:
  - Batches rows into append requests just under the 10 MB request limit.
  - At-least-once delivery on the default stream, or exactly-once delivery
    on committed streams with offsets that survive restarts.
  - Spreads input files across parallel subtasks, each with its own checkpoint.
  - Follows the input directory for new data, or drains it once and exits.
  - Configure via file (TOML or YAML), BQSHIP_* environment variables, or flags.
`

var exampleUsage = strings.TrimSpace(`
  bqship --project my-project --dataset analytics --table events --input-dir /var/spool/events
  bqship --config $HOME/.bqship/config.yaml --delivery exactly-once --once
  bqship --dry-run --schema-file schema.json --input-dir ./testdata --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var follow bool

	root := &cobra.Command{
		Use:           "bqship",
		Short:         "Ship newline-delimited JSON files into BigQuery",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Config file first (default $HOME/.bqship/config.toml), then env, then flags
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			// --follow is the inverse of --once
			if changed["follow"] {
				cfg.Once = !follow
				changed["once"] = true
			}

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cliconfig.ResolveProject(&cfg); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := log.New(log.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})
			if err != nil {
				return err
			}
			zl := logger.Logger()
			zl.Info().Interface("config", cfg).Msg("configuration")

			return run(cmd.Context(), cfg, logger)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file, TOML or YAML (default: $HOME/.bqship/config.toml)")
	f.StringVar(&cfg.Project, "project", cfg.Project, "Google Cloud project (defaults to project_id of the credentials)")
	f.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "destination dataset")
	f.StringVar(&cfg.Table, "table", cfg.Table, "destination table")
	f.StringVar(&cfg.CredentialsFile, "credentials", cfg.CredentialsFile, "service account key file (defaults to application default credentials)")

	f.StringVar(&cfg.InputDir, "input-dir", cfg.InputDir, "directory of .ndjson/.jsonl files to ship")
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "checkpoint directory (defaults to <input-dir>/.bqship)")

	f.StringVar(&cfg.Delivery, "delivery", cfg.Delivery, "delivery guarantee: at-least-once or exactly-once")
	f.BoolVar(&cfg.Pooling, "pooling", cfg.Pooling, "share one multiplexed connection between subtasks")
	f.IntVar(&cfg.Parallelism, "parallelism", cfg.Parallelism, "number of parallel subtasks")
	f.Int64Var(&cfg.MaxAppendBytes, "max-append-bytes", cfg.MaxAppendBytes, "maximum bytes per append request")
	f.BoolVar(&cfg.DiscardUnknown, "discard-unknown", cfg.DiscardUnknown, "drop JSON fields missing from the table schema")

	f.DurationVar(&cfg.CheckpointInterval, "checkpoint-interval", cfg.CheckpointInterval, "time between checkpoints")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval when waiting for input")
	f.BoolVar(&cfg.Once, "once", cfg.Once, "ship available input and exit")
	f.BoolVar(&follow, "follow", true, "keep following the input directory (inverse of --once)")

	f.StringVar(&cfg.SchemaFile, "schema-file", cfg.SchemaFile, "table schema in bq JSON format (defaults to the live table schema)")
	f.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "ship into an in-memory table instead of BigQuery")

	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (disabled when empty)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")
	f.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "restarts of a failed subtask before exiting (0 disables)")

	f.BoolVar(&cfg.Cleanup, "cleanup", cfg.Cleanup, "remove committed input files above the high watermark")
	f.DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "time between cleanup checks")
	f.Int64Var(&cfg.CleanupHighWatermark, "cleanup-high-watermark", cfg.CleanupHighWatermark, "input size in bytes above which cleanup starts")
	f.Int64Var(&cfg.CleanupLowWatermark, "cleanup-low-watermark", cfg.CleanupLowWatermark, "input size in bytes cleanup reduces to")

	if err := root.Execute(); err != nil {
		log.Stderr().Error("bqship", log.Err(err))
		os.Exit(1)
	}
}

func run(parent context.Context, cfg cliconfig.Config, logger log.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	guarantee, err := cfg.Guarantee()
	if err != nil {
		return err
	}

	maxRestarts := cfg.MaxRestarts
	if maxRestarts == 0 {
		maxRestarts = -1
	}

	libCfg := bqship.Config{
		Project:            cfg.Project,
		Dataset:            cfg.Dataset,
		Table:              cfg.Table,
		CredentialsFile:    cfg.CredentialsFile,
		InputDir:           cfg.InputDir,
		StateDir:           cfg.StateDir,
		Delivery:           guarantee,
		EnablePooling:      cfg.Pooling,
		Parallelism:        cfg.Parallelism,
		MaxAppendBytes:     cfg.MaxAppendBytes,
		CheckpointInterval: cfg.CheckpointInterval,
		PollInterval:       cfg.PollInterval,
		Once:               cfg.Once,
		MaxRestarts:        maxRestarts,
		SchemaFile:         cfg.SchemaFile,
		DiscardUnknown:     cfg.DiscardUnknown,
		TraceID:            "bqship:" + uuid.NewString(),
	}

	opts := []bqship.Option{bqship.WithLogger(logger)}

	var dryRun *memory.Service
	if cfg.DryRun {
		dryRun = memory.NewService()
		opts = append(opts, bqship.WithClientFactory(dryRun.ClientFactory()))
		logger.Warn("dry run: rows are kept in memory and discarded on exit")
	}

	if cfg.Cleanup {
		opts = append(opts, inputcleanup.WithInputCleanup(inputcleanup.Config{
			CheckInterval: cfg.CleanupInterval,
			HighWatermark: cfg.CleanupHighWatermark,
			LowWatermark:  cfg.CleanupLowWatermark,
		}))
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		m := bqship.NewMetrics()
		m.Registry().MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, bqship.WithMetrics(m))

		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", log.Err(err))
			}
		}()
		logger.Info("serving metrics", log.String("addr", cfg.MetricsAddr))
	}

	sink, err := bqship.New(libCfg, opts...)
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}
	if err := sink.Start(ctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- sink.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, stopping")
		if err := sink.Stop(); err != nil && !errors.Is(err, bqship.ErrNotRunning) {
			runErr = fmt.Errorf("stop sink: %w", err)
		}
		if err := <-waitErr; err != nil && runErr == nil {
			runErr = err
		}
	case runErr = <-waitErr:
		if runErr != nil {
			logger.Error("sink crashed", log.Err(runErr))
		}
	}

	if dryRun != nil {
		table := bigquery.TableParent(cfg.Project, cfg.Dataset, cfg.Table)
		logger.Info("dry run complete", log.Int("rows", len(dryRun.Rows(table))))
	}
	for i := 0; i < cfg.Parallelism; i++ {
		st := sink.Stats(i)
		logger.Info("subtask summary",
			log.Int("subtask", i),
			log.Int64("records_appended", st.RecordsAppended),
			log.Int64("bytes_sent", st.BytesSent),
			log.Int64("send_errors", st.SendErrors),
		)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}
