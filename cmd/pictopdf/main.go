// Package main is the pictopdf command line: it turns pictures into
// size-capped PDF documents and splits oversized documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/pictopdf/internal/catalog"
	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/logger"
	"github.com/local/pictopdf/internal/metrics"
	"github.com/local/pictopdf/internal/pipeline"
	"github.com/local/pictopdf/internal/storage"
)

// version is set at build time via ldflags.
var version = "dev"

// cfg is loaded once per invocation before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "pictopdf",
	Short: "Pack pictures into size-capped PDF documents",
	Long: `pictopdf normalizes pictures (orientation, bounds, JPEG quality), places
one per A4 page and rolls over to a new numbered document whenever the next
picture would push the current one past the size cap. Existing documents can
be split into page ranges that fit the same cap.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
		if v, _ := cmd.Flags().GetString("log-level"); v != "" {
			cfg.Logging.Level = v
		}

		if err := logger.Init(logger.Options{
			Level:        cfg.Logging.Level,
			Pretty:       cfg.Logging.Pretty,
			File:         cfg.Logging.File,
			MaxSizeMB:    cfg.Logging.MaxSizeMB,
			MaxBackups:   cfg.Logging.MaxBackups,
			MaxAgeDays:   cfg.Logging.MaxAgeDays,
			Compress:     cfg.Logging.Compress,
			SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
			AxiomAPIKey:  cfg.Axiom.APIKey,
			AxiomOrgID:   cfg.Axiom.OrgID,
			AxiomDataset: cfg.Axiom.Dataset,
			AxiomFlush:   cfg.Axiom.FlushInterval,
		}); err != nil {
			return err
		}
		metrics.Init()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if p := cfg.Metrics.TextfilePath; p != "" {
			if err := metrics.WriteTextfile(p); err != nil {
				log.Warn().Err(err).Str("path", p).Msg("failed to write metrics textfile")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (environment PICTOPDF_* overrides apply on top)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

// setOutputDir points the pipeline at dir, moving the default counter file along.
func setOutputDir(dir string) {
	if cfg.Counter.File == filepath.Join(cfg.Pipeline.OutputDir, ".sequence.json") {
		cfg.Counter.File = filepath.Join(dir, ".sequence.json")
	}
	cfg.Pipeline.OutputDir = dir
}

// capFlag returns the --cap flag in bytes, or zero to use the configured cap.
func capFlag(cmd *cobra.Command) (int64, error) {
	s, _ := cmd.Flags().GetString("cap")
	if s == "" {
		return 0, nil
	}
	n, err := config.ParseByteSize(s)
	if err != nil {
		return 0, fmt.Errorf("--cap: %w", err)
	}
	return n, nil
}

// newRunner wires the pipeline to the configured counter, catalog and
// storage. The returned cleanup must be called when the command ends.
func newRunner(ctx context.Context, progress pipeline.ProgressFunc) (*pipeline.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pipeline.CleanupStale(cfg.Pipeline.WorkDir, cfg.Pipeline.StaleAfter)

	counter, closeCounter, err := pipeline.NewCounter(cfg.Counter)
	if err != nil {
		return nil, cleanup, fmt.Errorf("sequence counter: %w", err)
	}
	closers = append(closers, func() { _ = closeCounter() })

	deps := pipeline.Dependencies{Counter: counter, Progress: progress}

	if cfg.Catalog.Path != "" {
		store, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Catalog = store
	}

	if cfg.Storage.Bucket != "" {
		pub, err := storage.NewS3Publisher(ctx, cfg.Storage)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		deps.Publisher = pub
	}

	return pipeline.New(cfg.Pipeline, deps), cleanup, nil
}

func logProgress(st pipeline.Status) {
	log.Info().Str("run_id", st.RunID).Str("stage", string(st.Stage)).Int("progress", st.Progress).Msg(st.Message)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
