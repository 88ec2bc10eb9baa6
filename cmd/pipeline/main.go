package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"betterlife-pipeline/internal/config"
	"betterlife-pipeline/internal/pipeline"
	"betterlife-pipeline/internal/store"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "pipeline exports Better Life Index survey responses to paged JSON/CSV files and zip archives.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "pipeline.json5", "path to an optional JSON5 config file")
}

func setupLogger(level slog.Level) {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(cfg.SlogLevel())

	var ledger pipeline.Ledger
	if path := cfg.ResolvedLedgerPath(); path != "" {
		db, err := store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer db.Close()
		if n, err := db.PurgeResponses(ctx, time.Now()); err != nil {
			slog.Warn("failed to purge expired responses", "err", err)
		} else if n > 0 {
			slog.Debug("purged expired responses", "count", n)
		}
		ledger = db
	}

	_, err = pipeline.New(cfg, ledger).Run(ctx)
	return err
}

func main() {
	setupLogger(slog.LevelInfo)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("pipeline failed", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
