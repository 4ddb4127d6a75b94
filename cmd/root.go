// Package cmd defines and implements the CLI commands for the
// alcalorscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avillegas/alcalorscraper/internal/config"
	"github.com/avillegas/alcalorscraper/internal/logging"
	"github.com/avillegas/alcalorscraper/internal/scraper"
	"github.com/avillegas/alcalorscraper/internal/store/postgres"
)

var (
	cfgFile    string
	concurrent int
	dbOnly     bool
	noDB       bool
)

// appKeyType is the key for storing the app in the command context.
type appKeyType string

const appKey appKeyType = "app"

// app bundles the services every subcommand needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alcalorscraper",
		Short: "Scrapes daily news articles from Alcalorpolitico.com",
		Long: `alcalorscraper retrieves the archive-by-date listings from
Alcalorpolitico.com, extracts structured article content with bounded
concurrency, and persists results to JSON files and/or PostgreSQL. A
resumable backfill mode walks the archive backward through history.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("concurrent") {
				cfg.Scraper.Concurrency = clampConcurrency(concurrent)
			}

			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, &app{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app); ok && a != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional)")
	cmd.PersistentFlags().IntVar(&concurrent, "concurrent", 0,
		fmt.Sprintf("max concurrent requests (clamped 1-%d)", config.MaxConcurrency))
	cmd.PersistentFlags().BoolVar(&dbOnly, "db-only", false, "skip JSON file output, write only to database")
	cmd.PersistentFlags().BoolVar(&noDB, "no-db", false, "skip database writes, write only JSON files")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newHealthCmd())

	return cmd
}

// Execute runs the CLI and returns a process exit code.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// clampConcurrency bounds the worker cap to the operator range.
func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > config.MaxConcurrency {
		return config.MaxConcurrency
	}
	return n
}

// buildPipeline assembles the fetch-and-extract pipeline and, unless
// disabled, the Postgres store. A store that cannot be reached degrades
// the run to file-only mode with a warning rather than aborting.
func buildPipeline(ctx context.Context, a *app) (*scraper.Pipeline, *postgres.Store, error) {
	cfg := a.cfg

	proxyURL, err := cfg.ProxyURL()
	if err != nil {
		return nil, nil, err
	}

	fetcher, err := scraper.NewFetcher(scraper.FetcherConfig{
		UserAgent:    cfg.Site.UserAgent,
		Timeout:      cfg.RequestTimeout(),
		ProxyURL:     proxyURL,
		Encoding:     cfg.Site.Encoding,
		Concurrency:  cfg.Scraper.Concurrency,
		RequestDelay: cfg.RequestDelay(),
		Policy: scraper.NewBackoffPolicy(
			cfg.HTTP.MaxRetries,
			time.Duration(cfg.HTTP.RetryDelaySeconds)*time.Second,
			time.Duration(cfg.HTTP.BackoffMaxSeconds)*time.Second,
		),
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init fetcher: %w", err)
	}

	var st *postgres.Store
	if !noDB {
		st, err = postgres.NewStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MinConns: cfg.DB.PoolMinConns,
			MaxConns: cfg.DB.PoolMaxConns,
		}, a.logger)
		if err != nil {
			a.logger.Warn("database unavailable, continuing in file-only mode", zap.Error(err))
			st = nil
		}
	}

	var files *scraper.FileSink
	if !dbOnly && cfg.Scraper.SaveJSON {
		files, err = scraper.NewFileSink(cfg.Scraper.OutputDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init file sink: %w", err)
		}
	}

	var sink scraper.ArticleSink
	if st != nil {
		sink = st
	}

	pipeline := scraper.NewPipeline(fetcher, scraper.NewPageParser(cfg.Site.BaseURL), sink, files,
		scraper.PipelineConfig{
			ArchiveURL:  cfg.ArchiveURL(),
			Source:      cfg.Site.SourceName,
			Concurrency: cfg.Scraper.Concurrency,
		}, a.logger)

	return pipeline, st, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(scraper.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}
