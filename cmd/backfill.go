package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avillegas/alcalorscraper/internal/api"
	"github.com/avillegas/alcalorscraper/internal/backfill"
	"github.com/avillegas/alcalorscraper/internal/store"
)

// newBackfillCmd creates the backfill command that walks the archive
// backward through history.
func newBackfillCmd() *cobra.Command {
	var (
		resume    bool
		startFlag string
		endFlag   string
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Scrape historical archive dates, newest first",
		Long: `Walks the archive backward from the end date toward the start
date, checkpointing after every day so an interrupted run resumes where
it left off. Without --start-date the earliest archived date is
discovered by binary search over listing emptiness.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			cfg := backfill.Config{
				Source:     a.cfg.Site.SourceName,
				ProbeDelay: time.Duration(a.cfg.Backfill.ProbeDelayMs) * time.Millisecond,
				BatchSize:  a.cfg.Backfill.BatchSize,
				Resume:     resume,
			}
			if startFlag == "" {
				startFlag = a.cfg.Backfill.StartDate
			}
			if startFlag != "" {
				if cfg.StartDate, err = parseDate(startFlag); err != nil {
					return err
				}
			}
			if endFlag != "" {
				if cfg.EndDate, err = parseDate(endFlag); err != nil {
					return err
				}
			}

			pipeline, st, err := buildPipeline(cmd.Context(), a)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			if a.cfg.Monitor.Enabled {
				var checker api.HealthChecker
				if st != nil {
					checker = st
				}
				server := api.NewServer(a.cfg.Monitor.Port, checker, a.logger)
				server.Start()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
					defer cancel()
					if err := server.Shutdown(shutdownCtx); err != nil {
						a.logger.Warn("monitor shutdown", zap.Error(err))
					}
				}()
			}

			var progress store.ProgressStore
			if st != nil {
				progress = st
			} else if resume {
				a.logger.Warn("resume requested without a database, starting fresh")
			}

			controller := backfill.New(pipeline, progress, cfg, a.logger)
			return controller.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpoint")
	cmd.Flags().StringVar(&startFlag, "start-date", "", "oldest date to backfill (YYYY-MM-DD, discovered when omitted)")
	cmd.Flags().StringVar(&endFlag, "end-date", "", "newest date to backfill (YYYY-MM-DD, defaults to yesterday)")

	return cmd
}
