package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avillegas/alcalorscraper/internal/store/postgres"
)

// newHealthCmd creates the health command. Unlike scrape and backfill,
// an unreachable database is a hard failure here.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity and report stored article counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			st, err := postgres.NewStore(cmd.Context(), postgres.Config{
				DSN:      a.cfg.DB.DSN,
				MinConns: a.cfg.DB.PoolMinConns,
				MaxConns: a.cfg.DB.PoolMaxConns,
			}, a.logger)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer st.Close()

			if err := st.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("health check: %w", err)
			}

			count, err := st.ArticleCount(cmd.Context(), a.cfg.Site.SourceName)
			if err != nil {
				return fmt.Errorf("count articles: %w", err)
			}

			a.logger.Info("database healthy",
				zap.String("source", a.cfg.Site.SourceName),
				zap.Int64("articles", count),
			)
			return nil
		},
	}
}
