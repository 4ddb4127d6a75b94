package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the scrape command for daily or date-range runs.
func newScrapeCmd() *cobra.Command {
	var (
		dateFlag  string
		startFlag string
		endFlag   string
		today     bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape articles for a single date or a date range",
		Long: `Fetches the archive listing for each requested date, extracts
every article concurrently, and persists the results. With --today the
run covers today plus the configured rescrape window, so recently
published articles that were edited after first capture get refreshed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			start, end, err := resolveWindow(dateFlag, startFlag, endFlag, today, a.cfg.Scraper.RescrapeDays)
			if err != nil {
				return err
			}

			pipeline, st, err := buildPipeline(cmd.Context(), a)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			a.logger.Info("starting scrape",
				zap.String("start", start.Format("2006-01-02")),
				zap.String("end", end.Format("2006-01-02")),
				zap.Int("concurrency", a.cfg.Scraper.Concurrency),
			)

			_, err = pipeline.ScrapeDateRange(cmd.Context(), start, end)
			return err
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "scrape a single date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&startFlag, "start-date", "", "start of date range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endFlag, "end-date", "", "end of date range (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&today, "today", false, "scrape today plus the configured rescrape window")

	return cmd
}

// resolveWindow turns the scrape flags into an inclusive [start, end]
// date pair. Exactly one selection mode must be used.
func resolveWindow(dateFlag, startFlag, endFlag string, today bool, rescrapeDays int) (time.Time, time.Time, error) {
	switch {
	case today:
		if dateFlag != "" || startFlag != "" || endFlag != "" {
			return time.Time{}, time.Time{}, errors.New("--today cannot be combined with other date flags")
		}
		now := time.Now().UTC()
		end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start := end
		if rescrapeDays > 0 {
			start = end.AddDate(0, 0, -rescrapeDays)
		}
		return start, end, nil

	case dateFlag != "":
		if startFlag != "" || endFlag != "" {
			return time.Time{}, time.Time{}, errors.New("--date cannot be combined with --start-date/--end-date")
		}
		day, err := parseDate(dateFlag)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return day, day, nil

	case startFlag != "" && endFlag != "":
		start, err := parseDate(startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := parseDate(endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", endFlag, startFlag)
		}
		return start, end, nil

	default:
		return time.Time{}, time.Time{}, errors.New("specify --date, --start-date with --end-date, or --today")
	}
}
