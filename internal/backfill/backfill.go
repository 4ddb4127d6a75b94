// Package backfill walks the archive backward through history with
// resumable checkpointing.
package backfill

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avillegas/alcalorscraper/internal/metrics"
	"github.com/avillegas/alcalorscraper/internal/scraper"
	"github.com/avillegas/alcalorscraper/internal/store"
)

// DefaultFloorDate is the earliest candidate date for discovery; the
// archive does not reach further back.
var DefaultFloorDate = time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC)

// defaultBatchSize is how many completed days pass between progress
// summaries when the config does not say otherwise.
const defaultBatchSize = 10

// DayScraper is the pipeline surface the controller drives.
type DayScraper interface {
	ScrapeDate(ctx context.Context, day time.Time) (*scraper.DailyArticles, *scraper.InsertResult, error)
	ListArticleURLs(ctx context.Context, day time.Time) ([]scraper.ArticleRef, error)
}

// Config carries the controller's knobs. Zero StartDate triggers
// discovery; zero EndDate defaults to yesterday so a possibly
// incomplete current day is excluded.
type Config struct {
	Source     string
	StartDate  time.Time
	EndDate    time.Time
	FloorDate  time.Time
	ProbeDelay time.Duration
	BatchSize  int
	Resume     bool
}

// Controller iterates a date range backward, checkpointing after every
// day. Cancellation is honored at day granularity: the in-flight day
// always drains.
type Controller struct {
	scraper  DayScraper
	progress store.ProgressStore
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs a Controller. progress may be nil, which disables
// checkpointing and resume.
func New(sc DayScraper, progress store.ProgressStore, cfg Config, logger *zap.Logger) *Controller {
	if cfg.FloorDate.IsZero() {
		cfg.FloorDate = DefaultFloorDate
	}
	if cfg.ProbeDelay <= 0 {
		cfg.ProbeDelay = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Controller{
		scraper:  sc,
		progress: progress,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

type runStats struct {
	totalDays       int
	completedDays   int
	totalArticles   int
	newArticles     int
	updatedArticles int
	errorCount      int
	startedAt       time.Time
}

// Run executes the backfill: freshest dates first, walking backward
// until the start date is passed or the context is canceled.
func (c *Controller) Run(ctx context.Context) error {
	end, err := c.resolveEnd(ctx)
	if err != nil {
		return err
	}
	start, err := c.resolveStart(ctx)
	if err != nil {
		return err
	}

	stats := runStats{
		totalDays: daysBetween(start, end) + 1,
		startedAt: c.now(),
	}
	c.logger.Info("backfill starting",
		zap.String("start", start.Format(scraper.DateLayout)),
		zap.String("end", end.Format(scraper.DateLayout)),
		zap.Int("days", stats.totalDays),
	)

	interrupted := false
	processed := false
	current := end
	last := end
	for !current.Before(start) {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		// The poll above is the only interruption point: once a day is
		// in flight its fetches and checkpoint run on a detached
		// context so shutdown never tears down partial work.
		dayCtx := context.WithoutCancel(ctx)
		daily, dbResult, err := c.scraper.ScrapeDate(dayCtx, current)
		if err != nil {
			c.logger.Error("day failed",
				zap.String("date", current.Format(scraper.DateLayout)),
				zap.Error(err),
			)
			stats.errorCount++
			metrics.ObserveBackfillDay("error")
		} else {
			stats.completedDays++
			if meta := daily.Metadata; meta != nil {
				stats.totalArticles += meta.SuccessfulArticles
				stats.errorCount += meta.FailedArticles
			}
			if dbResult != nil {
				stats.newArticles += dbResult.Inserted
				stats.updatedArticles += dbResult.Updated
			}
			metrics.ObserveBackfillDay("ok")
		}

		// A day that errored still advances the cursor; per-URL retry
		// already happened inside the fetcher.
		c.checkpoint(dayCtx, current, store.StatusInProgress)

		if stats.completedDays > 0 && stats.completedDays%c.cfg.BatchSize == 0 {
			c.logProgress(&stats, current, start)
		}

		processed = true
		last = current
		current = current.AddDate(0, 0, -1)
	}

	finalStatus := store.StatusCompleted
	if interrupted {
		finalStatus = store.StatusPaused
	}
	// Cancellation before the first day leaves nothing to record; a
	// final checkpoint would mark the end date completed untouched.
	if processed {
		c.checkpoint(context.WithoutCancel(ctx), last, finalStatus)
	}
	c.logSummary(&stats, finalStatus)
	return nil
}

// resolveEnd picks the upper cursor: resume checkpoint minus one day
// when resuming, otherwise the configured end or yesterday.
func (c *Controller) resolveEnd(ctx context.Context) (time.Time, error) {
	end := c.cfg.EndDate
	if end.IsZero() {
		end = truncateDay(c.now()).AddDate(0, 0, -1)
	}
	if !c.cfg.Resume || c.progress == nil {
		return end, nil
	}
	progress, err := c.progress.BackfillProgress(ctx, c.cfg.Source)
	if err != nil {
		return time.Time{}, err
	}
	if progress == nil || progress.Status == store.StatusCompleted {
		return end, nil
	}
	resumed := truncateDay(progress.LastCompletedDate).AddDate(0, 0, -1)
	c.logger.Info("resuming backfill",
		zap.String("last_completed", progress.LastCompletedDate.Format(scraper.DateLayout)),
		zap.String("resume_from", resumed.Format(scraper.DateLayout)),
	)
	return resumed, nil
}

func (c *Controller) resolveStart(ctx context.Context) (time.Time, error) {
	if !c.cfg.StartDate.IsZero() {
		return truncateDay(c.cfg.StartDate), nil
	}
	return c.DiscoverEarliestDate(ctx)
}

// DiscoverEarliestDate binary-searches [floor, one-year-ago] on listing
// non-emptiness. The upper bound is sanity-probed first; if it shows no
// content at all the search is abandoned in favor of the floor date.
func (c *Controller) DiscoverEarliestDate(ctx context.Context) (time.Time, error) {
	left := c.cfg.FloorDate
	right := truncateDay(c.now()).AddDate(0, 0, -365)
	if right.Before(left) {
		return left, nil
	}

	c.logger.Info("discovering earliest available date")
	if !c.probe(ctx, right) {
		c.logger.Warn("sanity probe found no articles, using floor date",
			zap.String("floor", left.Format(scraper.DateLayout)),
		)
		return left, nil
	}

	earliest := right
	for !left.After(right) {
		if err := ctx.Err(); err != nil {
			return earliest, err
		}
		mid := left.AddDate(0, 0, daysBetween(left, right)/2)
		if c.probe(ctx, mid) {
			earliest = mid
			right = mid.AddDate(0, 0, -1)
		} else {
			left = mid.AddDate(0, 0, 1)
		}
		c.pause(ctx)
	}

	c.logger.Info("earliest date discovered",
		zap.String("date", earliest.Format(scraper.DateLayout)),
	)
	return earliest, nil
}

// probe reports whether a date's listing has at least one article. An
// empty or failed first probe is retried once so a transient outage is
// less likely to skew the search.
func (c *Controller) probe(ctx context.Context, day time.Time) bool {
	refs, err := c.scraper.ListArticleURLs(ctx, day)
	if err == nil && len(refs) > 0 {
		return true
	}
	c.pause(ctx)
	refs, err = c.scraper.ListArticleURLs(ctx, day)
	return err == nil && len(refs) > 0
}

func (c *Controller) pause(ctx context.Context) {
	timer := time.NewTimer(c.cfg.ProbeDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (c *Controller) checkpoint(ctx context.Context, day time.Time, status store.Status) {
	if c.progress == nil {
		return
	}
	if err := c.progress.SetBackfillProgress(ctx, c.cfg.Source, day, status); err != nil {
		c.logger.Error("checkpoint failed",
			zap.String("date", day.Format(scraper.DateLayout)),
			zap.Error(err),
		)
	}
}

func (c *Controller) logProgress(stats *runStats, current, start time.Time) {
	elapsed := c.now().Sub(stats.startedAt)
	remaining := daysBetween(start, current)
	avgPerDay := elapsed / time.Duration(stats.completedDays)
	eta := time.Duration(remaining) * avgPerDay

	c.logger.Info("backfill progress",
		zap.Int("completed_days", stats.completedDays),
		zap.Int("total_days", stats.totalDays),
		zap.Int("articles", stats.totalArticles),
		zap.Int("new", stats.newArticles),
		zap.Int("updated", stats.updatedArticles),
		zap.Duration("eta", eta.Round(time.Second)),
	)
}

func (c *Controller) logSummary(stats *runStats, status store.Status) {
	c.logger.Info("backfill finished",
		zap.String("status", string(status)),
		zap.Int("completed_days", stats.completedDays),
		zap.Int("total_days", stats.totalDays),
		zap.Int("articles", stats.totalArticles),
		zap.Int("new", stats.newArticles),
		zap.Int("updated", stats.updatedArticles),
		zap.Int("errors", stats.errorCount),
		zap.Duration("duration", c.now().Sub(stats.startedAt).Round(time.Second)),
	)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(truncateDay(b).Sub(truncateDay(a)).Hours() / 24)
}
