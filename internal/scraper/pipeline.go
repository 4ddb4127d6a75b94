package scraper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avillegas/alcalorscraper/internal/metrics"
)

// PipelineConfig carries the knobs for the per-date pipeline.
type PipelineConfig struct {
	ArchiveURL  string
	Source      string
	Concurrency int
}

// Pipeline drives one date through discovery, bounded fan-out
// extraction, aggregation, and persistence. A date's processing never
// fails the caller; per-item failures are recorded in the run metadata.
type Pipeline struct {
	fetcher *Fetcher
	parser  *PageParser
	sink    ArticleSink
	files   *FileSink
	cfg     PipelineConfig
	logger  *zap.Logger
}

// NewPipeline constructs a Pipeline. sink and files may each be nil to
// disable that write side effect; extraction behavior is unchanged.
func NewPipeline(
	fetcher *Fetcher,
	parser *PageParser,
	sink ArticleSink,
	files *FileSink,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		fetcher: fetcher,
		parser:  parser,
		sink:    sink,
		files:   files,
		cfg:     cfg,
		logger:  logger,
	}
}

// ListArticleURLs fetches and parses the archive listing for one date.
// A day with no articles is a valid empty result.
func (p *Pipeline) ListArticleURLs(ctx context.Context, day time.Time) ([]ArticleRef, error) {
	dateStr := day.Format(DateLayout)
	listingURL := p.cfg.ArchiveURL + "?fn=" + dateStr

	start := time.Now()
	pageText, err := p.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		metrics.ObservePageFetch("listing", "error", time.Since(start))
		return nil, err
	}
	metrics.ObservePageFetch("listing", "ok", time.Since(start))

	refs, err := p.parser.ParseListing(pageText)
	if err != nil {
		return nil, err
	}
	p.logger.Info("listing discovered",
		zap.String("date", dateStr),
		zap.Int("articles", len(refs)),
	)
	return refs, nil
}

type outcome struct {
	article *Article
	err     error
}

// ScrapeDate processes one logical date end to end and returns the
// day's aggregate plus the database result when a sink is configured.
// It returns an error only for resource-level failures surfaced by the
// context; extraction and discovery failures degrade to an empty or
// partial result with the errors recorded.
func (p *Pipeline) ScrapeDate(ctx context.Context, day time.Time) (*DailyArticles, *InsertResult, error) {
	dateStr := day.Format(DateLayout)
	startedAt := time.Now().UTC()

	meta := &RunMetadata{
		RunID:     uuid.NewString(),
		Date:      dateStr,
		StartTime: startedAt,
		ProxyUsed: p.fetcher.ProxyEnabled(),
	}
	daily := &DailyArticles{Date: dateStr, Metadata: meta}

	refs, err := p.ListArticleURLs(ctx, day)
	if err != nil {
		// Discovery failure degrades to an empty day.
		p.logger.Error("listing discovery failed",
			zap.String("date", dateStr),
			zap.Error(err),
		)
		meta.Errors = append(meta.Errors, err.Error())
		p.finalize(daily, startedAt)
		return daily, nil, nil
	}

	meta.TotalArticles = len(refs)
	if len(refs) == 0 {
		p.finalize(daily, startedAt)
		return daily, nil, nil
	}

	outcomes := p.fanOut(ctx, refs)

	for _, out := range outcomes {
		switch {
		case out.err != nil:
			meta.FailedArticles++
			meta.Errors = append(meta.Errors, out.err.Error())
			metrics.ObserveArticle("failed")
		case out.article != nil:
			daily.Articles = append(daily.Articles, out.article)
			meta.SuccessfulArticles++
			metrics.ObserveArticle("ok")
		default:
			meta.FailedArticles++
			metrics.ObserveArticle("failed")
		}
	}
	daily.TotalArticles = len(daily.Articles)

	p.finalize(daily, startedAt)
	p.logger.Info("date completed",
		zap.String("date", dateStr),
		zap.Int("total", meta.TotalArticles),
		zap.Int("successful", meta.SuccessfulArticles),
		zap.Int("failed", meta.FailedArticles),
		zap.Float64("duration_seconds", meta.DurationSeconds),
		zap.Float64("articles_per_second", meta.Throughput()),
	)

	result := p.persist(ctx, daily)
	return daily, result, nil
}

// fanOut launches one extraction task per reference under the shared
// concurrency limit and joins on all of them. Tasks never propagate
// errors through the group, so one bad article cannot cancel siblings.
func (p *Pipeline) fanOut(ctx context.Context, refs []ArticleRef) []outcome {
	outcomes := make([]outcome, len(refs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			outcomes[i] = p.extract(ctx, ref, i+1, len(refs))
			return nil
		})
	}
	g.Wait() //nolint:errcheck // tasks always return nil

	return outcomes
}

func (p *Pipeline) extract(ctx context.Context, ref ArticleRef, index, total int) outcome {
	metrics.IncInflight()
	defer metrics.DecInflight()

	p.logger.Debug("scraping article",
		zap.Int("index", index),
		zap.Int("total", total),
		zap.String("url", ref.URL),
	)

	start := time.Now()
	pageText, err := p.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		metrics.ObservePageFetch("article", "error", time.Since(start))
		return outcome{err: err}
	}
	metrics.ObservePageFetch("article", "ok", time.Since(start))

	article, err := p.parser.ParseDetail(pageText, ref.URL)
	if err != nil {
		return outcome{err: err}
	}

	if err := p.fetcher.Throttle(ctx); err != nil {
		// Shutdown mid-throttle; the article itself was extracted.
		return outcome{article: article}
	}
	return outcome{article: article}
}

func (p *Pipeline) finalize(daily *DailyArticles, startedAt time.Time) {
	meta := daily.Metadata
	meta.EndTime = time.Now().UTC()
	meta.DurationSeconds = meta.EndTime.Sub(startedAt).Seconds()
}

// persist applies the enabled write side effects for a finished day.
// Persistence failures are recorded and logged, never propagated.
func (p *Pipeline) persist(ctx context.Context, daily *DailyArticles) *InsertResult {
	if p.files != nil {
		if err := p.files.SaveDaily(daily); err != nil {
			p.logger.Error("save artifacts failed",
				zap.String("date", daily.Date),
				zap.Error(err),
			)
			daily.Metadata.Errors = append(daily.Metadata.Errors, err.Error())
		}
	}

	var result *InsertResult
	if p.sink != nil && len(daily.Articles) > 0 {
		res, err := p.sink.BulkUpsert(ctx, daily.Articles, p.cfg.Source)
		if err != nil {
			p.logger.Error("bulk upsert failed",
				zap.String("date", daily.Date),
				zap.Error(err),
			)
			daily.Metadata.Errors = append(daily.Metadata.Errors, err.Error())
		} else {
			result = &res
			p.logger.Info("database upsert",
				zap.String("date", daily.Date),
				zap.Int("inserted", res.Inserted),
				zap.Int("updated", res.Updated),
				zap.Int("errors", len(res.Errors)),
			)
		}
	}
	if p.sink != nil {
		if err := p.sink.RecordRun(ctx, daily.Metadata, p.cfg.Source); err != nil {
			p.logger.Warn("record run failed",
				zap.String("date", daily.Date),
				zap.Error(err),
			)
		}
	}
	return result
}

// ScrapeDateRange processes the inclusive range in ascending order,
// fully draining each day before the next begins.
func (p *Pipeline) ScrapeDateRange(ctx context.Context, start, end time.Time) ([]*DailyArticles, error) {
	var all []*DailyArticles
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		daily, _, err := p.ScrapeDate(ctx, current)
		if err != nil {
			return all, err
		}
		all = append(all, daily)
	}
	p.logger.Info("date range completed",
		zap.String("start", start.Format(DateLayout)),
		zap.String("end", end.Format(DateLayout)),
		zap.Int("days", len(all)),
	)
	return all, nil
}
