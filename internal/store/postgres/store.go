// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avillegas/alcalorscraper/internal/scraper"
	"github.com/avillegas/alcalorscraper/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MinConns int32
	MaxConns int32
}

// db is the subset of pgxpool.Pool the store uses; pgxmock implements
// it for tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists articles, run records, and backfill progress.
// It assumes a schema like:
//
//	CREATE TABLE articles (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		source TEXT NOT NULL,
//		article_id TEXT,
//		url TEXT NOT NULL,
//		title TEXT, subtitle TEXT, section TEXT,
//		author TEXT, location TEXT,
//		publication_date DATE,
//		body TEXT, body_html TEXT,
//		keywords TEXT[],
//		scraped_at TIMESTAMPTZ NOT NULL,
//		created_at TIMESTAMPTZ DEFAULT NOW(),
//		updated_at TIMESTAMPTZ DEFAULT NOW(),
//		UNIQUE (source, article_id)
//	);
//	CREATE TABLE article_images (
//		id BIGSERIAL PRIMARY KEY,
//		article_id UUID REFERENCES articles(id) ON DELETE CASCADE,
//		url TEXT NOT NULL, caption TEXT, position INT
//	);
//	CREATE TABLE scrape_runs (
//		id UUID PRIMARY KEY, source TEXT NOT NULL, run_type TEXT,
//		target_date DATE, started_at TIMESTAMPTZ, completed_at TIMESTAMPTZ,
//		total_articles INT, successful_articles INT, failed_articles INT,
//		errors JSONB, status TEXT, proxy_used BOOLEAN, duration_seconds DOUBLE PRECISION
//	);
//	CREATE TABLE backfill_progress (
//		source TEXT PRIMARY KEY,
//		last_completed_date DATE NOT NULL,
//		status TEXT NOT NULL,
//		started_at TIMESTAMPTZ, updated_at TIMESTAMPTZ
//	);
type Store struct {
	pool   db
	logger *zap.Logger
}

// NewStore connects a pooled store using the provided config.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NewStoreWithDB constructs a store from an existing pool, primarily
// for testing.
func NewStoreWithDB(pool db, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// HealthCheck verifies store connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// ArticleCount returns the number of stored articles for a source.
func (s *Store) ArticleCount(ctx context.Context, source string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM articles WHERE source = $1`, source,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

const upsertArticleQuery = `
INSERT INTO articles (
	source, article_id, url, title, subtitle, section,
	author, location, publication_date, body, body_html,
	keywords, scraped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (source, article_id) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	subtitle = EXCLUDED.subtitle,
	section = EXCLUDED.section,
	author = EXCLUDED.author,
	location = EXCLUDED.location,
	publication_date = EXCLUDED.publication_date,
	body = EXCLUDED.body,
	body_html = EXCLUDED.body_html,
	keywords = EXCLUDED.keywords,
	updated_at = NOW()
RETURNING id::text, (xmax = 0) AS was_inserted`

// UpsertArticle writes one article keyed by (source, article_id),
// overwriting all mutable fields on conflict. Images are replaced
// wholesale. Returns whether the row was newly inserted.
func (s *Store) UpsertArticle(ctx context.Context, article *scraper.Article, source string) (bool, error) {
	var pubDate *time.Time
	if article.Date != nil {
		if parsed, err := time.Parse(scraper.DateLayout, *article.Date); err == nil {
			pubDate = &parsed
		}
	}

	keywords := article.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	var (
		rowID    string
		inserted bool
	)
	err := s.pool.QueryRow(ctx, upsertArticleQuery,
		source,
		article.ArticleID,
		article.URL,
		article.Title,
		article.Subtitle,
		article.Section,
		article.Source,
		article.Location,
		pubDate,
		article.Body,
		article.BodyHTML,
		keywords,
		article.ScrapedAt,
	).Scan(&rowID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert article: %w", err)
	}

	if len(article.Images) > 0 {
		if err := s.replaceImages(ctx, rowID, article.Images, inserted); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// replaceImages deletes any prior rows and reinserts the full ordered
// set; images are never diffed.
func (s *Store) replaceImages(ctx context.Context, articleRowID string, images []scraper.Image, wasNew bool) error {
	if !wasNew {
		if _, err := s.pool.Exec(ctx,
			`DELETE FROM article_images WHERE article_id = $1`, articleRowID,
		); err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
	}
	for i, img := range images {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO article_images (article_id, url, caption, position) VALUES ($1, $2, $3, $4)`,
			articleRowID, img.URL, img.Caption, i,
		); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}
	return nil
}

// BulkUpsert upserts sequentially with no cross-item rollback; partial
// success is recorded, not treated as a batch failure.
func (s *Store) BulkUpsert(ctx context.Context, articles []*scraper.Article, source string) (scraper.InsertResult, error) {
	result := scraper.InsertResult{Total: len(articles)}
	for _, article := range articles {
		inserted, err := s.UpsertArticle(ctx, article, source)
		if err != nil {
			id := "unknown"
			if article.ArticleID != nil {
				id = *article.ArticleID
			}
			s.logger.Error("article upsert failed",
				zap.String("article_id", id),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, fmt.Sprintf("article %s: %v", id, err))
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

// RecordRun persists one date's run record.
func (s *Store) RecordRun(ctx context.Context, meta *scraper.RunMetadata, source string) error {
	var errorsJSON []byte
	if len(meta.Errors) > 0 {
		data, err := json.Marshal(meta.Errors)
		if err != nil {
			return fmt.Errorf("marshal run errors: %w", err)
		}
		errorsJSON = data
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO scrape_runs (
	id, source, run_type, target_date, started_at, completed_at,
	total_articles, successful_articles, failed_articles,
	errors, status, proxy_used, duration_seconds
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		meta.RunID,
		source,
		"daily",
		meta.Date,
		meta.StartTime,
		meta.EndTime,
		meta.TotalArticles,
		meta.SuccessfulArticles,
		meta.FailedArticles,
		errorsJSON,
		"completed",
		meta.ProxyUsed,
		meta.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// BackfillProgress reads the checkpoint row for a source, or nil when
// none exists.
func (s *Store) BackfillProgress(ctx context.Context, source string) (*store.Progress, error) {
	var (
		last   time.Time
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT last_completed_date, status FROM backfill_progress WHERE source = $1`,
		source,
	).Scan(&last, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backfill progress: %w", err)
	}
	return &store.Progress{
		Source:            source,
		LastCompletedDate: last,
		Status:            store.Status(status),
	}, nil
}

// SetBackfillProgress overwrites the single checkpoint row for a
// source.
func (s *Store) SetBackfillProgress(ctx context.Context, source string, last time.Time, status store.Status) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO backfill_progress (source, last_completed_date, status, started_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())
ON CONFLICT (source) DO UPDATE SET
	last_completed_date = EXCLUDED.last_completed_date,
	status = EXCLUDED.status,
	updated_at = NOW()`,
		source, last, string(status),
	)
	if err != nil {
		return fmt.Errorf("set backfill progress: %w", err)
	}
	return nil
}
