// Package scraper implements the concurrent fetch-and-extract pipeline
// for the Alcalorpolitico archive: listing discovery, bounded fan-out
// article extraction, aggregation, and persistence hand-off.
package scraper

import (
	"context"
	"time"
)

// DateLayout is the wire format for logical scrape dates.
const DateLayout = "2006-01-02"

// CompactDate renders a date the way output artifacts are keyed.
func CompactDate(t time.Time) string {
	return t.Format("20060102")
}

// Image is one article image with its caption.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// ArticleRef is a discovered article URL plus its position in the
// listing. It only lives between discovery and fan-out.
type ArticleRef struct {
	URL      string
	Position int
}

// Article is a fully extracted news article. URL is always present;
// every other field is a content-extraction result and may be absent.
type Article struct {
	ArticleID *string   `json:"article_id"`
	URL       string    `json:"url"`
	Title     *string   `json:"title"`
	Subtitle  *string   `json:"subtitle"`
	Section   *string   `json:"section"`
	Source    *string   `json:"source"`
	Location  *string   `json:"location"`
	Date      *string   `json:"date"`
	Body      *string   `json:"body"`
	BodyHTML  *string   `json:"body_html"`
	Images    []Image   `json:"images"`
	Keywords  []string  `json:"keywords"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// RunMetadata records one date's scrape run.
type RunMetadata struct {
	RunID              string    `json:"run_id"`
	Date               string    `json:"date"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	TotalArticles      int       `json:"total_articles"`
	SuccessfulArticles int       `json:"successful_articles"`
	FailedArticles     int       `json:"failed_articles"`
	Errors             []string  `json:"errors"`
	ProxyUsed          bool      `json:"proxy_used"`
	DurationSeconds    float64   `json:"duration_seconds"`
}

// Throughput returns articles per second for the run, or zero when the
// run had no measurable duration.
func (m *RunMetadata) Throughput() float64 {
	if m.DurationSeconds <= 0 {
		return 0
	}
	return float64(m.TotalArticles) / m.DurationSeconds
}

// DailyArticles is the aggregate output for one logical date.
type DailyArticles struct {
	Date          string       `json:"date"`
	TotalArticles int          `json:"total_articles"`
	Articles      []*Article   `json:"articles"`
	Metadata      *RunMetadata `json:"metadata"`
}

// InsertResult reports the outcome of one bulk upsert call.
type InsertResult struct {
	Total    int
	Inserted int
	Updated  int
	Errors   []string
}

// ArticleSink persists extracted articles and run bookkeeping. A nil
// sink disables database side effects without changing extraction.
type ArticleSink interface {
	BulkUpsert(ctx context.Context, articles []*Article, source string) (InsertResult, error)
	RecordRun(ctx context.Context, meta *RunMetadata, source string) error
}
