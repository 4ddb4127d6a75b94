package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObserversAndHandler(t *testing.T) {
	ObservePageFetch("listing", "ok", 120*time.Millisecond)
	ObservePageFetch("article", "error", 30*time.Millisecond)
	ObserveArticle("ok")
	ObserveBackfillDay("ok")
	IncInflight()
	DecInflight()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "scraper_pages_fetched_total")
	require.Contains(t, body, "scraper_articles_total")
	require.Contains(t, body, "scraper_fetch_duration_seconds")
	require.Contains(t, body, "scraper_backfill_days_total")
	require.Contains(t, body, "scraper_inflight_extractions")
}
