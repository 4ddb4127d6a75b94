package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avillegas/alcalorscraper/internal/scraper"
	"github.com/avillegas/alcalorscraper/internal/store"
)

func strptr(s string) *string { return &s }

func sampleArticle() *scraper.Article {
	return &scraper.Article{
		ArticleID: strptr("401234"),
		URL:       "https://www.alcalorpolitico.com/informacion/anuncian-obra-401234.html",
		Title:     strptr("Anuncian obra"),
		Subtitle:  strptr("Inversión de 50 mdp"),
		Section:   strptr("Estado"),
		Source:    strptr("Redacción"),
		Location:  strptr("Xalapa, Ver. 15/12/2024"),
		Date:      strptr("2024-12-15"),
		Body:      strptr("Cuerpo."),
		BodyHTML:  strptr("<div class=\"cuerponota\"><p>Cuerpo.</p></div>"),
		Keywords:  []string{"veracruz", "obra"},
		Images: []scraper.Image{
			{URL: "https://www.alcalorpolitico.com/images/notas/originales/obra1.jpg", Caption: "Vista"},
			{URL: "https://www.alcalorpolitico.com/images/notas/originales/obra2.jpg"},
		},
		ScrapedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	st, err := NewStoreWithDB(mock, zap.NewNop())
	require.NoError(t, err)
	return st, mock
}

func expectUpsertQuery(mock pgxmock.PgxPoolIface, article *scraper.Article, rowID string, inserted bool) {
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			"alcalorpolitico",
			article.ArticleID,
			article.URL,
			article.Title,
			article.Subtitle,
			article.Section,
			article.Source,
			article.Location,
			pgxmock.AnyArg(),
			article.Body,
			article.BodyHTML,
			article.Keywords,
			article.ScrapedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "was_inserted"}).AddRow(rowID, inserted))
}

func TestUpsertArticle_Insert(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	article := sampleArticle()
	expectUpsertQuery(mock, article, "row-1", true)
	// Fresh rows skip the image delete.
	mock.ExpectExec("INSERT INTO article_images").
		WithArgs("row-1", article.Images[0].URL, article.Images[0].Caption, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO article_images").
		WithArgs("row-1", article.Images[1].URL, article.Images[1].Caption, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := st.UpsertArticle(context.Background(), article, "alcalorpolitico")
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArticle_UpdateReplacesImages(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	article := sampleArticle()
	expectUpsertQuery(mock, article, "row-1", false)
	mock.ExpectExec("DELETE FROM article_images").
		WithArgs("row-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO article_images").
		WithArgs("row-1", article.Images[0].URL, article.Images[0].Caption, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO article_images").
		WithArgs("row-1", article.Images[1].URL, article.Images[1].Caption, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := st.UpsertArticle(context.Background(), article, "alcalorpolitico")
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArticle_NilKeywordsBecomeEmptyArray(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	article := sampleArticle()
	article.Keywords = nil
	article.Images = nil

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			"alcalorpolitico",
			article.ArticleID,
			article.URL,
			article.Title,
			article.Subtitle,
			article.Section,
			article.Source,
			article.Location,
			pgxmock.AnyArg(),
			article.Body,
			article.BodyHTML,
			[]string{},
			article.ScrapedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "was_inserted"}).AddRow("row-1", true))

	_, err := st.UpsertArticle(context.Background(), article, "alcalorpolitico")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_PartialFailure(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	good := sampleArticle()
	good.Images = nil
	bad := sampleArticle()
	bad.ArticleID = strptr("401235")
	bad.Images = nil

	expectUpsertQuery(mock, good, "row-1", true)
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			"alcalorpolitico",
			bad.ArticleID,
			bad.URL,
			bad.Title,
			bad.Subtitle,
			bad.Section,
			bad.Source,
			bad.Location,
			pgxmock.AnyArg(),
			bad.Body,
			bad.BodyHTML,
			bad.Keywords,
			bad.ScrapedAt,
		).
		WillReturnError(errors.New("deadlock detected"))

	result, err := st.BulkUpsert(context.Background(), []*scraper.Article{good, bad}, "alcalorpolitico")
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.Equal(t, 1, result.Inserted)
	require.Zero(t, result.Updated)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "401235")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	meta := &scraper.RunMetadata{
		RunID:              "run-1",
		Date:               "2024-12-15",
		StartTime:          time.Unix(1700000000, 0).UTC(),
		EndTime:            time.Unix(1700000060, 0).UTC(),
		TotalArticles:      3,
		SuccessfulArticles: 2,
		FailedArticles:     1,
		Errors:             []string{"fetch x: status 404"},
		ProxyUsed:          true,
		DurationSeconds:    60,
	}

	mock.ExpectExec("INSERT INTO scrape_runs").
		WithArgs(
			meta.RunID,
			"alcalorpolitico",
			"daily",
			meta.Date,
			meta.StartTime,
			meta.EndTime,
			meta.TotalArticles,
			meta.SuccessfulArticles,
			meta.FailedArticles,
			[]byte(`["fetch x: status 404"]`),
			"completed",
			meta.ProxyUsed,
			meta.DurationSeconds,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.RecordRun(context.Background(), meta, "alcalorpolitico"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackfillProgress_NoRow(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT last_completed_date, status FROM backfill_progress").
		WithArgs("alcalorpolitico").
		WillReturnError(pgx.ErrNoRows)

	progress, err := st.BackfillProgress(context.Background(), "alcalorpolitico")
	require.NoError(t, err)
	require.Nil(t, progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackfillProgress_RoundTrip(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	last := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT last_completed_date, status FROM backfill_progress").
		WithArgs("alcalorpolitico").
		WillReturnRows(pgxmock.NewRows([]string{"last_completed_date", "status"}).
			AddRow(last, "paused"))

	progress, err := st.BackfillProgress(context.Background(), "alcalorpolitico")
	require.NoError(t, err)
	require.NotNil(t, progress)
	require.Equal(t, last, progress.LastCompletedDate)
	require.Equal(t, store.StatusPaused, progress.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBackfillProgress(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	last := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO backfill_progress").
		WithArgs("alcalorpolitico", last, "in_progress").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SetBackfillProgress(context.Background(), "alcalorpolitico", last, store.StatusInProgress))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewStoreWithDB(mock, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, st.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.Error(t, st.HealthCheck(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleCount(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("alcalorpolitico").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1234)))

	count, err := st.ArticleCount(context.Background(), "alcalorpolitico")
	require.NoError(t, err)
	require.Equal(t, int64(1234), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
