package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-scraper/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var acme = model.Company{Name: "Acme", URL: "https://acme.com"}

// --- Page cache ---

func TestSQLite_PageCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	page := model.CrawledPage{URL: "https://acme.com/about", Title: "About", Text: "We build rockets.", StatusCode: 200}
	require.NoError(t, st.SetCachedPage(ctx, page, time.Hour))

	got, err := st.GetCachedPage(ctx, "https://acme.com/about")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, page, got.Page)
	assert.True(t, got.ExpiresAt.After(got.FetchedAt))
}

func TestSQLite_PageCache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCachedPage(context.Background(), "https://nowhere.test")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_PageCache_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedPage(ctx, model.CrawledPage{URL: "https://acme.com", Text: "old"}, time.Hour))
	require.NoError(t, st.SetCachedPage(ctx, model.CrawledPage{URL: "https://acme.com", Text: "new"}, time.Hour))

	got, err := st.GetCachedPage(ctx, "https://acme.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Page.Text)
}

func TestSQLite_PageCache_ExpiredAndPrune(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedPage(ctx, model.CrawledPage{URL: "https://acme.com/old", Text: "stale"}, -time.Hour))
	require.NoError(t, st.SetCachedPage(ctx, model.CrawledPage{URL: "https://acme.com/new", Text: "fresh"}, time.Hour))

	got, err := st.GetCachedPage(ctx, "https://acme.com/old")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.DeleteExpiredPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = st.GetCachedPage(ctx, "https://acme.com/new")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// --- Runs ---

func TestSQLite_CreateRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, acme)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, acme, got.Company)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.Error)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, acme)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusNavigating))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusNavigating, got.Status)

	err = st.UpdateRunStatus(ctx, "missing", model.RunStatusFailed)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, acme)
	require.NoError(t, err)

	rec := model.NewRecord("Acme")
	require.NoError(t, rec.SetField(model.FieldLocation, "Austin, TX", 0.9))
	rec.AddSource("https://acme.com")

	result := &model.RunResult{
		Record:            rec,
		AverageConfidence: 0.9,
		MissingFields:     []model.Field{model.FieldOfferings},
		Steps:             []string{"navigate", "extract"},
	}
	metrics := &model.RunMetrics{CompanyName: "Acme", TotalURLs: 1, InputTokens: 1200, CostUSD: 0.01}
	require.NoError(t, st.CompleteRun(ctx, run.ID, result, metrics))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Austin, TX", got.Result.Record.Location)
	assert.InDelta(t, 0.9, got.Result.Record.Confidence(model.FieldLocation), 0.0001)
	assert.Equal(t, []string{"navigate", "extract"}, got.Result.Steps)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, int64(1200), got.Metrics.InputTokens)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, acme)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, &model.RunError{Message: "bad json", Step: "extract"}, nil))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "extract", got.Error.Step)
	assert.Nil(t, got.Metrics)
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, acme)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, model.Company{Name: "Globex", URL: "https://globex.com"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	globex, err := st.ListRuns(ctx, RunFilter{CompanyName: "Globex"})
	require.NoError(t, err)
	require.Len(t, globex, 1)
	assert.Equal(t, "https://globex.com", globex[0].Company.URL)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	future, err := st.ListRuns(ctx, RunFilter{CreatedAfter: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}
