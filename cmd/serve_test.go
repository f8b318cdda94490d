//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/pipeline"
	"github.com/sells-group/company-scraper/internal/store"
)

type mockScraper struct{ mock.Mock }

func (m *mockScraper) Scrape(ctx context.Context, name, url string) (*pipeline.Result, error) {
	args := m.Called(ctx, name, url)
	res, _ := args.Get(0).(*pipeline.Result)
	return res, args.Error(1)
}

type mockRuns struct{ mock.Mock }

func (m *mockRuns) GetRun(ctx context.Context, id string) (*model.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*model.Run)
	return run, args.Error(1)
}

func (m *mockRuns) ListRuns(ctx context.Context, f store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, f)
	runs, _ := args.Get(0).([]model.Run)
	return runs, args.Error(1)
}

func testResult() *pipeline.Result {
	rec := model.NewRecord("Acme")
	rec.Location = "Austin, Texas"
	return &pipeline.Result{
		RunID:     "run-1",
		RunResult: model.RunResult{Record: rec, Steps: []string{"navigate", "extract"}},
	}
}

func serve(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := newRouter(&mockScraper{}, &mockRuns{}, []string{"*"})
	w := serve(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestScrapeEndpoint_Success(t *testing.T) {
	svc := &mockScraper{}
	svc.On("Scrape", mock.Anything, "Acme", "https://acme.com").Return(testResult(), nil)

	h := newRouter(svc, &mockRuns{}, []string{"*"})
	w := serve(t, h, http.MethodPost, "/v1/scrape", []byte(`{"name":"Acme","url":"https://acme.com"}`))

	require.Equal(t, http.StatusOK, w.Code)
	var got pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "Austin, Texas", got.Record.Location)
	assert.Equal(t, []string{"navigate", "extract"}, got.Steps)
	svc.AssertExpectations(t)
}

func TestScrapeEndpoint_Errors(t *testing.T) {
	partial := testResult()
	partial.Error = "pipeline: extraction failed: malformed"

	tests := []struct {
		name   string
		body   string
		res    *pipeline.Result
		err    error
		status int
	}{
		{name: "bad body", body: `{`, status: http.StatusBadRequest},
		{name: "invalid input", body: `{"name":"","url":"x"}`, err: eris.Wrap(pipeline.ErrInvalidInput, "name is required"), status: http.StatusBadRequest},
		{name: "failed run", body: `{"name":"Acme","url":"https://acme.com"}`, res: partial, err: errors.New("pipeline: scrape: extraction failed"), status: http.StatusBadGateway},
		{name: "no result", body: `{"name":"Acme","url":"https://acme.com"}`, err: errors.New("metrics: boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockScraper{}
			svc.On("Scrape", mock.Anything, mock.Anything, mock.Anything).Return(tt.res, tt.err)

			w := serve(t, newRouter(svc, &mockRuns{}, []string{"*"}), http.MethodPost, "/v1/scrape", []byte(tt.body))
			assert.Equal(t, tt.status, w.Code)
			if tt.res != nil {
				assert.Contains(t, w.Body.String(), "extraction failed")
				assert.Contains(t, w.Body.String(), "Austin, Texas")
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestListRunsEndpoint(t *testing.T) {
	runs := &mockRuns{}
	runs.On("ListRuns", mock.Anything, store.RunFilter{Status: model.RunStatusComplete, CompanyName: "Acme", Limit: 10}).
		Return([]model.Run{{ID: "run-1", Status: model.RunStatusComplete}}, nil)
	runs.On("ListRuns", mock.Anything, store.RunFilter{Limit: 50}).Return(nil, nil)

	h := newRouter(&mockScraper{}, runs, []string{"*"})

	w := serve(t, h, http.MethodGet, "/v1/runs?status=complete&company=Acme&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []model.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)

	w = serve(t, h, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(t, h, http.MethodGet, "/v1/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	runs.AssertExpectations(t)
}

func TestGetRunEndpoint(t *testing.T) {
	runs := &mockRuns{}
	runs.On("GetRun", mock.Anything, "run-1").Return(&model.Run{ID: "run-1", Status: model.RunStatusFailed}, nil)
	runs.On("GetRun", mock.Anything, "missing").Return(nil, eris.Wrapf(store.ErrNotFound, "run %s", "missing"))
	runs.On("GetRun", mock.Anything, "broken").Return(nil, errors.New("database is locked"))

	h := newRouter(&mockScraper{}, runs, []string{"*"})

	w := serve(t, h, http.MethodGet, "/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)

	w = serve(t, h, http.MethodGet, "/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, http.MethodGet, "/v1/runs/broken", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	h := newRouter(&mockScraper{}, &mockRuns{}, []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/v1/scrape", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h := newRouter(&mockScraper{}, &mockRuns{}, []string{"*"})
	w := serve(t, h, http.MethodGet, "/v1/scrape", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
