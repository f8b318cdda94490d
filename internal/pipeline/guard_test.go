package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/cost"
	"github.com/sells-group/company-scraper/internal/llm"
	"github.com/sells-group/company-scraper/internal/metrics"
	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/ratelimit"
	"github.com/sells-group/company-scraper/internal/resilience"
	"github.com/sells-group/company-scraper/internal/scrape"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func testGuard(t *testing.T, limits map[string]ratelimit.Limit) *Guard {
	t.Helper()
	if limits == nil {
		limits = map[string]ratelimit.Limit{
			ratelimit.Anthropic:    {CallsPerMinute: 600},
			ratelimit.GoogleSearch: {CallsPerMinute: 600},
			ratelimit.WebScrape:    {CallsPerMinute: 600},
		}
	}
	reg, err := ratelimit.New(limits, zap.NewNop())
	require.NoError(t, err)
	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		ShouldTrip:       resilience.IsTransient,
	}, nil)
	return NewGuard(reg, breakers, fastRetry(), cost.NewCalculator(cost.DefaultRates()), zap.NewNop())
}

func newMetrics(t *testing.T) *metrics.Session {
	t.Helper()
	m, err := metrics.NewSession("Acme")
	require.NoError(t, err)
	return m
}

func TestGuardedFetcher_RetriesTransient(t *testing.T) {
	t.Parallel()

	transient := resilience.NewTransientError(errors.New("unexpected status 503"), 503)
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://acme.com").Return(nil, transient).Once()
	f.On("Fetch", mock.Anything, "https://acme.com").Return(htmlPage("https://acme.com", "home"), nil).Once()

	m := newMetrics(t)
	page, err := testGuard(t, nil).Fetcher(f, m).Fetch(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "home", page.Text)

	snap := m.Snapshot()
	assert.Equal(t, []string{"https://acme.com"}, snap.URLsVisited)
	api := snap.APIMetrics[ratelimit.WebScrape]
	assert.Equal(t, 1, api.TotalCalls)
	assert.Equal(t, 1, api.SuccessfulCalls)
	f.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestGuardedFetcher_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything).Return(nil, errors.New("unexpected status 404"))

	m := newMetrics(t)
	_, err := testGuard(t, nil).Fetcher(f, m).Fetch(context.Background(), "https://acme.com/gone")
	require.Error(t, err)
	f.AssertNumberOfCalls(t, "Fetch", 1)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.APIMetrics[ratelimit.WebScrape].FailedCalls)
	assert.Empty(t, snap.URLsVisited)
}

func TestGuardedFetcher_BreakerIsPerHost(t *testing.T) {
	t.Parallel()

	transient := resilience.NewTransientError(errors.New("unexpected status 502"), 502)
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://down.test/").Return(nil, transient)
	f.On("Fetch", mock.Anything, "https://up.test/").Return(htmlPage("https://up.test/", "up"), nil)

	g := testGuard(t, nil)
	g.retry.MaxAttempts = 1
	fetch := g.Fetcher(f, nil)

	for range 2 {
		_, err := fetch.Fetch(context.Background(), "https://down.test/")
		require.Error(t, err)
	}
	_, err := fetch.Fetch(context.Background(), "https://down.test/")
	assert.True(t, eris.Is(err, resilience.ErrCircuitOpen))

	_, err = fetch.Fetch(context.Background(), "https://up.test/")
	require.NoError(t, err)
	f.AssertNumberOfCalls(t, "Fetch", 3)
}

func TestGuardedFetcher_RateLimitExhaustion(t *testing.T) {
	t.Parallel()

	g := testGuard(t, map[string]ratelimit.Limit{ratelimit.WebScrape: {CallsPerMinute: 1, MaxRetries: 0}})
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything).Return(htmlPage("https://acme.com", "home"), nil)
	fetch := g.Fetcher(f, nil)

	_, err := fetch.Fetch(context.Background(), "https://acme.com")
	require.NoError(t, err)
	_, err = fetch.Fetch(context.Background(), "https://acme.com/about")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ratelimit.ErrRateLimited))
	f.AssertNumberOfCalls(t, "Fetch", 1)
}

type memCache struct {
	mu    sync.Mutex
	pages map[string]model.CrawledPage
	ttl   time.Duration
}

func (c *memCache) GetCachedPage(_ context.Context, url string) (*model.PageCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[url]
	if !ok {
		return nil, nil
	}
	return &model.PageCache{URL: url, Page: p}, nil
}

func (c *memCache) SetCachedPage(_ context.Context, page model.CrawledPage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[page.URL] = page
	c.ttl = ttl
	return nil
}

func TestGuardedFetcher_PageCache(t *testing.T) {
	t.Parallel()

	cache := &memCache{pages: map[string]model.CrawledPage{}}
	g := testGuard(t, nil).WithPageCache(cache, time.Hour)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://acme.com").Return(htmlPage("https://acme.com", "home"), nil).Once()
	fetch := g.Fetcher(f, newMetrics(t))

	first, err := fetch.Fetch(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "local", first.Source)
	assert.Equal(t, time.Hour, cache.ttl)

	second, err := fetch.Fetch(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "cache", second.Source)
	assert.Equal(t, first.HTML, second.HTML)
	f.AssertExpectations(t)
}

func TestGuardedFetcher_ChargesMeteredBackends(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://a.test").Return(&scrape.Page{
		CrawledPage: model.CrawledPage{URL: "https://a.test", Text: "a"}, Source: "jina", Tokens: 1_000_000,
	}, nil)
	f.On("Fetch", mock.Anything, "https://b.test").Return(&scrape.Page{
		CrawledPage: model.CrawledPage{URL: "https://b.test", Text: "b"}, Source: "firecrawl",
	}, nil)

	m := newMetrics(t)
	fetch := testGuard(t, nil).Fetcher(f, m)
	_, err := fetch.Fetch(context.Background(), "https://a.test")
	require.NoError(t, err)
	_, err = fetch.Fetch(context.Background(), "https://b.test")
	require.NoError(t, err)

	rates := cost.DefaultRates()
	assert.InDelta(t, rates.JinaPerMTok+rates.FirecrawlPerPage, m.Snapshot().CostUSD, 1e-9)
}

func TestGuardedProvider(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	p.On("Search", mock.Anything, "Acme overview", 3).Return([]string{"https://a.test"}, nil)

	m := newMetrics(t)
	gp := testGuard(t, nil).Provider(p, m)
	urls, err := gp.Search(context.Background(), "Acme overview", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test"}, urls)
	assert.Equal(t, "mock-search", gp.Name())
	assert.Equal(t, 1, m.Snapshot().APIMetrics[ratelimit.GoogleSearch].SuccessfulCalls)
}

func TestGuardedCompleter_RecordsUsage(t *testing.T) {
	t.Parallel()

	c := &mockCompleter{}
	c.On("Complete", mock.Anything, "sys", "user").Return(&llm.Completion{
		Text:  "{}",
		Model: "claude-sonnet-4-5-20250929",
		Usage: llm.Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
	}, nil)

	m := newMetrics(t)
	comp, err := testGuard(t, nil).Completer(c, m).Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "{}", comp.Text)

	snap := m.Snapshot()
	assert.Equal(t, int64(1_000_000), snap.InputTokens)
	assert.Equal(t, int64(100_000), snap.OutputTokens)
	assert.InDelta(t, 3.0+1.5, snap.CostUSD, 1e-9)
	assert.Equal(t, 1, snap.APIMetrics[ratelimit.Anthropic].TotalCalls)
}

func TestGuardedCompleter_Error(t *testing.T) {
	t.Parallel()

	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("llm: anthropic: invalid request"))

	m := newMetrics(t)
	_, err := testGuard(t, nil).Completer(c, m).Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	c.AssertNumberOfCalls(t, "Complete", 1)
	assert.Equal(t, 1, m.Snapshot().APIMetrics[ratelimit.Anthropic].FailedCalls)
}

func TestGuardedFetcher_CachedPageKeepsAnchors(t *testing.T) {
	t.Parallel()

	g := testGuard(t, nil).WithPageCache(newTestStore(t), time.Hour)
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://acme.test").Return(&scrape.Page{
		CrawledPage: model.CrawledPage{
			URL:      "https://acme.test",
			Text:     "Acme home",
			Markdown: "Acme home",
			Anchors:  []model.Anchor{{Href: "https://acme.test/about", Text: "About"}},
		},
		Source: "firecrawl",
	}, nil).Once()
	fetch := g.Fetcher(f, nil)

	cold, err := fetch.Fetch(context.Background(), "https://acme.test")
	require.NoError(t, err)
	warm, err := fetch.Fetch(context.Background(), "https://acme.test")
	require.NoError(t, err)

	assert.Equal(t, "cache", warm.Source)
	want := []string{"https://acme.test/about"}
	assert.Equal(t, want, scrape.ExtractLinks(cold, "https://acme.test"))
	assert.Equal(t, want, scrape.ExtractLinks(warm, "https://acme.test"))
	f.AssertExpectations(t)
}
