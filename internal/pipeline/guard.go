package pipeline

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/cost"
	"github.com/sells-group/company-scraper/internal/llm"
	"github.com/sells-group/company-scraper/internal/metrics"
	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/ratelimit"
	"github.com/sells-group/company-scraper/internal/resilience"
	"github.com/sells-group/company-scraper/internal/scrape"
	"github.com/sells-group/company-scraper/internal/search"
)

// PageCache stores fetched pages between sessions.
type PageCache interface {
	GetCachedPage(ctx context.Context, url string) (*model.PageCache, error)
	SetCachedPage(ctx context.Context, page model.CrawledPage, ttl time.Duration) error
}

// Guard wraps collaborators so every call waits on the rate limiter,
// passes its circuit breaker, is retried on transient failure, and is
// recorded in the session metrics. It is shared across sessions; the
// metrics session is supplied per wrap.
type Guard struct {
	limiter  *ratelimit.Registry
	breakers *resilience.ServiceBreakers
	retry    resilience.RetryConfig
	costs    *cost.Calculator
	cache    PageCache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewGuard creates a Guard. Nil breakers or costs disable those concerns.
func NewGuard(limiter *ratelimit.Registry, breakers *resilience.ServiceBreakers, retry resilience.RetryConfig, costs *cost.Calculator, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.L()
	}
	return &Guard{
		limiter:  limiter,
		breakers: breakers,
		retry:    retry,
		costs:    costs,
		log:      log,
	}
}

// WithPageCache serves fetches from cache and stores fresh pages for ttl.
// A zero ttl or nil cache leaves caching off.
func (g *Guard) WithPageCache(c PageCache, ttl time.Duration) *Guard {
	if c != nil && ttl > 0 {
		g.cache = c
		g.cacheTTL = ttl
	}
	return g
}

// call runs fn under the limiter, breaker and retry policy for service and
// records the call in m.
func call[T any](ctx context.Context, g *Guard, service, breaker string, m *metrics.Session, fn func(context.Context) (T, error)) (T, error) {
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger(g.log, breaker, service)

	start := time.Now()
	v, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx, service); err != nil {
				var zero T
				return zero, err
			}
		}
		if g.breakers == nil {
			return fn(ctx)
		}
		return resilience.ExecuteVal(ctx, g.breakers.Get(breaker), fn)
	})
	if m != nil {
		_ = m.AddCall(service, time.Since(start), err == nil)
	}
	return v, err
}

type guardedFetcher struct {
	g       *Guard
	next    scrape.Fetcher
	metrics *metrics.Session
}

// Fetcher wraps f. Breakers are kept per host so one dead site does not
// block fetches from others.
func (g *Guard) Fetcher(f scrape.Fetcher, m *metrics.Session) scrape.Fetcher {
	return &guardedFetcher{g: g, next: f, metrics: m}
}

func (f *guardedFetcher) Fetch(ctx context.Context, targetURL string) (*scrape.Page, error) {
	if page := f.cached(ctx, targetURL); page != nil {
		f.addURL(targetURL)
		return page, nil
	}

	breaker := ratelimit.WebScrape
	if u, err := url.Parse(targetURL); err == nil && u.Host != "" {
		breaker += ":" + u.Host
	}
	page, err := call(ctx, f.g, ratelimit.WebScrape, breaker, f.metrics, func(ctx context.Context) (*scrape.Page, error) {
		return f.next.Fetch(ctx, targetURL)
	})
	if err != nil {
		return nil, err
	}

	f.addURL(targetURL)
	f.charge(page)
	if f.g.cache != nil && page != nil {
		if err := f.g.cache.SetCachedPage(ctx, page.CrawledPage, f.g.cacheTTL); err != nil {
			f.g.log.Warn("pipeline: cache page failed", zap.String("url", targetURL), zap.Error(err))
		}
	}
	return page, nil
}

func (f *guardedFetcher) cached(ctx context.Context, targetURL string) *scrape.Page {
	if f.g.cache == nil {
		return nil
	}
	pc, err := f.g.cache.GetCachedPage(ctx, targetURL)
	if err != nil {
		f.g.log.Warn("pipeline: page cache lookup failed", zap.String("url", targetURL), zap.Error(err))
		return nil
	}
	if pc == nil || pc.Page.Text == "" {
		return nil
	}
	return &scrape.Page{CrawledPage: pc.Page, Source: "cache"}
}

func (f *guardedFetcher) addURL(u string) {
	if f.metrics != nil {
		_ = f.metrics.AddURL(u)
	}
}

func (f *guardedFetcher) charge(page *scrape.Page) {
	if f.metrics == nil || f.g.costs == nil || page == nil {
		return
	}
	switch page.Source {
	case "jina":
		f.metrics.AddCost(f.g.costs.Jina(page.Tokens))
	case "firecrawl":
		f.metrics.AddCost(f.g.costs.FirecrawlPage())
	}
}

type guardedProvider struct {
	g       *Guard
	next    search.Provider
	metrics *metrics.Session
}

// Provider wraps p.
func (g *Guard) Provider(p search.Provider, m *metrics.Session) search.Provider {
	return &guardedProvider{g: g, next: p, metrics: m}
}

func (p *guardedProvider) Name() string { return p.next.Name() }

func (p *guardedProvider) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	urls, err := call(ctx, p.g, ratelimit.GoogleSearch, p.next.Name(), p.metrics, func(ctx context.Context) ([]string, error) {
		return p.next.Search(ctx, query, maxResults)
	})
	if err != nil {
		return nil, err
	}
	if p.metrics != nil && p.g.costs != nil && p.next.Name() == "perplexity" {
		p.metrics.AddCost(p.g.costs.PerplexityQuery())
	}
	return urls, nil
}

type guardedCompleter struct {
	g       *Guard
	next    llm.Completer
	metrics *metrics.Session
}

// Completer wraps c. Token usage and its cost go to the metrics session.
func (g *Guard) Completer(c llm.Completer, m *metrics.Session) llm.Completer {
	return &guardedCompleter{g: g, next: c, metrics: m}
}

func (c *guardedCompleter) Name() string { return c.next.Name() }

func (c *guardedCompleter) Complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	comp, err := call(ctx, c.g, ratelimit.Anthropic, c.next.Name(), c.metrics, func(ctx context.Context) (*llm.Completion, error) {
		return c.next.Complete(ctx, system, user)
	})
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		var usd float64
		if c.g.costs != nil {
			usd = c.g.costs.LLM(comp.Model, comp.Usage.InputTokens, comp.Usage.OutputTokens)
		}
		c.metrics.AddUsage(comp.Usage.InputTokens, comp.Usage.OutputTokens, usd)
	}
	return comp, nil
}
