package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/cost"
	"github.com/sells-group/company-scraper/internal/llm"
	"github.com/sells-group/company-scraper/internal/pipeline"
	"github.com/sells-group/company-scraper/internal/ratelimit"
	"github.com/sells-group/company-scraper/internal/resilience"
	"github.com/sells-group/company-scraper/internal/scrape"
	"github.com/sells-group/company-scraper/internal/search"
	"github.com/sells-group/company-scraper/internal/store"
	"github.com/sells-group/company-scraper/pkg/firecrawl"
	"github.com/sells-group/company-scraper/pkg/jina"
	"github.com/sells-group/company-scraper/pkg/perplexity"
)

// scraperEnv holds the initialized scraper and the store it persists to.
type scraperEnv struct {
	Store   store.Store
	Scraper *pipeline.Scraper
}

// Close releases the store.
func (e *scraperEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScraper builds every collaborator from cfg. The caller must Close the
// returned env.
func initScraper(ctx context.Context) (*scraperEnv, error) {
	log := zap.L()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &scraperEnv{Store: st}

	s, err := buildScraper(st, log)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Scraper = s
	return env, nil
}

func buildScraper(st store.Store, log *zap.Logger) (*pipeline.Scraper, error) {
	timeout := time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
	hc := &http.Client{Timeout: 3 * timeout}

	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
		jina.WithHTTPClient(hc),
		jina.WithLinksSummary(),
	)
	var pplx perplexity.Client
	if cfg.Perplexity.Key != "" {
		pplx = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithHTTPClient(hc),
		)
	}

	fetcher, err := buildFetcher(jinaClient, log)
	if err != nil {
		return nil, err
	}

	provider, err := search.New(cfg.Search.Provider, jinaClient, pplx)
	if err != nil {
		return nil, err
	}

	completer, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.FromConfig(cfg.RateLimit, log)
	if err != nil {
		return nil, err
	}
	breakerCfg := resilience.FromCircuitConfig(cfg.Circuit)
	breakerCfg.ShouldTrip = resilience.IsTransient
	breakers := resilience.NewServiceBreakers(breakerCfg, func(service string, from, to resilience.CircuitState) {
		log.Warn("circuit breaker state change",
			zap.String("service", service),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	guard := pipeline.NewGuard(limiter, breakers, resilience.FromRetryConfig(cfg.Retry), cost.FromConfig(cfg.Pricing), log)
	if st != nil {
		guard = guard.WithPageCache(st, time.Duration(cfg.Scrape.CacheTTLHours)*time.Hour)
	}

	return pipeline.NewScraper(pipeline.Deps{
		Fetcher: fetcher,
		Search:  provider,
		LLM:     completer,
		Guard:   guard,
		Store:   st,
		Limits:  pipeline.LimitsFromConfig(cfg.Pipeline),
		Logger:  log,
	})
}

// buildFetcher assembles the backend chain: direct HTTP first, then the
// configured fallbacks in order.
func buildFetcher(jinaClient jina.Client, log *zap.Logger) (*scrape.Chain, error) {
	timeout := time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
	backends := []scrape.Backend{
		scrape.NewLocalFetcher(
			scrape.WithUserAgent(cfg.Scrape.UserAgent),
			scrape.WithTimeout(timeout),
		),
	}
	for _, fb := range cfg.Scrape.Fallbacks {
		switch fb {
		case "jina":
			backends = append(backends, scrape.NewJinaFetcher(jinaClient))
		case "firecrawl":
			fc := firecrawl.NewClient(cfg.Firecrawl.Key,
				firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
				firecrawl.WithHTTPClient(&http.Client{Timeout: 2 * timeout}),
			)
			backends = append(backends, scrape.NewFirecrawlFetcher(fc))
		default:
			return nil, eris.Errorf("unknown scrape fallback %q", fb)
		}
	}

	chain := scrape.NewChain(scrape.NewPathMatcher(cfg.Scrape.ExcludePaths), backends...).WithLogger(log)
	if cfg.Scrape.RespectRobots {
		chain = chain.WithRobots(scrape.NewRobotsChecker(&http.Client{Timeout: timeout}, cfg.Scrape.UserAgent))
	}
	log.Debug("fetch chain ready", zap.Strings("backends", chain.Backends()))
	return chain, nil
}
