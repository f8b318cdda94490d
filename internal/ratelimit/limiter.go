// Package ratelimit throttles calls to the external services a scrape uses.
// Each service gets a token bucket sized to its calls-per-minute budget.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-scraper/internal/config"
)

// Service names used as registry keys.
const (
	Anthropic    = "anthropic"
	GoogleSearch = "google_search"
	WebScrape    = "web_scrape"
)

var (
	// ErrRateLimited is returned when a call is still throttled after the
	// configured number of waits.
	ErrRateLimited = eris.New("ratelimit: rate limit exceeded")
	// ErrUnknownService is returned by Wait for a service with no limit.
	ErrUnknownService = eris.New("ratelimit: unknown service")
)

// Limit is the budget for one service.
type Limit struct {
	CallsPerMinute int
	MaxRetries     int
}

// Validate rejects non-positive budgets and negative retry counts.
func (l Limit) Validate() error {
	if l.CallsPerMinute <= 0 {
		return eris.Errorf("ratelimit: calls per minute must be positive, got %d", l.CallsPerMinute)
	}
	if l.MaxRetries < 0 {
		return eris.Errorf("ratelimit: max retries must be non-negative, got %d", l.MaxRetries)
	}
	return nil
}

type bucket struct {
	limit   Limit
	limiter *rate.Limiter
}

// Registry holds a limiter per service.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	log     *zap.Logger
}

// New builds a registry from per-service limits.
func New(limits map[string]Limit, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.L()
	}
	r := &Registry{buckets: make(map[string]*bucket, len(limits)), log: log}
	for name, l := range limits {
		if err := r.Set(name, l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FromConfig builds the default registry for anthropic, google_search and
// web_scrape from the ratelimit config section.
func FromConfig(c config.RateLimitConfig, log *zap.Logger) (*Registry, error) {
	return New(map[string]Limit{
		Anthropic:    {CallsPerMinute: c.Anthropic, MaxRetries: c.MaxRetries},
		GoogleSearch: {CallsPerMinute: c.GoogleSearch, MaxRetries: c.MaxRetries},
		WebScrape:    {CallsPerMinute: c.WebScrape, MaxRetries: c.MaxRetries},
	}, log)
}

// Set installs or replaces the limit for a service.
func (r *Registry) Set(name string, l Limit) error {
	if err := l.Validate(); err != nil {
		return eris.Wrapf(err, "ratelimit: service %s", name)
	}
	perSec := rate.Limit(float64(l.CallsPerMinute) / 60.0)
	r.mu.Lock()
	r.buckets[name] = &bucket{limit: l, limiter: rate.NewLimiter(perSec, l.CallsPerMinute)}
	r.mu.Unlock()
	return nil
}

// Services returns the configured service names in sorted order.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.buckets))
	for name := range r.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wait blocks until a call to service is allowed. When the budget is spent
// it sleeps until the next token and tries again, at most MaxRetries times,
// then returns ErrRateLimited.
func (r *Registry) Wait(ctx context.Context, service string) error {
	r.mu.RLock()
	b, ok := r.buckets[service]
	r.mu.RUnlock()
	if !ok {
		return eris.Wrapf(ErrUnknownService, "service %q", service)
	}

	for attempt := 0; ; attempt++ {
		if b.limiter.Allow() {
			return nil
		}
		if attempt >= b.limit.MaxRetries {
			return eris.Wrapf(ErrRateLimited, "service %s after %d retries", service, attempt)
		}

		res := b.limiter.Reserve()
		delay := res.Delay()
		res.Cancel()

		r.log.Debug("ratelimit: waiting",
			zap.String("service", service),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "ratelimit: wait cancelled")
		case <-timer.C:
		}
	}
}
