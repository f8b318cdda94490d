package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries backends in priority order and returns the first page.
type Chain struct {
	matcher  *PathMatcher
	robots   *RobotsChecker
	backends []Backend
	log      *zap.Logger
}

// NewChain creates a Chain. Backends are tried in the order given.
func NewChain(matcher *PathMatcher, backends ...Backend) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Chain{
		matcher:  matcher,
		backends: backends,
		log:      zap.L(),
	}
}

// WithRobots makes the chain honor robots.txt.
func (c *Chain) WithRobots(r *RobotsChecker) *Chain {
	c.robots = r
	return c
}

// WithLogger sets the logger used for fallback diagnostics.
func (c *Chain) WithLogger(log *zap.Logger) *Chain {
	if log != nil {
		c.log = log
	}
	return c
}

// Backends returns the backend names in priority order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Fetch implements Fetcher.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if c.matcher.IsExcluded(targetURL) {
		return nil, eris.Wrapf(ErrExcluded, "scrape: path rule: %s", targetURL)
	}
	if c.robots != nil {
		ok, err := c.robots.Allowed(ctx, targetURL)
		if err != nil {
			return nil, eris.Wrap(err, "scrape: robots")
		}
		if !ok {
			return nil, eris.Wrapf(ErrExcluded, "scrape: robots.txt: %s", targetURL)
		}
	}

	var lastErr error
	for _, b := range c.backends {
		page, err := b.Fetch(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err == nil {
			err = eris.Wrapf(ErrEmptyPage, "scrape: %s returned no page", b.Name())
		}
		c.log.Debug("scrape: backend failed, trying next",
			zap.String("backend", b.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all backends failed")
	}
	return nil, eris.Errorf("scrape: no backend for url: %s", targetURL)
}
