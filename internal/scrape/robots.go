package scrape

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
)

// RobotsChecker caches robots.txt groups per host. A missing or unreadable
// robots.txt allows everything. Lookups cut short by the caller's context
// are not cached.
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobotsChecker creates a checker that evaluates rules for userAgent.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be fetched.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, eris.Wrap(err, "robots: parse url")
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return false, eris.Errorf("robots: empty host in %q", rawURL)
	}

	r.mu.Lock()
	group, ok := r.groups[host]
	r.mu.Unlock()

	if !ok {
		group = r.fetch(ctx, u.Scheme, host)
		if err := ctx.Err(); err != nil {
			return false, eris.Wrapf(err, "robots: fetch %s", host)
		}
		r.mu.Lock()
		r.groups[host] = group
		r.mu.Unlock()
	}

	if group == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), nil
}

func (r *RobotsChecker) fetch(ctx context.Context, scheme, host string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(r.userAgent)
}
