// Package search finds candidate URLs for a company when its own site runs
// out of useful pages.
package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Provider returns up to maxResults result URLs for query, best first.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
	Name() string
}

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = eris.New("search: unknown provider")

// Query builds the search query for a company. With nothing missing it
// asks for a general overview; otherwise it names the missing fields.
func Query(company string, missing []string) string {
	if len(missing) == 0 {
		return company + " company information overview"
	}
	return company + " " + strings.Join(missing, " ")
}

// collect keeps the first limit distinct http(s) URLs.
func collect(urls []string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, limit)
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
		if len(out) == limit {
			break
		}
	}
	return out
}
