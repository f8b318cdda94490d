// Package scrape fetches single company pages and pulls navigation
// candidates out of them.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
)

var (
	// ErrEmptyPage is returned when a page yields no usable text.
	ErrEmptyPage = eris.New("scrape: empty page")
	// ErrExcluded is returned for URLs rejected by path rules or robots.txt.
	ErrExcluded = eris.New("scrape: url excluded")
)

// Anchor is a link as it appeared on a page.
type Anchor = model.Anchor

// Page is a fetched page with the backend that produced it. URL is always
// the URL that was requested. Tokens is the billed usage for metered
// backends.
type Page struct {
	model.CrawledPage
	Source string `json:"source"`
	Tokens int    `json:"tokens,omitempty"`
}

// Fetcher retrieves one URL and reduces it to plain text. Non-2xx
// responses and pages without text are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Backend is a named Fetcher that can take part in a Chain.
type Backend interface {
	Fetcher
	Name() string
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Page, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Page, error) {
	return f(ctx, url)
}
