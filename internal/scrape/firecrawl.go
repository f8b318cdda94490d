package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/resilience"
	"github.com/sells-group/company-scraper/pkg/firecrawl"
)

// FirecrawlFetcher fetches pages through Firecrawl's single-page scrape.
// It renders pages server-side, so it is the last resort in a chain.
type FirecrawlFetcher struct {
	client firecrawl.Client
}

// NewFirecrawlFetcher wraps a Firecrawl client as a Backend.
func NewFirecrawlFetcher(client firecrawl.Client) *FirecrawlFetcher {
	return &FirecrawlFetcher{client: client}
}

// Name implements Backend.
func (f *FirecrawlFetcher) Name() string { return "firecrawl" }

// Fetch scrapes targetURL as Markdown plus its link list.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown", "links"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.New("firecrawl: scrape not successful")
	}

	status := resp.Data.Metadata.StatusCode
	if status == 0 {
		status = resp.Data.StatusCode
	}
	if status != 0 && (status < 200 || status >= 300) {
		return nil, resilience.StatusError("firecrawl", status, "")
	}

	content := strings.TrimSpace(resp.Data.Markdown)
	if content == "" {
		return nil, eris.Wrapf(ErrEmptyPage, "firecrawl: %s", targetURL)
	}

	title := resp.Data.Metadata.Title
	if title == "" {
		title = resp.Data.Title
	}

	anchors := make([]Anchor, 0, len(resp.Data.Links))
	for _, l := range resp.Data.Links {
		anchors = append(anchors, Anchor{Href: l})
	}

	return &Page{
		CrawledPage: model.CrawledPage{
			URL:        targetURL,
			Title:      title,
			Text:       content,
			Markdown:   content,
			Anchors:    anchors,
			StatusCode: status,
		},
		Source: f.Name(),
	}, nil
}
