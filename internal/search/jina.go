package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/pkg/jina"
)

// JinaProvider searches the web through Jina's search endpoint.
type JinaProvider struct {
	client jina.Client
}

// NewJinaProvider wraps a Jina client.
func NewJinaProvider(client jina.Client) *JinaProvider {
	return &JinaProvider{client: client}
}

// Name implements Provider.
func (p *JinaProvider) Name() string { return "jina" }

// Search implements Provider.
func (p *JinaProvider) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	resp, err := p.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "search: jina")
	}
	urls := make([]string, 0, len(resp.Data))
	for _, r := range resp.Data {
		urls = append(urls, r.URL)
	}
	return collect(urls, maxResults), nil
}
