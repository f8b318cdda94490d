package search

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/pkg/perplexity"
)

const perplexitySystem = "You are a research assistant. Answer briefly and cite the web pages you used."

var urlRe = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// PerplexityProvider turns a Perplexity answer into result URLs. Cited and
// searched sources come first; URLs quoted in the answer fill any
// remaining slots.
type PerplexityProvider struct {
	client perplexity.Client
}

// NewPerplexityProvider wraps a Perplexity client.
func NewPerplexityProvider(client perplexity.Client) *PerplexityProvider {
	return &PerplexityProvider{client: client}
}

// Name implements Provider.
func (p *PerplexityProvider) Name() string { return "perplexity" }

// Search implements Provider.
func (p *PerplexityProvider) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystem},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: perplexity")
	}

	urls := append(resp.SourceURLs(), urlRe.FindAllString(resp.Text(), -1)...)
	return collect(urls, maxResults), nil
}
