package search

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/pkg/jina"
	"github.com/sells-group/company-scraper/pkg/perplexity"
)

// New returns the provider registered under name.
func New(name string, jc jina.Client, pc perplexity.Client) (Provider, error) {
	switch name {
	case "", "jina":
		if jc == nil {
			return nil, eris.New("search: jina client not configured")
		}
		return NewJinaProvider(jc), nil
	case "perplexity":
		if pc == nil {
			return nil, eris.New("search: perplexity client not configured")
		}
		return NewPerplexityProvider(pc), nil
	default:
		return nil, eris.Wrapf(ErrUnknownProvider, "search: %q", name)
	}
}
