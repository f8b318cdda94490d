package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/resilience"
	"github.com/sells-group/company-scraper/pkg/jina"
)

// ErrNeedsFallback is returned when the reader answered with a challenge
// page or too little content.
var ErrNeedsFallback = eris.New("jina: response needs fallback")

// JinaFetcher fetches pages through the Jina reader. Three consecutive
// failures open its breaker for a minute so the chain skips it.
type JinaFetcher struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaFetcher wraps a Jina client as a Backend.
func NewJinaFetcher(client jina.Client) *JinaFetcher {
	return &JinaFetcher{
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     60 * time.Second,
		}),
	}
}

// Name implements Backend.
func (j *JinaFetcher) Name() string { return "jina" }

// Fetch reads targetURL as Markdown. The Markdown doubles as page text.
func (j *JinaFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	resp, err := resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, ErrNeedsFallback
		}
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: fetch")
	}

	content := strings.TrimSpace(resp.Data.Content)
	return &Page{
		CrawledPage: model.CrawledPage{
			URL:        targetURL,
			Title:      resp.Data.Title,
			Text:       content,
			Markdown:   content,
			Anchors:    SortedAnchors(resp.Data.Links),
			StatusCode: 200,
		},
		Source: j.Name(),
		Tokens: resp.Data.Usage.Tokens,
	}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback reports whether a reader response is blocked or too thin
// to be worth keeping.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}

	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
