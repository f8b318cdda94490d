package pipeline

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/company-scraper/internal/llm"
	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/scrape"
)

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*scrape.Page, error) {
	args := m.Called(ctx, url)
	if p := args.Get(0); p != nil {
		return p.(*scrape.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockProvider struct{ mock.Mock }

func (m *mockProvider) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	args := m.Called(ctx, query, maxResults)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) Name() string { return "mock-search" }

type mockCompleter struct{ mock.Mock }

func (m *mockCompleter) Complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	args := m.Called(ctx, system, user)
	if c := args.Get(0); c != nil {
		return c.(*llm.Completion), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCompleter) Name() string { return "mock-llm" }

// htmlPage builds a fetched page whose text is text and whose HTML holds
// the given anchors as href -> anchor text.
func htmlPage(url, text string, links ...[2]string) *scrape.Page {
	html := "<html><body><p>" + text + "</p>"
	for _, l := range links {
		html += `<a href="` + l[0] + `">` + l[1] + `</a>`
	}
	html += "</body></html>"
	return &scrape.Page{
		CrawledPage: model.CrawledPage{URL: url, Text: text, HTML: html, StatusCode: 200},
		Source:      "local",
	}
}

// reply renders an extraction reply with every value at score.
func reply(values map[string]any, score float64) *llm.Completion {
	body := map[string]any{}
	scores := map[string]float64{}
	for k, v := range values {
		body[k] = v
		scores[k] = score
	}
	body["confidence_scores"] = scores
	b, _ := json.Marshal(body)
	return &llm.Completion{Text: string(b), Model: "claude-sonnet-4-5-20250929", Usage: llm.Usage{InputTokens: 1000, OutputTokens: 200}}
}

func fullReply(score float64) *llm.Completion {
	return reply(map[string]any{
		"company_name":         "Acme",
		"company_location":     "Austin, Texas",
		"products_or_services": []string{"Rockets", "Launch services"},
		"company_overview":     "Acme builds rockets.",
		"target_clients":       []string{"Satellite operators"},
	}, score)
}

func testLimits() Limits {
	return DefaultLimits()
}
