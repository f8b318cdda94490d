package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/resilience"
)

const (
	defaultLocalTimeout = 10 * time.Second
	maxBodyBytes        = 2 << 20

	// textSelector picks the elements whose text describes a company.
	textSelector = "p, h1, h2, h3, li"
)

// LocalFetcher fetches HTML directly over net/http and reduces it to the
// text of its paragraphs, headings and list items. Free, no API calls.
type LocalFetcher struct {
	client    *http.Client
	userAgent string
}

// LocalOption configures a LocalFetcher.
type LocalOption func(*LocalFetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(l *LocalFetcher) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) LocalOption {
	return func(l *LocalFetcher) {
		if d > 0 {
			l.client.Timeout = d
		}
	}
}

// WithLocalHTTPClient replaces the underlying http.Client.
func WithLocalHTTPClient(hc *http.Client) LocalOption {
	return func(l *LocalFetcher) {
		l.client = hc
	}
}

// NewLocalFetcher creates a LocalFetcher with a 10s timeout and a browser
// user agent.
func NewLocalFetcher(opts ...LocalOption) *LocalFetcher {
	l := &LocalFetcher{
		client: &http.Client{
			Timeout: defaultLocalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0",
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Name implements Backend.
func (l *LocalFetcher) Name() string { return "local" }

// Fetch downloads targetURL, rejects blocks and non-2xx statuses, and
// extracts the page text.
func (l *LocalFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local: blocked (%s)", blockType)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.StatusError("local", resp.StatusCode, "")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "local: parse html")
	}

	text := ExtractText(doc)
	if text == "" {
		return nil, eris.Wrapf(ErrEmptyPage, "local: %s", targetURL)
	}

	return &Page{
		CrawledPage: model.CrawledPage{
			URL:        targetURL,
			Title:      normalize(doc.Find("title").First().Text()),
			Text:       text,
			HTML:       string(body),
			StatusCode: resp.StatusCode,
		},
		Source: l.Name(),
	}, nil
}

// ExtractText joins the normalized text of every paragraph, heading and
// list item in document order.
func ExtractText(doc *goquery.Document) string {
	var parts []string
	doc.Find(textSelector).Each(func(_ int, s *goquery.Selection) {
		if t := normalize(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// normalize applies NFKC and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
