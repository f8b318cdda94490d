package model

import "time"

// Anchor is a link as it appeared on a page.
type Anchor struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// CrawledPage is a fetched page reduced to plain text. HTML or Markdown is
// kept alongside so links can be pulled from whichever form the fetcher
// produced. Anchors hold links a backend reported outside the page body.
type CrawledPage struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	HTML       string   `json:"html,omitempty"`
	Markdown   string   `json:"markdown,omitempty"`
	Anchors    []Anchor `json:"anchors,omitempty"`
	StatusCode int      `json:"status_code"`
}

// PageCache is a cached page with its expiry.
type PageCache struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Page      CrawledPage `json:"page"`
	FetchedAt time.Time   `json:"fetched_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}
