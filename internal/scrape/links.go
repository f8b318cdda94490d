package scrape

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// NavigationKeywords mark links likely to describe the company.
var NavigationKeywords = []string{
	"about", "company", "products", "services", "clients",
	"customers", "contact", "locations", "overview",
}

// ExtractLinks returns the page's same-site navigation candidates in page
// order. A link qualifies when its href or anchor text contains a
// navigation keyword and its URL, resolved against the page, contains
// seedURL. Anchors come from the page's HTML, its Markdown, and any
// structured links the fetcher supplied.
func ExtractLinks(page *Page, seedURL string) []string {
	if page == nil {
		return nil
	}

	var anchors []Anchor
	anchors = append(anchors, htmlAnchors(page.HTML)...)
	anchors = append(anchors, markdownAnchors(page.Markdown)...)
	anchors = append(anchors, page.Anchors...)

	base, _ := url.Parse(page.URL)

	seen := make(map[string]bool)
	var out []string
	for _, a := range anchors {
		if !matchesKeyword(a) {
			continue
		}
		resolved := resolve(base, a.Href)
		if resolved == "" || !strings.Contains(resolved, seedURL) || seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, resolved)
	}
	return out
}

func matchesKeyword(a Anchor) bool {
	href := strings.ToLower(a.Href)
	txt := strings.ToLower(a.Text)
	for _, kw := range NavigationKeywords {
		if strings.Contains(href, kw) || strings.Contains(txt, kw) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	switch ref.Scheme {
	case "http", "https":
	default:
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

func htmlAnchors(html string) []Anchor {
	if html == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []Anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, Anchor{Href: href, Text: normalize(s.Text())})
	})
	return out
}

func markdownAnchors(md string) []Anchor {
	if md == "" {
		return nil
	}
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var out []Anchor
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch link := n.(type) {
		case *ast.Link:
			out = append(out, Anchor{Href: string(link.Destination), Text: nodeText(link, src)})
		case *ast.AutoLink:
			u := string(link.URL(src))
			out = append(out, Anchor{Href: u, Text: u})
		}
		return ast.WalkContinue, nil
	})
	return out
}

// nodeText concatenates the text segments beneath n.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(src))
			buf.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return normalize(buf.String())
}

// SortedAnchors turns a text-to-URL map into anchors ordered by URL.
func SortedAnchors(links map[string]string) []Anchor {
	out := make([]Anchor, 0, len(links))
	for txt, href := range links {
		out = append(out, Anchor{Href: href, Text: txt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Href == out[j].Href {
			return out[i].Text < out[j].Text
		}
		return out[i].Href < out[j].Href
	})
	return out
}
