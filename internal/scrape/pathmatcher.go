package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip downloads that never carry page text.
var defaultExcludePatterns = []string{"*.pdf", "*.zip", "*.jpg", "*.png", "*.mp4"}

// pathRule is one lowercased glob. Rooted rules ("/blog/*") match the whole
// path and a trailing "/*" covers every depth below it; bare rules ("*.pdf")
// match the last segment wherever it sits.
type pathRule struct {
	glob   string
	rooted bool
	subdir string
}

func newPathRule(pattern string) pathRule {
	p := strings.ToLower(pattern)
	r := pathRule{glob: p, rooted: strings.HasPrefix(p, "/")}
	if r.rooted && strings.HasSuffix(p, "/*") {
		r.subdir = strings.TrimSuffix(p, "/*")
	}
	return r
}

func (r pathRule) match(urlPath string) bool {
	if !r.rooted {
		ok, _ := path.Match(r.glob, path.Base(urlPath))
		return ok
	}
	if ok, _ := path.Match(r.glob, urlPath); ok {
		return true
	}
	return r.subdir != "" && (urlPath == r.subdir || strings.HasPrefix(urlPath, r.subdir+"/"))
}

// PathMatcher decides which site URLs the fetch chain refuses up front.
// Matching is case-insensitive; unparseable URLs are always excluded.
type PathMatcher struct {
	rules []pathRule
}

// NewPathMatcher compiles patterns, using defaultExcludePatterns when none
// are given.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	m := &PathMatcher{rules: make([]pathRule, len(patterns))}
	for i, p := range patterns {
		m.rules[i] = newPathRule(p)
	}
	return m
}

// IsExcluded reports whether rawURL matches any rule.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, r := range m.rules {
		if r.match(p) {
			return true
		}
	}
	return false
}
