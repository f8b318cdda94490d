package model

// Mode governs which gathering step a session prefers next.
type Mode string

const (
	ModeNavigating Mode = "navigating"
	ModeSearching  Mode = "searching"
)

// PageText is the plain text fetched from one URL.
type PageText struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Session is the state of one scrape. Steps receive a session and return
// an updated clone; the orchestrator owns the current value.
type Session struct {
	CompanyName        string     `json:"company_name"`
	WebsiteURL         string     `json:"website_url"`
	CurrentURL         string     `json:"current_url"`
	VisitedURLs        []string   `json:"visited_urls"`
	PageTexts          []PageText `json:"page_texts"`
	NavigationAttempts int        `json:"navigation_attempts"`
	SearchAttempts     int        `json:"search_attempts"`
	Mode               Mode       `json:"mode"`
	Record             *Record    `json:"record"`
	Err                error      `json:"-"`
}

// NewSession starts a session in navigating mode at the seed URL.
func NewSession(companyName, websiteURL string) *Session {
	return &Session{
		CompanyName: companyName,
		WebsiteURL:  websiteURL,
		CurrentURL:  websiteURL,
		VisitedURLs: []string{},
		PageTexts:   []PageText{},
		Mode:        ModeNavigating,
		Record:      NewRecord(companyName),
	}
}

// HasVisited reports whether url was already fetched successfully.
func (s *Session) HasVisited(url string) bool {
	for _, v := range s.VisitedURLs {
		if v == url {
			return true
		}
	}
	return false
}

// RecordPage stores text for url and marks it visited. A URL seen again
// keeps its position and gets the newer text.
func (s *Session) RecordPage(url, text string) {
	for i := range s.PageTexts {
		if s.PageTexts[i].URL == url {
			s.PageTexts[i].Text = text
			s.markVisited(url)
			return
		}
	}
	s.PageTexts = append(s.PageTexts, PageText{URL: url, Text: text})
	s.markVisited(url)
}

func (s *Session) markVisited(url string) {
	if !s.HasVisited(url) {
		s.VisitedURLs = append(s.VisitedURLs, url)
	}
}

// HasPages reports whether any page text has been gathered.
func (s *Session) HasPages() bool {
	return len(s.PageTexts) > 0
}

// PageTextMap returns the gathered texts keyed by URL.
func (s *Session) PageTextMap() map[string]string {
	m := make(map[string]string, len(s.PageTexts))
	for _, p := range s.PageTexts {
		m[p.URL] = p.Text
	}
	return m
}

// Clone returns a deep copy so a step can mutate freely.
func (s *Session) Clone() *Session {
	c := *s
	c.VisitedURLs = append([]string{}, s.VisitedURLs...)
	c.PageTexts = append([]PageText{}, s.PageTexts...)
	c.Record = s.Record.Clone()
	return &c
}
