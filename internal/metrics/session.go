// Package metrics tracks per-session call statistics, visited URLs, field
// confidence and spend, and summarizes persisted runs.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
)

var (
	// ErrNegativeDuration is returned by AddCall for a negative duration.
	ErrNegativeDuration = eris.New("metrics: duration cannot be negative")
	// ErrEmptyURL is returned by AddURL for an empty URL.
	ErrEmptyURL = eris.New("metrics: url cannot be empty")
)

type apiStats struct {
	total     int
	succeeded int
	failed    int
	elapsed   time.Duration
}

func (a apiStats) snapshot() model.APIMetrics {
	m := model.APIMetrics{
		TotalCalls:      a.total,
		SuccessfulCalls: a.succeeded,
		FailedCalls:     a.failed,
		TotalTime:       a.elapsed.Seconds(),
	}
	if a.total > 0 {
		m.SuccessRate = float64(a.succeeded) / float64(a.total)
		m.AverageDuration = m.TotalTime / float64(a.total)
	}
	return m
}

// Session collects metrics for one scrape. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	company string
	start   time.Time
	end     *time.Time

	apis       map[string]*apiStats
	urls       []string
	seen       map[string]bool
	confidence map[model.Field]float64

	inputTokens  int64
	outputTokens int64
	costUSD      float64

	now func() time.Time
}

// NewSession starts a metrics session. The company name is required.
func NewSession(company string) (*Session, error) {
	if company == "" {
		return nil, eris.New("metrics: company name is required")
	}
	s := &Session{
		company:    company,
		apis:       make(map[string]*apiStats),
		seen:       make(map[string]bool),
		confidence: make(map[model.Field]float64),
		now:        time.Now,
	}
	s.start = s.now().UTC()
	return s, nil
}

// AddCall records one call to api.
func (s *Session) AddCall(api string, d time.Duration, ok bool) error {
	if d < 0 {
		return ErrNegativeDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.apis[api]
	if !exists {
		st = &apiStats{}
		s.apis[api] = st
	}
	st.total++
	st.elapsed += d
	if ok {
		st.succeeded++
	} else {
		st.failed++
	}
	return nil
}

// AddURL records a visited URL. Repeats are counted once.
func (s *Session) AddURL(url string) error {
	if url == "" {
		return ErrEmptyURL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seen[url] {
		s.seen[url] = true
		s.urls = append(s.urls, url)
	}
	return nil
}

// UpdateConfidence keeps the highest confidence seen for field.
func (s *Session) UpdateConfidence(field model.Field, score float64) error {
	if err := model.ValidateConfidence(score); err != nil {
		return eris.Wrapf(err, "metrics: field %s", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.confidence[field]; !ok || score > cur {
		s.confidence[field] = score
	}
	return nil
}

// AddUsage adds LLM token counts and their cost.
func (s *Session) AddUsage(input, output int64, costUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputTokens += input
	s.outputTokens += output
	s.costUSD += costUSD
}

// AddCost adds a flat cost such as a per-query search fee.
func (s *Session) AddCost(costUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costUSD += costUSD
}

// Complete stamps the end time. Later calls keep the first stamp.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end == nil {
		t := s.now().UTC()
		s.end = &t
	}
}

// Snapshot returns a copy of the current metrics.
func (s *Session) Snapshot() *model.RunMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &model.RunMetrics{
		CompanyName:     s.company,
		StartTime:       s.start,
		URLsVisited:     append([]string(nil), s.urls...),
		TotalURLs:       len(s.urls),
		APIMetrics:      make(map[string]model.APIMetrics, len(s.apis)),
		FieldConfidence: make(map[model.Field]float64, len(s.confidence)),
		InputTokens:     s.inputTokens,
		OutputTokens:    s.outputTokens,
		CostUSD:         s.costUSD,
	}
	if s.end != nil {
		end := *s.end
		m.EndTime = &end
		m.Duration = end.Sub(s.start).Seconds()
	}
	for name, st := range s.apis {
		m.APIMetrics[name] = st.snapshot()
	}
	var sum float64
	for f, v := range s.confidence {
		m.FieldConfidence[f] = v
		sum += v
	}
	if len(s.confidence) > 0 {
		m.AverageConfidence = sum / float64(len(s.confidence))
	}
	return m
}

// APIs returns the names of every API called so far, sorted.
func (s *Session) APIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.apis))
	for name := range s.apis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
