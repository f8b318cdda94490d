package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/llm"
	"github.com/sells-group/company-scraper/internal/metrics"
	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/scrape"
	"github.com/sells-group/company-scraper/internal/search"
	"github.com/sells-group/company-scraper/internal/store"
)

// ErrInvalidInput is returned by Scrape for a missing name or a website
// that is not an absolute http(s) URL.
var ErrInvalidInput = eris.New("pipeline: invalid input")

// Result is what one Scrape call produced. Error is set when the run
// failed; Record still holds whatever was extracted before the failure.
type Result struct {
	RunID string `json:"run_id,omitempty"`
	model.RunResult
	Metrics *model.RunMetrics `json:"metrics"`
	Error   string            `json:"error,omitempty"`
}

// Deps are the collaborators a Scraper needs. Guard and Store are
// optional.
type Deps struct {
	Fetcher scrape.Fetcher
	Search  search.Provider
	LLM     llm.Completer
	Guard   *Guard
	Store   store.Store
	Limits  Limits
	Logger  *zap.Logger
}

// Scraper runs sessions end to end: it records the run, instruments the
// collaborators with a fresh metrics session, drives the orchestrator and
// persists the outcome.
type Scraper struct {
	deps Deps
	log  *zap.Logger
}

// NewScraper validates deps and returns a Scraper.
func NewScraper(d Deps) (*Scraper, error) {
	if d.Fetcher == nil || d.Search == nil || d.LLM == nil {
		return nil, eris.New("pipeline: fetcher, search provider and llm are required")
	}
	if d.Limits == (Limits{}) {
		d.Limits = DefaultLimits()
	}
	log := d.Logger
	if log == nil {
		log = zap.L()
	}
	return &Scraper{deps: d, log: log}, nil
}

// Scrape builds a record for one company. The Result is non-nil whenever
// the input was valid, including when err is non-nil.
func (s *Scraper) Scrape(ctx context.Context, companyName, websiteURL string) (*Result, error) {
	companyName = strings.TrimSpace(companyName)
	websiteURL = strings.TrimSpace(websiteURL)
	if err := validateInput(companyName, websiteURL); err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("company", companyName), zap.String("url", websiteURL))
	m, err := metrics.NewSession(companyName)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if s.deps.Store != nil {
		run, err := s.deps.Store.CreateRun(ctx, model.Company{Name: companyName, URL: websiteURL})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		res.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	fetcher, provider, completer := s.deps.Fetcher, s.deps.Search, s.deps.LLM
	if g := s.deps.Guard; g != nil {
		fetcher = g.Fetcher(fetcher, m)
		provider = g.Provider(provider, m)
		completer = g.Completer(completer, m)
	}

	orch := NewOrchestrator(fetcher, provider, completer,
		WithLimits(s.deps.Limits),
		WithLogger(log),
		WithStepHook(func(step Step, _ *model.Session) {
			s.setStatus(ctx, log, res.RunID, statusFor(step))
		}),
	)

	log.Info("pipeline: starting scrape")
	out, runErr := orch.Run(ctx, companyName, websiteURL)

	rec := out.Session.Record
	for f, score := range rec.ConfidenceScores {
		if err := m.UpdateConfidence(f, score); err != nil {
			log.Warn("pipeline: record confidence", zap.Error(err))
		}
	}
	m.Complete()
	res.Metrics = m.Snapshot()
	res.RunResult = model.RunResult{
		Record:             rec,
		Complete:           rec.IsComplete(s.deps.Limits.CompleteThreshold),
		AverageConfidence:  rec.AverageConfidence(),
		MissingFields:      rec.MissingFields(s.deps.Limits.CompleteThreshold),
		Steps:              out.StepNames(),
		NavigationAttempts: out.Session.NavigationAttempts,
		SearchAttempts:     out.Session.SearchAttempts,
	}

	// Persist even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		res.Error = runErr.Error()
		if s.deps.Store != nil && res.RunID != "" {
			step := ""
			if n := len(out.Steps); n > 0 {
				step = string(out.Steps[n-1])
			}
			rerr := &model.RunError{Message: runErr.Error(), Step: step}
			if err := s.deps.Store.FailRun(persistCtx, res.RunID, rerr, res.Metrics); err != nil {
				log.Error("pipeline: failed to record failure", zap.Error(err))
			}
		}
		return res, eris.Wrap(runErr, "pipeline: scrape")
	}

	if s.deps.Store != nil && res.RunID != "" {
		if err := s.deps.Store.CompleteRun(persistCtx, res.RunID, &res.RunResult, res.Metrics); err != nil {
			return res, eris.Wrap(err, "pipeline: complete run")
		}
	}

	log.Info("pipeline: scrape complete",
		zap.Bool("complete", res.Complete),
		zap.Float64("average_confidence", res.AverageConfidence),
		zap.Int("urls", res.Metrics.TotalURLs),
		zap.Float64("cost_usd", res.Metrics.CostUSD),
	)
	return res, nil
}

func (s *Scraper) setStatus(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus) {
	if s.deps.Store == nil || runID == "" {
		return
	}
	if err := s.deps.Store.UpdateRunStatus(ctx, runID, status); err != nil {
		log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}

func statusFor(step Step) model.RunStatus {
	switch step {
	case StepSearch:
		return model.RunStatusSearching
	case StepExtract:
		return model.RunStatusExtracting
	default:
		return model.RunStatusNavigating
	}
}

func validateInput(companyName, websiteURL string) error {
	if companyName == "" {
		return eris.Wrap(ErrInvalidInput, "company name is required")
	}
	u, err := url.Parse(websiteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return eris.Wrapf(ErrInvalidInput, "website must be an absolute http(s) url, got %q", websiteURL)
	}
	return nil
}
