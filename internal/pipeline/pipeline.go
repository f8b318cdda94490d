// Package pipeline runs the navigate, search and extract state machine
// that builds a company record.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/config"
	"github.com/sells-group/company-scraper/internal/llm"
	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/scrape"
	"github.com/sells-group/company-scraper/internal/search"
)

// ErrStepLimit is returned if a session runs more steps than its budgets
// allow. It indicates a routing bug.
var ErrStepLimit = eris.New("pipeline: step limit exceeded")

// Limits bounds a session.
type Limits struct {
	MaxNavigationAttempts int
	MaxSearchAttempts     int
	SearchResults         int
	HaltThreshold         float64
	CompleteThreshold     float64
}

// DefaultLimits returns five navigation and five search attempts, three
// results per search and the 0.70 / 0.75 thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxNavigationAttempts: 5,
		MaxSearchAttempts:     5,
		SearchResults:         3,
		HaltThreshold:         model.DefaultHaltThreshold,
		CompleteThreshold:     model.DefaultCompleteThreshold,
	}
}

// LimitsFromConfig converts the pipeline config section.
func LimitsFromConfig(c config.PipelineConfig) Limits {
	return Limits{
		MaxNavigationAttempts: c.MaxNavigationAttempts,
		MaxSearchAttempts:     c.MaxSearchAttempts,
		SearchResults:         c.SearchResults,
		HaltThreshold:         c.HaltThreshold,
		CompleteThreshold:     c.CompleteThreshold,
	}
}

// maxSteps is the most steps a session can take: every navigation plus
// one mode flip, every search, and one extraction after each of those.
func (l Limits) maxSteps() int {
	gather := l.MaxNavigationAttempts + 1 + l.MaxSearchAttempts
	return 2*gather + 1
}

// ExtractionError is the fatal error an extraction step leaves on a
// session.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return "pipeline: extraction failed: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Outcome is the final session and the steps taken to reach it. It is
// returned even when Run fails so a partial record is never lost.
type Outcome struct {
	Session *model.Session
	Steps   []Step
}

// StepNames returns the steps as strings.
func (o *Outcome) StepNames() []string {
	names := make([]string, len(o.Steps))
	for i, s := range o.Steps {
		names[i] = string(s)
	}
	return names
}

// Orchestrator drives one session at a time through its steps. It holds
// no per-session state and may be shared across goroutines when its
// collaborators are.
type Orchestrator struct {
	fetcher scrape.Fetcher
	search  search.Provider
	llm     llm.Completer
	limits  Limits
	log     *zap.Logger
	onStep  func(step Step, s *model.Session)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

// WithLogger sets the logger. A nil logger keeps zap.L().
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithStepHook registers a callback invoked before each step runs.
func WithStepHook(fn func(step Step, s *model.Session)) Option {
	return func(o *Orchestrator) { o.onStep = fn }
}

// NewOrchestrator wires the three collaborators.
func NewOrchestrator(f scrape.Fetcher, p search.Provider, c llm.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: f,
		search:  p,
		llm:     c,
		limits:  DefaultLimits(),
		log:     zap.L(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run scrapes one company starting at its website. The returned Outcome
// is never nil. An error means extraction failed or ctx ended; the
// Outcome then holds whatever was gathered.
func (o *Orchestrator) Run(ctx context.Context, companyName, websiteURL string) (*Outcome, error) {
	return o.RunSession(ctx, model.NewSession(companyName, websiteURL))
}

// RunSession continues an existing session from the navigation step.
func (o *Orchestrator) RunSession(ctx context.Context, s *model.Session) (*Outcome, error) {
	log := o.log.With(zap.String("company", s.CompanyName), zap.String("url", s.WebsiteURL))
	out := &Outcome{Session: s}
	start := time.Now()

	next := StepNavigate
	limit := o.limits.maxSteps()
	for next != StepDone {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "pipeline: session abandoned")
		}
		if len(out.Steps) >= limit {
			return out, eris.Wrapf(ErrStepLimit, "after %d steps", len(out.Steps))
		}
		if o.onStep != nil {
			o.onStep(next, out.Session)
		}

		out.Steps = append(out.Steps, next)
		cur := next
		switch cur {
		case StepNavigate:
			out.Session = o.Navigate(ctx, out.Session)
			next = routeAfterGather(out.Session, o.limits)
		case StepSearch:
			out.Session = o.Search(ctx, out.Session)
			next = routeAfterGather(out.Session, o.limits)
		case StepExtract:
			out.Session = o.Extract(ctx, out.Session)
			if out.Session.Err != nil {
				log.Error("pipeline: session failed",
					zap.String("step", string(cur)),
					zap.Int("steps", len(out.Steps)),
					zap.Error(out.Session.Err),
				)
				return out, out.Session.Err
			}
			next = routeAfterExtract(out.Session, o.limits)
		default:
			return out, eris.Errorf("pipeline: unknown step %q", cur)
		}

		log.Debug("pipeline: step complete",
			zap.String("step", string(cur)),
			zap.String("next", string(next)),
			zap.String("mode", string(out.Session.Mode)),
			zap.Int("navigation_attempts", out.Session.NavigationAttempts),
			zap.Int("search_attempts", out.Session.SearchAttempts),
		)
	}

	rec := out.Session.Record
	log.Info("pipeline: session complete",
		zap.Int("steps", len(out.Steps)),
		zap.Int("pages", len(out.Session.PageTexts)),
		zap.Bool("has_all_info", model.HasAllInfo(rec, o.limits.HaltThreshold)),
		zap.Bool("complete", rec.IsComplete(o.limits.CompleteThreshold)),
		zap.Float64("average_confidence", rec.AverageConfidence()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
