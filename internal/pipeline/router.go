package pipeline

import "github.com/sells-group/company-scraper/internal/model"

// Step names a state of the orchestrator.
type Step string

const (
	StepNavigate Step = "navigate"
	StepSearch   Step = "search"
	StepExtract  Step = "extract"
	StepDone     Step = "done"
)

// Route is the general transition evaluated between steps.
func Route(s *model.Session, l Limits) Step {
	if next, ok := routeBudgets(s, l); ok {
		return next
	}
	if s.HasPages() {
		return StepExtract
	}
	return StepDone
}

// routeAfterGather follows a navigation or search step. Any gathered text
// goes to extraction first.
func routeAfterGather(s *model.Session, l Limits) Step {
	if s.HasPages() {
		return StepExtract
	}
	return Route(s, l)
}

// routeAfterExtract follows an extraction step. It never chooses another
// extraction, so every extraction is paid for by a navigation or search
// attempt.
func routeAfterExtract(s *model.Session, l Limits) Step {
	if next, ok := routeBudgets(s, l); ok {
		return next
	}
	return StepDone
}

func routeBudgets(s *model.Session, l Limits) (Step, bool) {
	switch {
	case model.HasAllInfo(s.Record, l.HaltThreshold):
		return StepDone, true
	case s.Mode == model.ModeNavigating && s.NavigationAttempts < l.MaxNavigationAttempts:
		return StepNavigate, true
	case s.Mode == model.ModeSearching && s.SearchAttempts < l.MaxSearchAttempts:
		return StepSearch, true
	}
	return "", false
}
