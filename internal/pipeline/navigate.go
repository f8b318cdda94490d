package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/scrape"
)

// Navigate fetches the session's current URL and picks the next same-site
// page to visit. Any fetch failure abandons the website for the rest of
// the session: the returned copy differs from in only by its mode.
func (o *Orchestrator) Navigate(ctx context.Context, in *model.Session) *model.Session {
	s := in.Clone()
	log := o.log.With(
		zap.String("step", string(StepNavigate)),
		zap.String("company", s.CompanyName),
		zap.String("url", s.CurrentURL),
	)

	if s.NavigationAttempts >= o.limits.MaxNavigationAttempts {
		log.Info("pipeline: navigation budget spent, switching to search",
			zap.Int("attempt", s.NavigationAttempts))
		s.Mode = model.ModeSearching
		return s
	}

	page, err := o.fetcher.Fetch(ctx, s.CurrentURL)
	if err == nil && (page == nil || strings.TrimSpace(page.Text) == "") {
		err = scrape.ErrEmptyPage
	}
	if err != nil {
		log.Warn("pipeline: navigation failed, switching to search", zap.Error(err))
		s.Mode = model.ModeSearching
		return s
	}

	url := s.CurrentURL
	s.RecordPage(url, page.Text)
	for _, link := range scrape.ExtractLinks(page, s.WebsiteURL) {
		if !s.HasVisited(link) {
			s.CurrentURL = link
			break
		}
	}
	s.NavigationAttempts++

	log.Info("pipeline: page navigated",
		zap.Int("attempt", s.NavigationAttempts),
		zap.String("next_url", s.CurrentURL),
		zap.Int("text_len", len(page.Text)),
	)
	return s
}
