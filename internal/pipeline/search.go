package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/scrape"
	"github.com/sells-group/company-scraper/internal/search"
)

// Search queries the provider for the record's missing fields and fetches
// the unvisited results. A failed result is skipped on its own; a failed
// query leaves the pages untouched. Either way the attempt counts.
func (o *Orchestrator) Search(ctx context.Context, in *model.Session) *model.Session {
	s := in.Clone()
	if s.SearchAttempts >= o.limits.MaxSearchAttempts {
		return s
	}
	defer func() { s.SearchAttempts++ }()

	query := search.Query(s.CompanyName, fieldNames(s.Record.MissingFields(o.limits.CompleteThreshold)))
	log := o.log.With(
		zap.String("step", string(StepSearch)),
		zap.String("company", s.CompanyName),
		zap.String("query", query),
		zap.Int("attempt", s.SearchAttempts+1),
	)

	urls, err := o.search.Search(ctx, query, o.limits.SearchResults)
	if err != nil {
		log.Warn("pipeline: search failed", zap.Error(err))
		return s
	}
	if len(urls) > o.limits.SearchResults {
		urls = urls[:o.limits.SearchResults]
	}

	var fresh []string
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] || s.HasVisited(u) {
			continue
		}
		seen[u] = true
		fresh = append(fresh, u)
	}

	pages := make([]*scrape.Page, len(fresh))
	var g errgroup.Group
	g.SetLimit(max(1, o.limits.SearchResults))
	for i, u := range fresh {
		g.Go(func() error {
			page, err := o.fetcher.Fetch(ctx, u)
			if err != nil {
				log.Debug("pipeline: search result skipped", zap.String("url", u), zap.Error(err))
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()

	recorded := 0
	for i, page := range pages {
		if page == nil || strings.TrimSpace(page.Text) == "" {
			continue
		}
		s.RecordPage(fresh[i], page.Text)
		recorded++
	}

	log.Info("pipeline: search complete",
		zap.Int("results", len(urls)),
		zap.Int("fetched", recorded),
	)
	return s
}

// fieldNames returns the field identifiers as they are used in queries.
func fieldNames(fields []model.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return names
}
