package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CompanyName  string          `json:"company_name,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store persists scrape runs and the fetched-page cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, company model.Company) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.RunResult, metrics *model.RunMetrics) error
	FailRun(ctx context.Context, runID string, runErr *model.RunError, metrics *model.RunMetrics) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Page cache. GetCachedPage returns nil, nil on a miss or an expired entry.
	GetCachedPage(ctx context.Context, url string) (*model.PageCache, error)
	SetCachedPage(ctx context.Context, page model.CrawledPage, ttl time.Duration) error
	DeleteExpiredPages(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

type scannable interface {
	Scan(dest ...any) error
}
