package model

import (
	"time"
)

// RunStatus represents the current state of a scrape run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusNavigating RunStatus = "navigating"
	RunStatusSearching  RunStatus = "searching"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Company identifies the company to scrape.
type Company struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Run represents a single scrape run for a company.
type Run struct {
	ID        string      `json:"id"`
	Company   Company     `json:"company"`
	Status    RunStatus   `json:"status"`
	Result    *RunResult  `json:"result,omitempty"`
	Metrics   *RunMetrics `json:"metrics,omitempty"`
	Error     *RunError   `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunResult holds the final record and the path the session took.
type RunResult struct {
	Record             *Record  `json:"record"`
	Complete           bool     `json:"complete"`
	AverageConfidence  float64  `json:"average_confidence"`
	MissingFields      []Field  `json:"missing_fields"`
	Steps              []string `json:"steps"`
	NavigationAttempts int      `json:"navigation_attempts"`
	SearchAttempts     int      `json:"search_attempts"`
}

// RunError captures why a run failed.
type RunError struct {
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

// APIMetrics is a point-in-time view of calls made to one external API.
type APIMetrics struct {
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	TotalTime       float64 `json:"total_time"`
	SuccessRate     float64 `json:"success_rate"`
	AverageDuration float64 `json:"average_duration"`
}

// RunMetrics is the persisted snapshot of a session's metrics.
type RunMetrics struct {
	CompanyName       string                `json:"company_name"`
	StartTime         time.Time             `json:"start_time"`
	EndTime           *time.Time            `json:"end_time"`
	Duration          float64               `json:"duration"`
	URLsVisited       []string              `json:"urls_visited"`
	TotalURLs         int                   `json:"total_urls"`
	APIMetrics        map[string]APIMetrics `json:"api_metrics"`
	FieldConfidence   map[Field]float64     `json:"field_confidence"`
	AverageConfidence float64               `json:"average_confidence"`
	InputTokens       int64                 `json:"input_tokens"`
	OutputTokens      int64                 `json:"output_tokens"`
	CostUSD           float64               `json:"cost_usd"`
}
