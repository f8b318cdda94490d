package metrics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/store"
)

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Summary aggregates persisted runs over a lookback window.
type Summary struct {
	Total      int `json:"total"`
	Complete   int `json:"complete"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`

	FailRate          float64 `json:"fail_rate"`
	CompleteRecords   int     `json:"complete_records"`
	AverageConfidence float64 `json:"average_confidence"`
	AverageURLs       float64 `json:"average_urls"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	TotalTokens       int64   `json:"total_tokens"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector summarizes runs from the store.
type Collector struct {
	runs RunLister
}

// NewCollector creates a collector over runs.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect summarizes runs created within the last lookbackHours. Zero means
// no cutoff.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Summary, error) {
	now := time.Now().UTC()
	sum := &Summary{LookbackHours: lookbackHours, CollectedAt: now}

	filter := store.RunFilter{Limit: 10000}
	if lookbackHours > 0 {
		filter.CreatedAfter = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	runs, err := c.runs.ListRuns(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "metrics: list runs")
	}

	sum.Total = len(runs)
	var confSum float64
	var scored, withMetrics, urls int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			sum.Complete++
		case model.RunStatusFailed:
			sum.Failed++
		default:
			sum.InProgress++
		}
		if r.Result != nil {
			if r.Result.Complete {
				sum.CompleteRecords++
			}
			confSum += r.Result.AverageConfidence
			scored++
		}
		if r.Metrics != nil {
			sum.TotalCostUSD += r.Metrics.CostUSD
			sum.TotalTokens += r.Metrics.InputTokens + r.Metrics.OutputTokens
			urls += r.Metrics.TotalURLs
			withMetrics++
		}
	}

	if finished := sum.Complete + sum.Failed; finished > 0 {
		sum.FailRate = float64(sum.Failed) / float64(finished)
	}
	if scored > 0 {
		sum.AverageConfidence = confSum / float64(scored)
	}
	if withMetrics > 0 {
		sum.AverageURLs = float64(urls) / float64(withMetrics)
	}
	return sum, nil
}
