package cost

import "github.com/sells-group/company-scraper/internal/config"

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// Rates holds per-provider pricing.
type Rates struct {
	Models             map[string]ModelRate
	JinaPerMTok        float64
	PerplexityPerQuery float64
	FirecrawlPerPage   float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig layers the pricing section over DefaultRates. Configured
// models replace the default entry of the same name.
func FromConfig(c config.PricingConfig) *Calculator {
	rates := DefaultRates()
	for name, m := range c.Models {
		rates.Models[name] = ModelRate{Input: m.Input, Output: m.Output}
	}
	if c.JinaPerMTok > 0 {
		rates.JinaPerMTok = c.JinaPerMTok
	}
	if c.PerplexityPerQuery > 0 {
		rates.PerplexityPerQuery = c.PerplexityPerQuery
	}
	if c.FirecrawlPerPage > 0 {
		rates.FirecrawlPerPage = c.FirecrawlPerPage
	}
	return NewCalculator(rates)
}

// LLM computes the cost of one completion. Unknown models cost 0.
func (c *Calculator) LLM(model string, input, output int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Jina computes the cost for Jina Reader token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.JinaPerMTok
}

// PerplexityQuery returns the flat cost per Perplexity query.
func (c *Calculator) PerplexityQuery() float64 {
	return c.rates.PerplexityPerQuery
}

// FirecrawlPage returns the cost of one Firecrawl scrape.
func (c *Calculator) FirecrawlPage() float64 {
	return c.rates.FirecrawlPerPage
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
			"gpt-4o":                     {Input: 2.50, Output: 10.00},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		},
		JinaPerMTok:        0.02,
		PerplexityPerQuery: 0.005,
		FirecrawlPerPage:   0.00633,
	}
}
