package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-scraper/internal/model"
	"github.com/sells-group/company-scraper/internal/pipeline"
)

var (
	scrapeName   string
	scrapeURL    string
	scrapeFormat string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Build a fact record for one company",
	Example: `  company-scraper scrape --name "Acme Corp" --url https://acme.com
  company-scraper scrape --name "Acme Corp" --url https://acme.com --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapeFormat != "json" && scrapeFormat != "yaml" {
			return eris.Errorf("unsupported format %q (json or yaml)", scrapeFormat)
		}
		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScraper(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Scraper.Scrape(ctx, scrapeName, scrapeURL)
		if res == nil {
			return runErr
		}

		zap.L().Info("scrape finished",
			zap.String("company", scrapeName),
			zap.String("run_id", res.RunID),
			zap.Bool("complete", res.Complete),
			zap.Float64("avg_confidence", res.AverageConfidence),
		)

		if err := writeReport(os.Stdout, newScrapeReport(res), scrapeFormat); err != nil {
			return err
		}
		return runErr
	},
}

// scrapeReport is the printable summary of one run.
type scrapeReport struct {
	RunID             string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Record            *model.Record `json:"record" yaml:"record"`
	Complete          bool          `json:"complete" yaml:"complete"`
	AverageConfidence float64       `json:"average_confidence" yaml:"average_confidence"`
	MissingFields     []model.Field `json:"missing_fields" yaml:"missing_fields"`
	Steps             []string      `json:"steps" yaml:"steps"`
	URLsVisited       int           `json:"urls_visited" yaml:"urls_visited"`
	CostUSD           float64       `json:"cost_usd" yaml:"cost_usd"`
	Error             string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func newScrapeReport(res *pipeline.Result) scrapeReport {
	r := scrapeReport{
		RunID:             res.RunID,
		Record:            res.Record,
		Complete:          res.Complete,
		AverageConfidence: res.AverageConfidence,
		MissingFields:     res.MissingFields,
		Steps:             res.Steps,
		Error:             res.Error,
	}
	if res.Metrics != nil {
		r.URLsVisited = res.Metrics.TotalURLs
		r.CostUSD = res.Metrics.CostUSD
	}
	return r
}

func writeReport(w io.Writer, r scrapeReport, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "encode yaml report")
		}
		return eris.Wrap(enc.Close(), "encode yaml report")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(r), "encode json report")
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeName, "name", "", "company name (required)")
	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "company website URL (required)")
	scrapeCmd.Flags().StringVar(&scrapeFormat, "format", "json", "output format: json or yaml")
	_ = scrapeCmd.MarkFlagRequired("name")
	_ = scrapeCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(scrapeCmd)
}
