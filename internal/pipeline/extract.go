package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/company-scraper/internal/model"
)

// evidenceContext is how many bytes of text to keep either side of a
// matched value.
const evidenceContext = 80

// Extract asks the model for the record fields in one call over every
// gathered page. Any failure sets Err on the returned copy and leaves the
// record as it was. Non-empty fields overwrite the record unconditionally.
func (o *Orchestrator) Extract(ctx context.Context, in *model.Session) *model.Session {
	s := in.Clone()
	if !s.HasPages() {
		return s
	}
	log := o.log.With(
		zap.String("step", string(StepExtract)),
		zap.String("company", s.CompanyName),
		zap.Int("pages", len(s.PageTexts)),
	)

	user, err := userPrompt(s.PageTexts)
	if err != nil {
		s.Err = &ExtractionError{Err: err}
		return s
	}

	comp, err := o.llm.Complete(ctx, systemPrompt, user)
	if err != nil {
		s.Err = &ExtractionError{Err: err}
		return s
	}

	fields, err := parseExtraction(comp.Text)
	if err != nil {
		s.Err = &ExtractionError{Err: err}
		return s
	}

	rec := s.Record.Clone()
	for _, f := range fields {
		if err := rec.SetField(f.Field, f.Value, f.Confidence); err != nil {
			s.Err = &ExtractionError{Err: err}
			return s
		}
		text, source := findEvidence(s.PageTexts, f.Value)
		rec.AddEvidence(f.Field, text, source)
	}
	for _, p := range s.PageTexts {
		rec.AddSource(p.URL)
	}
	s.Record = rec

	log.Info("pipeline: fields extracted",
		zap.Int("updated", len(fields)),
		zap.Strings("missing", fieldNames(rec.MissingFields(o.limits.CompleteThreshold))),
		zap.Float64("average_confidence", rec.AverageConfidence()),
	)
	return s
}

// findEvidence returns the text around the first occurrence of value and
// the page it came from. Without a match it falls back to the value and
// the first page.
func findEvidence(pages []model.PageText, value string) (string, string) {
	for _, p := range pages {
		idx := strings.Index(p.Text, value)
		if idx < 0 {
			continue
		}
		start := max(0, idx-evidenceContext)
		for start > 0 && !utf8.RuneStart(p.Text[start]) {
			start--
		}
		end := min(len(p.Text), idx+len(value)+evidenceContext)
		for end < len(p.Text) && !utf8.RuneStart(p.Text[end]) {
			end++
		}
		return strings.TrimSpace(p.Text[start:end]), p.URL
	}
	if len(pages) == 0 {
		return value, ""
	}
	return value, pages[0].URL
}
