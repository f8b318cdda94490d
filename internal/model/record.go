package model

import (
	"github.com/rotisserie/eris"
)

// Field names a primary attribute of an extraction record.
type Field string

const (
	FieldName          Field = "name"
	FieldLocation      Field = "location"
	FieldOfferings     Field = "offerings"
	FieldOverview      Field = "overview"
	FieldTargetClients Field = "target_clients"
)

// DefaultCompleteThreshold is the per-field confidence a record needs to be
// considered complete.
const DefaultCompleteThreshold = 0.75

// ErrInvalidConfidence is returned when a confidence score falls outside [0,1].
var ErrInvalidConfidence = eris.New("model: confidence score must be between 0 and 1")

// AllFields returns every field in canonical order, name first.
func AllFields() []Field {
	return []Field{FieldName, FieldLocation, FieldOfferings, FieldOverview, FieldTargetClients}
}

// PrimaryFields returns the fields checked for completeness. Name is seeded
// at session start and never reported missing.
func PrimaryFields() []Field {
	return []Field{FieldLocation, FieldOfferings, FieldOverview, FieldTargetClients}
}

// Evidence is the snippet and source URL backing a field value.
type Evidence struct {
	Text   string `json:"text" yaml:"text"`
	Source string `json:"source" yaml:"source"`
}

// Record holds the facts extracted for one company.
type Record struct {
	Name             string             `json:"name" yaml:"name"`
	Location         string             `json:"location" yaml:"location"`
	Offerings        string             `json:"offerings" yaml:"offerings"`
	Overview         string             `json:"overview" yaml:"overview"`
	TargetClients    string             `json:"target_clients" yaml:"target_clients"`
	Sources          []string           `json:"sources" yaml:"sources"`
	ConfidenceScores map[Field]float64  `json:"confidence_scores" yaml:"confidence_scores"`
	Evidence         map[Field]Evidence `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// NewRecord creates an empty record with the company name pre-filled.
func NewRecord(companyName string) *Record {
	return &Record{
		Name:             companyName,
		Sources:          []string{},
		ConfidenceScores: make(map[Field]float64),
		Evidence:         make(map[Field]Evidence),
	}
}

// NewRecordWithScores creates a record seeded with confidence scores and
// validates them.
func NewRecordWithScores(companyName string, scores map[Field]float64) (*Record, error) {
	r := NewRecord(companyName)
	for f, s := range scores {
		r.ConfidenceScores[f] = s
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate rejects any confidence score outside [0,1].
func (r *Record) Validate() error {
	for f, s := range r.ConfidenceScores {
		if err := ValidateConfidence(s); err != nil {
			return eris.Wrapf(err, "model: field %s", f)
		}
	}
	return nil
}

// ValidateConfidence checks a single score.
func ValidateConfidence(score float64) error {
	if score < 0 || score > 1 || score != score {
		return eris.Wrapf(ErrInvalidConfidence, "got %v", score)
	}
	return nil
}

// Value returns the current value of a field.
func (r *Record) Value(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldLocation:
		return r.Location
	case FieldOfferings:
		return r.Offerings
	case FieldOverview:
		return r.Overview
	case FieldTargetClients:
		return r.TargetClients
	default:
		return ""
	}
}

// SetField overwrites a field value and its confidence.
func (r *Record) SetField(f Field, value string, confidence float64) error {
	if err := ValidateConfidence(confidence); err != nil {
		return eris.Wrapf(err, "model: field %s", f)
	}
	switch f {
	case FieldName:
		r.Name = value
	case FieldLocation:
		r.Location = value
	case FieldOfferings:
		r.Offerings = value
	case FieldOverview:
		r.Overview = value
	case FieldTargetClients:
		r.TargetClients = value
	default:
		return eris.Errorf("model: unknown field %q", f)
	}
	if r.ConfidenceScores == nil {
		r.ConfidenceScores = make(map[Field]float64)
	}
	r.ConfidenceScores[f] = confidence
	return nil
}

// Confidence returns the recorded score for a field, 0.0 when absent.
func (r *Record) Confidence(f Field) float64 {
	return r.ConfidenceScores[f]
}

// AddSource appends url unless it is already present.
func (r *Record) AddSource(url string) bool {
	for _, s := range r.Sources {
		if s == url {
			return false
		}
	}
	r.Sources = append(r.Sources, url)
	return true
}

// AddEvidence inserts or overwrites the evidence entry for a field.
func (r *Record) AddEvidence(f Field, text, source string) {
	if r.Evidence == nil {
		r.Evidence = make(map[Field]Evidence)
	}
	r.Evidence[f] = Evidence{Text: text, Source: source}
}

// GetEvidence returns the evidence for a field, if any.
func (r *Record) GetEvidence(f Field) (Evidence, bool) {
	e, ok := r.Evidence[f]
	return e, ok
}

// AverageConfidence returns the mean of all recorded scores.
func (r *Record) AverageConfidence() float64 {
	return AverageConfidence(r)
}

// IsComplete reports whether every field is set at or above threshold.
func (r *Record) IsComplete(threshold float64) bool {
	return IsComplete(r, threshold)
}

// MissingFields lists the primary fields below threshold in canonical order.
func (r *Record) MissingFields(threshold float64) []Field {
	return MissingFields(r, threshold)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Sources = append([]string{}, r.Sources...)
	c.ConfidenceScores = make(map[Field]float64, len(r.ConfidenceScores))
	for k, v := range r.ConfidenceScores {
		c.ConfidenceScores[k] = v
	}
	c.Evidence = make(map[Field]Evidence, len(r.Evidence))
	for k, v := range r.Evidence {
		c.Evidence[k] = v
	}
	return &c
}
