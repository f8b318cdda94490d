package model

// DefaultHaltThreshold is the confidence every primary field must reach
// before a session stops gathering pages. It is deliberately distinct from
// DefaultCompleteThreshold.
const DefaultHaltThreshold = 0.70

// AverageConfidence returns the arithmetic mean of the recorded scores, or
// 0.0 when none are recorded.
func AverageConfidence(r *Record) float64 {
	if r == nil || len(r.ConfidenceScores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.ConfidenceScores {
		sum += s
	}
	return sum / float64(len(r.ConfidenceScores))
}

// fieldMeets reports whether f has a value and a score >= threshold.
func fieldMeets(r *Record, f Field, threshold float64) bool {
	if r.Value(f) == "" {
		return false
	}
	return r.Confidence(f) >= threshold
}

// IsComplete reports whether all five fields are set with confidence at or
// above threshold.
func IsComplete(r *Record, threshold float64) bool {
	if r == nil {
		return false
	}
	for _, f := range AllFields() {
		if !fieldMeets(r, f, threshold) {
			return false
		}
	}
	return true
}

// MissingFields returns the primary fields failing the per-field test, in
// the order location, offerings, overview, target_clients.
func MissingFields(r *Record, threshold float64) []Field {
	missing := []Field{}
	for _, f := range PrimaryFields() {
		if r == nil || !fieldMeets(r, f, threshold) {
			missing = append(missing, f)
		}
	}
	return missing
}

// HasAllInfo is the orchestrator's halting test over the primary fields.
func HasAllInfo(r *Record, threshold float64) bool {
	if r == nil {
		return false
	}
	for _, f := range PrimaryFields() {
		if !fieldMeets(r, f, threshold) {
			return false
		}
	}
	return true
}
