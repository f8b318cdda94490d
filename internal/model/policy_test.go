package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAllInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() *Record
		want  bool
	}{
		{"empty", func() *Record { return NewRecord("Acme") }, false},
		{"all at 0.70", func() *Record { return fullRecord(0.70) }, true},
		{"all at 0.69", func() *Record { return fullRecord(0.69) }, false},
		{"name ignored", func() *Record {
			r := fullRecord(0.9)
			r.Name = ""
			return r
		}, true},
		{"one primary empty", func() *Record {
			r := fullRecord(0.9)
			r.TargetClients = ""
			return r
		}, false},
		{"nil", func() *Record { return nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HasAllInfo(tt.build(), DefaultHaltThreshold))
		})
	}
}

func TestThresholdsDiffer(t *testing.T) {
	t.Parallel()

	// A record at 0.72 halts the session but is not complete.
	r := fullRecord(0.72)
	assert.True(t, HasAllInfo(r, DefaultHaltThreshold))
	assert.False(t, IsComplete(r, DefaultCompleteThreshold))
	assert.NotEmpty(t, MissingFields(r, DefaultCompleteThreshold))
}

func TestMissingFieldsEmptyIffPrimaryComplete(t *testing.T) {
	t.Parallel()

	for _, score := range []float64{0, 0.5, 0.74, 0.75, 0.9, 1} {
		r := fullRecord(score)
		empty := len(MissingFields(r, DefaultCompleteThreshold)) == 0
		assert.Equal(t, score >= DefaultCompleteThreshold, empty, "score %v", score)
	}
}

func TestAverageConfidence_Nil(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, AverageConfidence(nil), 0.0001)
}
