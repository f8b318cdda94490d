package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/company-scraper/internal/model"
)

func fillPrimary(t *testing.T, r *model.Record, score float64) {
	t.Helper()
	for _, f := range model.PrimaryFields() {
		if err := r.SetField(f, "value", score); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRoute(t *testing.T) {
	t.Parallel()

	l := testLimits()
	tests := []struct {
		name  string
		setup func(s *model.Session)
		want  Step
	}{
		{
			name:  "navigating with budget",
			setup: func(*model.Session) {},
			want:  StepNavigate,
		},
		{
			name: "all info at halt threshold",
			setup: func(s *model.Session) {
				fillPrimary(t, s.Record, 0.70)
			},
			want: StepDone,
		},
		{
			name: "searching with budget",
			setup: func(s *model.Session) {
				s.Mode = model.ModeSearching
				s.SearchAttempts = 4
			},
			want: StepSearch,
		},
		{
			name: "budgets spent with pages",
			setup: func(s *model.Session) {
				s.Mode = model.ModeSearching
				s.SearchAttempts = 5
				s.RecordPage("https://acme.com", "text")
			},
			want: StepExtract,
		},
		{
			name: "budgets spent without pages",
			setup: func(s *model.Session) {
				s.Mode = model.ModeSearching
				s.SearchAttempts = 5
			},
			want: StepDone,
		},
		{
			name: "navigation budget spent while navigating",
			setup: func(s *model.Session) {
				s.NavigationAttempts = 5
			},
			want: StepDone,
		},
		{
			name: "below halt threshold keeps going",
			setup: func(s *model.Session) {
				fillPrimary(t, s.Record, 0.69)
			},
			want: StepNavigate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := model.NewSession("Acme", "https://acme.com")
			tt.setup(s)
			assert.Equal(t, tt.want, Route(s, l))
		})
	}
}

func TestRouteAfterGather(t *testing.T) {
	t.Parallel()

	l := testLimits()
	s := model.NewSession("Acme", "https://acme.com")
	s.NavigationAttempts = 5
	s.RecordPage("https://acme.com", "text")
	assert.Equal(t, StepExtract, routeAfterGather(s, l))

	empty := model.NewSession("Acme", "https://acme.com")
	empty.Mode = model.ModeSearching
	assert.Equal(t, StepSearch, routeAfterGather(empty, l))
}

func TestRouteAfterExtract_NeverExtractsAgain(t *testing.T) {
	t.Parallel()

	l := testLimits()
	s := model.NewSession("Acme", "https://acme.com")
	s.Mode = model.ModeSearching
	s.SearchAttempts = 5
	s.RecordPage("https://acme.com", "text")

	assert.Equal(t, StepExtract, Route(s, l))
	assert.Equal(t, StepDone, routeAfterExtract(s, l))

	s.SearchAttempts = 2
	assert.Equal(t, StepSearch, routeAfterExtract(s, l))
}

func TestLimits_MaxSteps(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 23, DefaultLimits().maxSteps())
	assert.Equal(t, 3, Limits{}.maxSteps())
}
