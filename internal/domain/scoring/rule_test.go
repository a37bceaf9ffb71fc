package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
)

func score(v float64) *float64 { return &v }

var due = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

func TestOnSubmission_EarlyRules(t *testing.T) {
	rules := []Rule{
		{ID: "r24", Type: RuleEarlySubmission, Value: 24, Points: 5, IsActive: true},
		{ID: "r48", Type: RuleEarlySubmission, Value: 48, Points: 10, IsActive: true},
		{ID: "off", Type: RuleEarlySubmission, Value: 1, Points: 100, IsActive: false},
		{ID: "grade", Type: RulePerfectScore, Points: 7, IsActive: true},
	}
	asg := coursework.Assignment{DueDate: due}

	tests := []struct {
		name        string
		hoursBefore float64
		want        int64
		triggered   []string
	}{
		{"30h early triggers 24h rule only", 30, 5, []string{"r24"}},
		{"exactly 24h triggers", 24, 5, []string{"r24"}},
		{"50h stacks both", 50, 15, []string{"r24", "r48"}},
		{"late submission", -3, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := coursework.Submission{ID: "s1", SubmittedAt: due.Add(-time.Duration(tt.hoursBefore * float64(time.Hour)))}

			out := OnSubmission(rules, sub, asg)

			assert.Equal(t, tt.want, out.Total)
			assert.Equal(t, tt.triggered, out.Triggered)
			assert.Equal(t, TriggerSubmission, out.Trigger)
		})
	}
}

func TestOnSubmission_NoDueDate(t *testing.T) {
	rules := []Rule{{ID: "r", Type: RuleEarlySubmission, Value: 0, Points: 5, IsActive: true}}

	out := OnSubmission(rules, coursework.Submission{SubmittedAt: due}, coursework.Assignment{})

	assert.Zero(t, out.Total)
}

func TestOnGrading(t *testing.T) {
	rules := []Rule{
		{ID: "perfect", Type: RulePerfectScore, Points: 20, IsActive: true},
		{ID: "p90", Type: RuleScoreThreshold, Value: 90, Points: 10, IsActive: true},
		{ID: "p50", Type: RuleScoreThreshold, Value: 50, Points: 3, IsActive: true},
		{ID: "early", Type: RuleEarlySubmission, Value: 0, Points: 99, IsActive: true},
	}
	asg := coursework.Assignment{MaxScore: 20}

	tests := []struct {
		name  string
		score *float64
		want  int64
	}{
		{"perfect stacks with thresholds", score(20), 33},
		{"90 percent", score(18), 13},
		{"below every threshold", score(5), 0},
		{"ungraded", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := OnGrading(rules, coursework.Submission{ID: "s", Score: tt.score}, asg)
			assert.Equal(t, tt.want, out.Total)
		})
	}
}

func TestOnGrading_ZeroMaxScoreSkipsPercentRules(t *testing.T) {
	rules := []Rule{{ID: "p0", Type: RuleScoreThreshold, Value: 0, Points: 3, IsActive: true}}

	out := OnGrading(rules, coursework.Submission{Score: score(0)}, coursework.Assignment{MaxScore: 0})

	assert.Zero(t, out.Total)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(TriggerGrading, coursework.Submission{ID: "s1", Score: score(18)})
	b := Fingerprint(TriggerGrading, coursework.Submission{ID: "s1", Score: score(18)})
	c := Fingerprint(TriggerGrading, coursework.Submission{ID: "s1", Score: score(19)})
	d := Fingerprint(TriggerSubmission, coursework.Submission{ID: "s1", Score: score(18)})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}
