package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
)

func (f *fixture) scoringHandler() *ApplyScoringHandler {
	return NewApplyScoringHandler(
		memory.NewRuleRepository(f.db),
		memory.NewAuditRepository(f.db),
		memory.NewLedger(f.db),
		f.pub,
		f.log,
		f.clock,
	)
}

func (f *fixture) seedRules() {
	f.db.PutRule(scoring.Rule{ID: "early-24", TeacherID: "t1", Type: scoring.RuleEarlySubmission, Value: 24, Points: 5, IsActive: true})
	f.db.PutRule(scoring.Rule{ID: "early-72", TeacherID: "t1", Type: scoring.RuleEarlySubmission, Value: 72, Points: 10, IsActive: true})
	f.db.PutRule(scoring.Rule{ID: "thr-80", TeacherID: "t1", Type: scoring.RuleScoreThreshold, Value: 80, Points: 3, IsActive: true})
	f.db.PutRule(scoring.Rule{ID: "perfect", TeacherID: "t1", Type: scoring.RulePerfectScore, Points: 7, IsActive: true})
	f.db.PutRule(scoring.Rule{ID: "off", TeacherID: "t1", Type: scoring.RulePerfectScore, Points: 100, IsActive: false})
	f.db.PutRule(scoring.Rule{ID: "other", TeacherID: "t2", Type: scoring.RulePerfectScore, Points: 100, IsActive: true})
}

func TestApplyScoring_OnSubmission(t *testing.T) {
	tests := []struct {
		name       string
		hoursEarly float64
		want       int64
	}{
		{"late", -2, 0},
		{"just early enough for one rule", 24, 5},
		{"both rules", 80, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedRules()
			due := testNow.Add(time.Duration(tt.hoursEarly * float64(time.Hour)))
			asg := coursework.Assignment{ID: "a1", MaxScore: 20, DueDate: due, TeacherID: "t1"}
			sub := coursework.Submission{ID: "s1", StudentID: "u1", AssignmentID: "a1", SubmittedAt: testNow}

			got := f.scoringHandler().ApplyOnSubmission(context.Background(), sub, asg)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, f.balance(t, "u1"))
		})
	}
}

func TestApplyScoring_OnGrading(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  int64
	}{
		{"below threshold", 15, 0},
		{"threshold", 16, 3},
		{"perfect also clears threshold", 20, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedRules()
			asg := coursework.Assignment{ID: "a1", MaxScore: 20, TeacherID: "t1"}
			sub := coursework.Submission{ID: "s1", StudentID: "u1", AssignmentID: "a1", Score: scorePtr(tt.score)}

			res, err := f.scoringHandler().Handle(context.Background(), ApplyScoringCommand{
				Trigger: scoring.TriggerGrading, Submission: sub, Assignment: asg,
			})

			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Points)
			assert.Equal(t, tt.want, f.balance(t, "u1"))
		})
	}
}

func TestApplyScoring_ReapplicationIsAudited(t *testing.T) {
	f := newFixture(t)
	f.seedRules()
	h := f.scoringHandler()
	asg := coursework.Assignment{ID: "a1", MaxScore: 20, TeacherID: "t1"}
	sub := coursework.Submission{ID: "s1", StudentID: "u1", AssignmentID: "a1", Score: scorePtr(20)}
	cmd := ApplyScoringCommand{Trigger: scoring.TriggerGrading, Submission: sub, Assignment: asg}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, int64(20), f.balance(t, "u1"), "re-application pays again")

	audit := f.db.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, audit[0].Fingerprint, audit[1].Fingerprint)
	assert.ElementsMatch(t, []string{"thr-80", "perfect"}, audit[0].RuleIDs)
	assert.Equal(t, 1, f.logs.FilterMessage("scoring bonus applied again for the same event").Len())
	assert.Equal(t, []shared.EventType{shared.EventScoringBonusApplied, shared.EventScoringBonusApplied}, f.pub.types())
}

func TestApplyScoring_FailuresDegradeToZero(t *testing.T) {
	tests := []struct {
		name string
		op   string
		log  string
	}{
		{"rules unavailable", "rule.List", "failed to load scoring rules"},
		{"ledger unavailable", "ledger.ApplyDelta", "failed to credit scoring bonus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedRules()
			f.db.FailNext(tt.op, shared.ErrStoreUnavailable)
			asg := coursework.Assignment{ID: "a1", MaxScore: 20, TeacherID: "t1"}
			sub := coursework.Submission{ID: "s1", StudentID: "u1", AssignmentID: "a1", Score: scorePtr(20)}

			got := f.scoringHandler().ApplyOnGrading(context.Background(), sub, asg)

			assert.Zero(t, got)
			assert.Zero(t, f.balance(t, "u1"))
			assert.Empty(t, f.db.Audit())
			assert.Equal(t, 1, f.logs.FilterMessage(tt.log).Len())
		})
	}
}

func TestApplyScoring_Validate(t *testing.T) {
	f := newFixture(t)
	_, err := f.scoringHandler().Handle(context.Background(), ApplyScoringCommand{
		Trigger:    "regrade",
		Submission: coursework.Submission{ID: "s1", StudentID: "u1"},
	})
	assert.Error(t, err)

	_, err = f.scoringHandler().Handle(context.Background(), ApplyScoringCommand{
		Trigger:    scoring.TriggerGrading,
		Submission: coursework.Submission{ID: "s1", StudentID: "u1", AssignmentID: "a1"},
		Assignment: coursework.Assignment{ID: "a2"},
	})
	assert.Error(t, err)
}
