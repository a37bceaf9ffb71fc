package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

func TestNew_StartsWithLogin(t *testing.T) {
	c := New("u1", "2026-10-15", time.Now())

	assert.True(t, c.IsCompleted(TaskLogin))
	assert.False(t, c.IsClaimed(TaskLogin))
	assert.Empty(t, c.Claimed)
	assert.NoError(t, c.CanClaim(TaskLogin))
}

func TestCanClaim(t *testing.T) {
	c := New("u1", "2026-10-15", time.Now())

	assert.ErrorIs(t, c.CanClaim(TaskHighScore), shared.ErrTaskNotCompleted)

	c.Claimed[TaskLogin] = true
	assert.ErrorIs(t, c.CanClaim(TaskLogin), shared.ErrTaskAlreadyClaimed)
}

func TestLookupFixed(t *testing.T) {
	task, ok := LookupFixed(TaskSubmitAssignment)
	require.True(t, ok)
	assert.Equal(t, 10, task.Reward)

	_, ok = LookupFixed("improve_math")
	assert.False(t, ok)
	assert.Len(t, FixedTasks(), 4)
}

func TestWeakSubjectTask(t *testing.T) {
	task := WeakSubjectTask(" Foreign Language ")

	assert.Equal(t, TaskID("improve_foreign_language"), task.ID)
	assert.True(t, task.ID.IsDynamic())
	assert.True(t, task.Dynamic)
	assert.Equal(t, WeakSubjectReward, task.Reward)
}

func TestMatchWeakSubjectTask(t *testing.T) {
	subjects := []shared.Subject{"Math", "social_studies", "Foreign Language", "math"}

	tests := []struct {
		name string
		id   TaskID
		want []shared.Subject
	}{
		{"space in subject", "improve_foreign_language", []shared.Subject{"foreign language"}},
		{"underscore in subject", "improve_social_studies", []shared.Subject{"social_studies"}},
		{"duplicates collapse", "improve_math", []shared.Subject{"math"}},
		{"unknown subject", "improve_art", nil},
		{"empty subject", "improve_", nil},
		{"fixed task", TaskLogin, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchWeakSubjectTask(tt.id, subjects)
			var subs []shared.Subject
			for _, task := range got {
				assert.Equal(t, tt.id, task.ID)
				subs = append(subs, task.Subject)
			}
			assert.Equal(t, tt.want, subs)
		})
	}

	both := MatchWeakSubjectTask("improve_social_studies", []shared.Subject{"social_studies", "Social Studies"})
	require.Len(t, both, 2)
	assert.Equal(t, shared.Subject("social studies"), both[0].Subject)
	assert.Equal(t, shared.Subject("social_studies"), both[1].Subject)
}

func TestWeakestSubject(t *testing.T) {
	got, ok := WeakestSubject(map[shared.Subject]float64{"math": 14, "history": 9, "art": 9, "science": 18})
	require.True(t, ok)
	assert.Equal(t, shared.Subject("art"), got, "ties resolve alphabetically")

	_, ok = WeakestSubject(nil)
	assert.False(t, ok)
}

func TestQualifiesWeakSubject(t *testing.T) {
	s := func(v float64) *float64 { return &v }
	assignments := map[string]coursework.Assignment{
		"m": {ID: "m", Subject: "Math", MaxScore: 10},
		"h": {ID: "h", Subject: "history", MaxScore: 10},
	}

	subs := []coursework.Submission{{AssignmentID: "m", Score: s(6)}, {AssignmentID: "h", Score: s(10)}}
	assert.False(t, QualifiesWeakSubject("math", subs, assignments))

	subs = append(subs, coursework.Submission{AssignmentID: "m", Score: s(7)})
	assert.True(t, QualifiesWeakSubject("math", subs, assignments))
}
