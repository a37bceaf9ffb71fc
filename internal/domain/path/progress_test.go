package path

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

var now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func quiz(passing int, answers ...string) Stage {
	s := Stage{ID: "q", PathID: "p", Order: 2, Type: StageQuiz, XPReward: 100, CoinsReward: 10, PassingScore: passing}
	for i, a := range answers {
		s.Questions = append(s.Questions, Question{ID: string(rune('a' + i)), Answer: a})
	}
	return s
}

func TestProgress_Lifecycle(t *testing.T) {
	lesson := Stage{ID: "l", PathID: "p", Order: 1, Type: StageLesson, XPReward: 40, CoinsReward: 5}
	p := NewProgress("id", "u1", lesson, StatusLocked, now)

	_, err := p.Start(now)
	assert.ErrorIs(t, err, shared.ErrStageLocked)

	assert.True(t, p.Unlock(now))
	assert.False(t, p.Unlock(now), "unlock is idempotent")

	changed, err := p.Start(now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, p.Attempts)

	changed, err = p.Start(now)
	require.NoError(t, err)
	assert.False(t, changed, "starting an in-progress stage is a no-op")
	assert.Equal(t, 1, p.Attempts)

	require.NoError(t, p.Complete(lesson, 100, now))
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 40, p.XPEarned)
	assert.Equal(t, 5, p.CoinsEarned)
	assert.Equal(t, now, p.CompletedAt)

	_, err = p.Start(now)
	assert.ErrorIs(t, err, shared.ErrStageAlreadyDone)
	assert.ErrorIs(t, p.Complete(lesson, 100, now), shared.ErrStageNotInProgress)
}

func TestProgress_FailThenRetry(t *testing.T) {
	q := quiz(60, "x")
	p := NewProgress("id", "u1", q, StatusUnlocked, now)
	_, _ = p.Start(now)

	require.NoError(t, p.Fail(q, 40, now))
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, 30, p.XPEarned)
	assert.Equal(t, 0, p.CoinsEarned)

	changed, err := p.Start(now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, p.Attempts)

	require.NoError(t, p.Complete(q, 80, now))
	assert.Equal(t, 100, p.XPEarned, "full reward replaces partial XP")
}

func TestGradeQuiz(t *testing.T) {
	q := quiz(60, "4", "Paris", "blue", "7", "yes")

	tests := []struct {
		name    string
		answers map[string]string
		score   int
		passed  bool
	}{
		{"3 of 5 passes at 60", map[string]string{"a": "4", "b": " paris ", "c": "blue"}, 60, true},
		{"2 of 5 fails", map[string]string{"a": "4", "b": "Paris", "c": "red"}, 40, false},
		{"all correct", map[string]string{"a": "4", "b": "Paris", "c": "blue", "d": "7", "e": "YES"}, 100, true},
		{"no answers", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := q.GradeQuiz(tt.answers)
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, 5, res.Total)
		})
	}
}

func TestGradeQuiz_Rounding(t *testing.T) {
	q := quiz(60, "a", "b", "c")

	res, err := q.GradeQuiz(map[string]string{"a": "a", "b": "b"})

	require.NoError(t, err)
	assert.Equal(t, 67, res.Score)
}

func TestGradeQuiz_NoQuestions(t *testing.T) {
	_, err := quiz(60).GradeQuiz(map[string]string{"a": "x"})
	assert.ErrorIs(t, err, shared.ErrQuizHasNoQuestions)
}

func TestPartialXP(t *testing.T) {
	assert.Equal(t, 30, PartialXP(100))
	assert.Equal(t, 2, PartialXP(5)) // 1.5 rounds half away from zero
	assert.Equal(t, 0, PartialXP(1))
}

func TestStageOrdering(t *testing.T) {
	stages := []Stage{{ID: "c", Order: 30}, {ID: "a", Order: 10}, {ID: "b", Order: 20}}

	first, ok := FirstStage(stages)
	require.True(t, ok)
	assert.Equal(t, "a", first.ID)

	next, ok := NextStage(stages, first)
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)

	_, ok = NextStage(stages, Stage{ID: "c", Order: 30})
	assert.False(t, ok)

	SortStages(stages)
	assert.Equal(t, []string{"a", "b", "c"}, []string{stages[0].ID, stages[1].ID, stages[2].ID})
}

func TestTotalXP(t *testing.T) {
	assert.Equal(t, int64(130), TotalXP([]Progress{{XPEarned: 100}, {XPEarned: 30}}))
}
