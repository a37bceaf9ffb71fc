package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
)

func (f *fixture) pathHandler() *ProgressPathHandler {
	return NewProgressPathHandler(
		memory.NewPathRepository(f.db),
		memory.NewProgressRepository(f.db),
		memory.NewLedger(f.db),
		f.pub,
		f.log,
		f.clock,
	)
}

func (f *fixture) seedPath() {
	f.db.PutPath(
		path.LearningPath{ID: "p1", Title: "Fractions", Subject: "math", CoinsReward: 25, IsActive: true},
		path.Stage{ID: "st1", Order: 1, Type: path.StageLesson, XPReward: 50, CoinsReward: 5},
		path.Stage{ID: "st2", Order: 2, Type: path.StageQuiz, XPReward: 100, CoinsReward: 10, PassingScore: 60,
			Questions: []path.Question{
				{ID: "q1", Answer: "1/2"},
				{ID: "q2", Answer: "3/4"},
				{ID: "q3", Answer: "Two thirds"},
			}},
		path.Stage{ID: "st3", Order: 3, Type: path.StageAssignment, XPReward: 30},
	)
}

func statuses(v *PathView) []path.Status {
	out := make([]path.Status, 0, len(v.Stages))
	for _, s := range v.Stages {
		out = append(out, s.Status)
	}
	return out
}

func TestEnterPath(t *testing.T) {
	f := newFixture(t)
	f.seedPath()
	h := f.pathHandler()

	view, err := h.EnterPath(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []path.Status{path.StatusUnlocked, path.StatusLocked, path.StatusLocked}, statuses(view))

	again, err := h.EnterPath(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, statuses(view), statuses(again))
}

func TestEnterPath_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seedPath()
	f.db.PutPath(path.LearningPath{ID: "closed", IsActive: false}, path.Stage{ID: "c1", Order: 1})
	f.db.PutPath(path.LearningPath{ID: "empty", IsActive: true})
	h := f.pathHandler()

	tests := []struct {
		name   string
		pathID string
		want   error
	}{
		{"unknown", "nope", shared.ErrPathNotFound},
		{"inactive", "closed", shared.ErrPathInactive},
		{"no stages", "empty", shared.ErrPathHasNoStages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.EnterPath(context.Background(), "u1", tt.pathID)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPathProgression_FullRun(t *testing.T) {
	f := newFixture(t)
	f.seedPath()
	h := f.pathHandler()
	ctx := context.Background()

	_, err := h.EnterPath(ctx, "u1", "p1")
	require.NoError(t, err)

	_, err = h.StartStage(ctx, "u1", "st2")
	assert.ErrorIs(t, err, shared.ErrStageLocked, "second stage stays locked until the first is done")

	_, err = h.StartStage(ctx, "u1", "st1")
	require.NoError(t, err)
	out, err := h.CompleteStage(ctx, "u1", "st1")
	require.NoError(t, err)
	assert.Equal(t, "st2", out.NextStageID)
	assert.Equal(t, 100, out.Progress.Score)
	assert.Equal(t, int64(5), f.balance(t, "u1"))

	// Failed quiz: partial XP, no coins, retry allowed.
	_, err = h.StartStage(ctx, "u1", "st2")
	require.NoError(t, err)
	out, err = h.SubmitQuiz(ctx, "u1", "st2", map[string]string{"q1": "1/2"})
	require.NoError(t, err)
	assert.Equal(t, path.StatusFailed, out.Progress.Status)
	assert.Equal(t, 33, out.Quiz.Score)
	assert.Equal(t, 30, out.Progress.XPEarned)
	assert.Empty(t, out.NextStageID)
	assert.Equal(t, int64(5), f.balance(t, "u1"))

	row, err := h.StartStage(ctx, "u1", "st2")
	require.NoError(t, err)
	assert.Equal(t, 2, row.Attempts)
	out, err = h.SubmitQuiz(ctx, "u1", "st2", map[string]string{"q1": " 1/2", "q2": "3/4", "q3": "two THIRDS "})
	require.NoError(t, err)
	assert.Equal(t, path.StatusCompleted, out.Progress.Status)
	assert.Equal(t, 100, out.Progress.XPEarned, "full reward replaces the partial XP")
	assert.Equal(t, "st3", out.NextStageID)
	assert.Equal(t, int64(15), f.balance(t, "u1"))

	_, err = h.StartStage(ctx, "u1", "st3")
	require.NoError(t, err)
	out, err = h.CompleteStage(ctx, "u1", "st3")
	require.NoError(t, err)
	assert.True(t, out.PathCompleted)
	assert.Equal(t, int64(25), out.CoinsCredited, "path bonus only, the stage pays no coins")
	assert.Equal(t, int64(40), f.balance(t, "u1"))

	rows, err := memory.NewProgressRepository(f.db).ListByPath(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(180), path.TotalXP(rows))

	assert.Equal(t, []shared.EventType{
		shared.EventStageCompleted,
		shared.EventStageFailed,
		shared.EventStageCompleted,
		shared.EventStageCompleted,
	}, f.pub.types())
}

func TestPathProgression_Guards(t *testing.T) {
	f := newFixture(t)
	f.seedPath()
	h := f.pathHandler()
	ctx := context.Background()
	_, err := h.EnterPath(ctx, "u1", "p1")
	require.NoError(t, err)

	_, err = h.CompleteStage(ctx, "u1", "st1")
	assert.ErrorIs(t, err, shared.ErrStageNotInProgress, "must start first")

	_, err = h.StartStage(ctx, "u1", "st1")
	require.NoError(t, err)
	_, err = h.SubmitQuiz(ctx, "u1", "st1", nil)
	assert.ErrorIs(t, err, shared.ErrStageTypeMismatch)

	_, err = h.CompleteStage(ctx, "u1", "st1")
	require.NoError(t, err)
	_, err = h.StartStage(ctx, "u1", "st1")
	assert.ErrorIs(t, err, shared.ErrStageAlreadyDone)

	_, err = h.StartStage(ctx, "u1", "st2")
	require.NoError(t, err)
	_, err = h.CompleteStage(ctx, "u1", "st2")
	assert.ErrorIs(t, err, shared.ErrStageTypeMismatch)

	_, err = h.StartStage(ctx, "u1", "missing")
	assert.ErrorIs(t, err, shared.ErrStageNotFound)
}

func TestPathProgression_DeactivatedPathPaysNothing(t *testing.T) {
	f := newFixture(t)
	f.seedPath()
	h := f.pathHandler()
	ctx := context.Background()
	setActive := func(active bool) {
		f.db.PutPath(path.LearningPath{ID: "p1", Title: "Fractions", Subject: "math", CoinsReward: 25, IsActive: active})
	}

	_, err := h.EnterPath(ctx, "u1", "p1")
	require.NoError(t, err)
	_, err = h.StartStage(ctx, "u1", "st1")
	require.NoError(t, err)

	setActive(false)
	_, err = h.CompleteStage(ctx, "u1", "st1")
	assert.ErrorIs(t, err, shared.ErrPathInactive)
	row, err := memory.NewProgressRepository(f.db).Get(ctx, "u1", "st1")
	require.NoError(t, err)
	assert.Equal(t, path.StatusInProgress, row.Status)
	assert.Zero(t, f.balance(t, "u1"))

	setActive(true)
	_, err = h.CompleteStage(ctx, "u1", "st1")
	require.NoError(t, err)
	_, err = h.StartStage(ctx, "u1", "st2")
	require.NoError(t, err)

	setActive(false)
	_, err = h.SubmitQuiz(ctx, "u1", "st2", map[string]string{"q1": "1/2", "q2": "3/4", "q3": "two thirds"})
	assert.ErrorIs(t, err, shared.ErrPathInactive)
	assert.Equal(t, int64(5), f.balance(t, "u1"))
}

func TestPathProgression_CreditFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.seedPath()
	h := f.pathHandler()
	ctx := context.Background()
	_, err := h.EnterPath(ctx, "u1", "p1")
	require.NoError(t, err)
	_, err = h.StartStage(ctx, "u1", "st1")
	require.NoError(t, err)

	f.db.FailNext("ledger.ApplyDelta", shared.ErrStoreTimeout)
	_, err = h.CompleteStage(ctx, "u1", "st1")

	assert.ErrorIs(t, err, shared.ErrStoreTimeout)
	row, getErr := memory.NewProgressRepository(f.db).Get(ctx, "u1", "st1")
	require.NoError(t, getErr)
	assert.Equal(t, path.StatusCompleted, row.Status, "completion is not rolled back")
}
