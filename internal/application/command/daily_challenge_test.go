package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

func (f *fixture) dailyHandler() *DailyChallengeHandler {
	return NewDailyChallengeHandler(
		memory.NewChallengeRepository(f.db),
		memory.NewSubmissionRepository(f.db),
		memory.NewAssignmentRepository(f.db),
		memory.NewLedger(f.db),
		f.pub,
		f.log,
		f.clock,
		testLoc,
	)
}

func TestEnsureToday_Idempotent(t *testing.T) {
	f := newFixture(t)
	h := f.dailyHandler()

	first, err := h.EnsureToday(context.Background(), "u1")
	require.NoError(t, err)
	second, err := h.EnsureToday(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "2026-10-15", first.Day)
	assert.Equal(t, first.Day, second.Day)
	assert.True(t, second.IsCompleted(challenge.TaskLogin))
	assert.Equal(t, []shared.EventType{shared.EventDailyTaskCompleted}, f.pub.types())
}

func TestEnsureToday_NewDayNewLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.dailyHandler()
	_, err := h.EnsureToday(ctx, "u1")
	require.NoError(t, err)
	_, err = h.Claim(ctx, "u1", challenge.TaskLogin)
	require.NoError(t, err)

	// 19:30 UTC on the 15th is already the 16th in the school timezone.
	f.clock = timeutil.FixedClock(time.Date(2026, 10, 15, 19, 30, 0, 0, time.UTC))
	tomorrow := f.dailyHandler()
	c, err := tomorrow.EnsureToday(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, "2026-10-16", c.Day)
	assert.False(t, c.IsClaimed(challenge.TaskLogin))
}

func TestMarkTaskComplete(t *testing.T) {
	f := newFixture(t)
	h := f.dailyHandler()
	ctx := context.Background()

	changed, err := h.MarkTaskComplete(ctx, "u1", challenge.TaskSubmitAssignment)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.MarkTaskComplete(ctx, "u1", challenge.TaskSubmitAssignment)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = h.MarkTaskComplete(ctx, "u1", "watch_video")
	assert.ErrorIs(t, err, shared.ErrUnknownTask)

	_, err = h.MarkTaskComplete(ctx, "u1", "improve_math")
	assert.ErrorIs(t, err, shared.ErrUnknownTask, "no graded work, so no dynamic task")
}

func TestClaim_FixedTask(t *testing.T) {
	f := newFixture(t)
	h := f.dailyHandler()
	ctx := context.Background()

	_, err := h.Claim(ctx, "u1", challenge.TaskLogin)
	assert.ErrorIs(t, err, shared.ErrTaskNotCompleted, "no ledger yet")

	_, err = h.EnsureToday(ctx, "u1")
	require.NoError(t, err)

	res, err := h.Claim(ctx, "u1", challenge.TaskLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Reward)
	assert.Equal(t, int64(5), res.NewBalance)

	_, err = h.Claim(ctx, "u1", challenge.TaskLogin)
	assert.ErrorIs(t, err, shared.ErrTaskAlreadyClaimed)

	_, err = h.Claim(ctx, "u1", challenge.TaskHighScore)
	assert.ErrorIs(t, err, shared.ErrTaskNotCompleted)

	_, err = h.Claim(ctx, "u1", "watch_video")
	assert.ErrorIs(t, err, shared.ErrUnknownTask)

	assert.Equal(t, int64(5), f.balance(t, "u1"))
}

// seedWeakMath leaves math as the weakest subject.
func (f *fixture) seedWeakMath() {
	f.graded("old-math", "Math", 10, 20, testNow.AddDate(0, 0, -14), time.Time{})
	f.graded("old-art", "art", 18, 20, testNow.AddDate(0, 0, -13), time.Time{})
}

func TestWeakSubject_MarkAndClaim(t *testing.T) {
	f := newFixture(t)
	f.seedWeakMath()
	h := f.dailyHandler()
	ctx := context.Background()

	task, ok, err := h.WeakSubjectTask(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, challenge.TaskID("improve_math"), task.ID)

	marked, err := h.MarkWeakSubjectIfQualified(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, marked, "nothing graded today")

	f.graded("today-math", "math", 15, 20, testNow.Add(-3*time.Hour), time.Time{})
	marked, err = h.MarkWeakSubjectIfQualified(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, marked)

	board, err := h.Board(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, board.Tasks, 5)
	assert.Equal(t, challenge.TaskID("improve_math"), board.Tasks[4].Task.ID)
	assert.True(t, board.Tasks[4].Completed)

	res, err := h.Claim(ctx, "u1", "improve_math")
	require.NoError(t, err)
	assert.Equal(t, int64(challenge.WeakSubjectReward), res.Reward)
	assert.Equal(t, int64(20), f.balance(t, "u1"))
}

func TestWeakSubject_ClaimReverifiesLive(t *testing.T) {
	f := newFixture(t)
	f.seedWeakMath()
	h := f.dailyHandler()
	ctx := context.Background()

	// Progress recorded without a qualifying grade today.
	changed, err := h.MarkTaskComplete(ctx, "u1", "improve_math")
	require.NoError(t, err)
	require.True(t, changed)

	_, err = h.Claim(ctx, "u1", "improve_math")
	assert.ErrorIs(t, err, shared.ErrTaskNoLongerValid)

	c, err := h.EnsureToday(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, c.IsClaimed("improve_math"))
	assert.Zero(t, f.balance(t, "u1"))
}

func TestWeakSubject_UnderscoreSubjectClaims(t *testing.T) {
	f := newFixture(t)
	f.graded("old-social", "social_studies", 2, 20, testNow.AddDate(0, 0, -14), time.Time{})
	f.graded("old-art", "art", 18, 20, testNow.AddDate(0, 0, -13), time.Time{})
	f.graded("today-social", "social_studies", 16, 20, testNow.Add(-3*time.Hour), time.Time{})
	h := f.dailyHandler()
	ctx := context.Background()

	marked, err := h.MarkWeakSubjectIfQualified(ctx, "u1")
	require.NoError(t, err)
	require.True(t, marked)

	board, err := h.Board(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, board.Tasks, 5)
	assert.Equal(t, shared.Subject("social_studies"), board.Tasks[4].Task.Subject)

	res, err := h.Claim(ctx, "u1", "improve_social_studies")
	require.NoError(t, err)
	assert.Equal(t, shared.Subject("social_studies"), res.Task.Subject)
	assert.Equal(t, int64(challenge.WeakSubjectReward), res.Reward)

	_, err = h.Claim(ctx, "u1", "improve_social_studies")
	assert.ErrorIs(t, err, shared.ErrTaskAlreadyClaimed)
	assert.Equal(t, int64(challenge.WeakSubjectReward), f.balance(t, "u1"))
}

func TestClaim_CreditFailureKeepsClaimedFlag(t *testing.T) {
	f := newFixture(t)
	f.db.PutProfile(profile.PublicProfile{UserID: "u1", Coins: 3})
	h := f.dailyHandler()
	ctx := context.Background()
	_, err := h.EnsureToday(ctx, "u1")
	require.NoError(t, err)

	f.db.FailNext("ledger.ApplyDelta", shared.ErrStoreUnavailable)
	_, err = h.Claim(ctx, "u1", challenge.TaskLogin)
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.Equal(t, 1, f.logs.FilterMessage("reward marked claimed but credit failed").Len())

	_, err = h.Claim(ctx, "u1", challenge.TaskLogin)
	assert.ErrorIs(t, err, shared.ErrTaskAlreadyClaimed, "never paid twice")
	assert.Equal(t, int64(3), f.balance(t, "u1"))
}
