package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
)

func (f *fixture) badgeHandler() *EvaluateBadgesHandler {
	cfg := DefaultEvaluateBadgesConfig()
	cfg.Clock = f.clock
	cfg.Location = testLoc
	return NewEvaluateBadgesHandler(
		memory.NewSubmissionRepository(f.db),
		memory.NewAssignmentRepository(f.db),
		memory.NewProfileRepository(f.db),
		memory.NewBadgeRepository(f.db),
		f.pub,
		f.log,
		cfg,
	)
}

func badgeKeys(bs []badge.Badge) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, string(b.Type)+":"+string(b.Tier))
	}
	return out
}

func TestEvaluateBadges_IncrementalMergesTrigger(t *testing.T) {
	f := newFixture(t)
	f.db.PutAssignment(coursework.Assignment{ID: "a1", Subject: "art", MaxScore: 20})
	h := f.badgeHandler()

	// The store has not surfaced the submission yet.
	trigger := &coursework.Submission{ID: "s1", AssignmentID: "a1", SubmittedAt: testNow}
	awarded := h.EvaluateIncremental(context.Background(), "u1", trigger)

	assert.Equal(t, []string{"first_submission:bronze"}, badgeKeys(awarded))
	assert.Equal(t, []shared.EventType{shared.EventBadgeAwarded}, f.pub.types())

	again := h.EvaluateIncremental(context.Background(), "u1", trigger)
	assert.Empty(t, again)
	assert.NotNil(t, again)
}

func TestEvaluateBadges_StreakDependsOnMode(t *testing.T) {
	seed := func(f *fixture) {
		for i, id := range []string{"s1", "s2", "s3"} {
			day := testNow.AddDate(0, 0, -10-i)
			f.graded(id, "art", 10, 20, day, time.Time{})
		}
	}

	tests := []struct {
		name string
		mode badge.Mode
		want []string
	}{
		{"incremental uses the current streak", badge.ModeIncremental, []string{"first_submission:bronze"}},
		{"retroactive uses the longest streak", badge.ModeRetroactive, []string{"first_submission:bronze", "streak_master:bronze"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seed(f)

			res, err := f.badgeHandler().Handle(context.Background(), EvaluateBadgesCommand{UserID: "u1", Mode: tt.mode})
			require.NoError(t, err)
			assert.Equal(t, tt.want, badgeKeys(res.Awarded))
		})
	}
}

func TestEvaluateBadges_SeveralTiersInOnePass(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		f.graded(id, "art", 20, 20, testNow.AddDate(0, 0, -40-2*i), time.Time{})
	}

	awarded := f.badgeHandler().EvaluateRetroactive(context.Background(), "u1")

	assert.Equal(t, []string{
		"first_submission:bronze",
		"perfect_score:bronze",
		"perfect_score:silver",
		"honor_roll:bronze",
	}, badgeKeys(awarded))

	held, err := memory.NewBadgeRepository(f.db).ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, held, 4)
}

func TestEvaluateBadges_CoinsComeFromProfile(t *testing.T) {
	f := newFixture(t)
	f.db.PutProfile(profile.PublicProfile{UserID: "u1", Coins: 150})

	awarded := f.badgeHandler().EvaluateRetroactive(context.Background(), "u1")

	assert.Equal(t, []string{"coin_collector:bronze"}, badgeKeys(awarded))
}

func TestEvaluateBadges_LoadFailureReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.graded("s1", "art", 10, 20, testNow, time.Time{})
	f.db.FailNext("submission.List", shared.ErrStoreUnavailable)

	res, err := f.badgeHandler().Handle(context.Background(), EvaluateBadgesCommand{UserID: "u1", Mode: badge.ModeIncremental})

	require.NoError(t, err)
	assert.Empty(t, res.Awarded)
	assert.Equal(t, 1, f.logs.FilterMessage("failed to load badge snapshot").Len())
	assert.Empty(t, f.pub.types())
}

func TestEvaluateBadges_PersistFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.db.PutProfile(profile.PublicProfile{UserID: "u1", Coins: 150})
	f.graded("s1", "art", 20, 20, testNow, time.Time{})
	h := f.badgeHandler()

	f.db.FailNext("badge.Create", errors.New("disk full"))
	assert.Empty(t, h.EvaluateRetroactive(context.Background(), "u1"))
	assert.Equal(t, 1, f.logs.FilterMessage("failed to persist badge").Len())

	// Nothing was written, so the next run awards the full set.
	awarded := h.EvaluateRetroactive(context.Background(), "u1")
	assert.Equal(t, []string{"first_submission:bronze", "perfect_score:bronze", "coin_collector:bronze"}, badgeKeys(awarded))
}

func TestEvaluateBadges_Validate(t *testing.T) {
	tests := []struct {
		name string
		cmd  EvaluateBadgesCommand
	}{
		{"empty user", EvaluateBadgesCommand{Mode: badge.ModeIncremental}},
		{"unknown mode", EvaluateBadgesCommand{UserID: "u1", Mode: "weekly"}},
		{"foreign trigger", EvaluateBadgesCommand{UserID: "u1", Mode: badge.ModeIncremental, Trigger: &coursework.Submission{ID: "s", StudentID: "u2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.badgeHandler().Handle(context.Background(), tt.cmd)
			assert.Error(t, err)
		})
	}
}
