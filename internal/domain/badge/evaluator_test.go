package badge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

var (
	loc = timeutil.DefaultSchoolTZ
	now = time.Date(2026, 9, 14, 15, 0, 0, 0, loc)
)

func seqIDs() IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("b%d", n)
	}
}

func score(v float64) *float64 { return &v }

// builder собирает снимок из сдач с одним заданием на сдачу.
type builder struct {
	snap Snapshot
	n    int
}

func newBuilder() *builder {
	return &builder{snap: Snapshot{
		UserID:      "u1",
		Assignments: map[string]coursework.Assignment{},
		Now:         now,
		Location:    loc,
	}}
}

func (b *builder) add(subject string, sc *float64, max float64, submitted, due time.Time) *builder {
	b.n++
	aid := fmt.Sprintf("a%d", b.n)
	b.snap.Assignments[aid] = coursework.Assignment{ID: aid, Subject: shared.Subject(subject), MaxScore: max, DueDate: due}
	b.snap.Submissions = append(b.snap.Submissions, coursework.Submission{
		ID:           fmt.Sprintf("s%d", b.n),
		StudentID:    "u1",
		AssignmentID: aid,
		Status:       coursework.StatusGraded,
		Score:        sc,
		SubmittedAt:  submitted,
	})
	return b
}

func (b *builder) plain(n int) *builder {
	for i := 0; i < n; i++ {
		// every other day, so no streak forms
		b.add("", nil, 10, now.AddDate(0, 0, -40-2*i), time.Time{})
	}
	return b
}

func types(badges []Badge) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, string(b.Type)+":"+string(b.Tier))
	}
	return out
}

func TestDefaultCatalog_IsValid(t *testing.T) {
	c := DefaultCatalog()

	require.NoError(t, c.Validate())
	assert.Len(t, c, 25)

	def, ok := c.Lookup(TypeStreakMaster, TierSilver)
	require.True(t, ok)
	assert.Equal(t, 7.0, def.Requirement.Threshold)

	def, ok = c.Lookup(TypeHonorRoll, TierGold)
	require.True(t, ok, "untiered lookup ignores tier")
	assert.Equal(t, TypeHonorRoll, def.Type)
}

func TestCatalog_ValidateRejectsDuplicates(t *testing.T) {
	c := Catalog{
		untiered(TypeFirstSubmission, "a", "", "", Requirement{Kind: ReqSubmissions, Threshold: 1}),
		untiered(TypeFirstSubmission, "b", "", "", Requirement{Kind: ReqSubmissions, Threshold: 2}),
	}
	assert.Error(t, c.Validate())
}

func TestEvaluate_FirstSubmission(t *testing.T) {
	snap := newBuilder().plain(1).snap

	got := Evaluate(DefaultCatalog(), snap, ModeIncremental, NewRunLedger(nil), seqIDs())

	assert.Equal(t, []string{"first_submission:bronze"}, types(got))
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, now, got[0].EarnedAt)
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	snap := newBuilder().plain(12).snap
	catalog := DefaultCatalog()

	first := Evaluate(catalog, snap, ModeRetroactive, NewRunLedger(nil), seqIDs())
	require.NotEmpty(t, first)

	second := Evaluate(catalog, snap, ModeRetroactive, NewRunLedger(first), seqIDs())
	assert.Empty(t, second)
}

func TestEvaluate_UntieredIdentityIgnoresTier(t *testing.T) {
	existing := []Badge{{Type: TypeFirstSubmission, Tier: TierGold}}
	snap := newBuilder().plain(1).snap

	got := Evaluate(DefaultCatalog(), snap, ModeIncremental, NewRunLedger(existing), seqIDs())

	assert.Empty(t, got)
}

func TestEvaluate_PerfectScoreTiers(t *testing.T) {
	b := newBuilder()
	for i := 0; i < 5; i++ {
		b.add("", score(10), 10, now.AddDate(0, 0, -60-i), time.Time{})
	}

	got := Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())

	assert.Contains(t, types(got), "perfect_score:bronze")
	assert.Contains(t, types(got), "perfect_score:silver")
	assert.NotContains(t, types(got), "perfect_score:gold")
}

func TestEvaluate_TiersAwardedLowToHigh(t *testing.T) {
	b := newBuilder()
	for i := 0; i < 10; i++ {
		b.add("", score(10), 10, now.AddDate(0, 0, -60-i), time.Time{})
	}

	got := Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())

	var perfect []string
	for _, bd := range got {
		if bd.Type == TypePerfectScore {
			perfect = append(perfect, string(bd.Tier))
		}
	}
	assert.Equal(t, []string{"bronze", "silver", "gold"}, perfect)
}

func TestEvaluate_EarlySubmissionWindow(t *testing.T) {
	b := newBuilder()
	due := now.AddDate(0, 0, 5)
	b.add("", nil, 10, due.Add(-30*time.Hour), due)
	b.add("", nil, 10, due.Add(-31*time.Hour), due)
	b.add("", nil, 10, due.Add(-24*time.Hour), due) // exactly 24h is not early

	snap := b.snap
	got := Evaluate(DefaultCatalog(), snap, ModeRetroactive, NewRunLedger(nil), seqIDs())
	assert.NotContains(t, types(got), "early_bird:bronze")

	b.add("", nil, 10, due.Add(-25*time.Hour), due)
	got = Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())
	assert.Contains(t, types(got), "early_bird:bronze")
}

func TestEvaluate_StreakModes(t *testing.T) {
	b := newBuilder()
	// A 7-day run that ended two weeks ago, nothing since.
	for i := 0; i < 7; i++ {
		b.add("", nil, 10, now.AddDate(0, 0, -20+i), time.Time{})
	}

	incremental := Evaluate(DefaultCatalog(), b.snap, ModeIncremental, NewRunLedger(nil), seqIDs())
	assert.NotContains(t, types(incremental), "streak_master:bronze")

	retro := Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())
	assert.Contains(t, types(retro), "streak_master:bronze")
	assert.Contains(t, types(retro), "streak_master:silver")
	assert.NotContains(t, types(retro), "streak_master:gold")
}

func TestEvaluate_AverageRequiresMinimumSubmissions(t *testing.T) {
	b := newBuilder()
	for i := 0; i < 4; i++ {
		b.add("", score(19), 20, now.AddDate(0, 0, -60-i), time.Time{})
	}

	got := Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())
	assert.NotContains(t, types(got), "honor_roll:bronze")

	b.add("", score(17), 20, now.AddDate(0, 0, -70), time.Time{})
	got = Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())
	assert.Contains(t, types(got), "honor_roll:bronze")
}

func TestEvaluate_SubjectAverage(t *testing.T) {
	b := newBuilder()
	b.add("Math", score(45), 50, now.AddDate(0, 0, -60), time.Time{})
	b.add("math", score(9), 10, now.AddDate(0, 0, -61), time.Time{})
	b.add("MATH ", score(85), 100, now.AddDate(0, 0, -62), time.Time{})
	b.add("science", score(1), 10, now.AddDate(0, 0, -63), time.Time{})

	got := Evaluate(DefaultCatalog(), b.snap, ModeRetroactive, NewRunLedger(nil), seqIDs())

	assert.Contains(t, types(got), "math_whiz:bronze")
	assert.NotContains(t, types(got), "science_star:bronze")
}

func TestEvaluate_SkipsInvalidData(t *testing.T) {
	b := newBuilder()
	b.add("", score(10), 0, now.AddDate(0, 0, -60), time.Time{}) // max_score 0
	b.snap.Submissions = append(b.snap.Submissions, coursework.Submission{
		ID: "orphan", AssignmentID: "missing", Score: score(10), SubmittedAt: now.AddDate(0, 0, -61),
	})

	stats := ComputeStats(b.snap)

	assert.Equal(t, 2, stats.Submissions)
	assert.Equal(t, 0, stats.PerfectScores)
	_, n := stats.Average()
	assert.Equal(t, 0, n)
}

func TestEvaluate_Coins(t *testing.T) {
	snap := newBuilder().snap
	snap.Coins = 600

	got := Evaluate(DefaultCatalog(), snap, ModeIncremental, NewRunLedger(nil), seqIDs())

	assert.Equal(t, []string{"coin_collector:bronze", "coin_saver:bronze"}, types(got))
}

func TestEvaluate_FollowsCatalogOrder(t *testing.T) {
	snap := newBuilder().plain(10).snap
	snap.Coins = 150

	got := Evaluate(DefaultCatalog(), snap, ModeRetroactive, NewRunLedger(nil), seqIDs())

	assert.Equal(t, []string{"first_submission:bronze", "ten_submissions:bronze", "coin_collector:bronze"}, types(got))
}

func TestRunLedger(t *testing.T) {
	l := NewRunLedger([]Badge{{Type: TypePerfectScore, Tier: TierBronze}})

	assert.True(t, l.Has(TieredKey(TypePerfectScore, TierBronze)))
	assert.False(t, l.Has(TieredKey(TypePerfectScore, TierSilver)))

	def, _ := DefaultCatalog().Lookup(TypePerfectScore, TierSilver)
	l.Record(def, Badge{ID: "x", Type: TypePerfectScore, Tier: TierSilver})

	assert.True(t, l.Has(def.Key()))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "x", l.Awarded()[0].ID)
}

func TestSnapshot_WithSubmission(t *testing.T) {
	snap := newBuilder().plain(2).snap
	sub := coursework.Submission{ID: "fresh", SubmittedAt: now}

	merged := snap.WithSubmission(sub)
	assert.Len(t, merged.Submissions, 3)
	assert.Len(t, snap.Submissions, 2, "original snapshot is not mutated")

	again := merged.WithSubmission(sub)
	assert.Len(t, again.Submissions, 3)
}
