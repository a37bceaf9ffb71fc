package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
)

func seedProfiles(t *testing.T, n int) (*memory.DB, profile.Repository) {
	t.Helper()
	db := memory.NewDB()
	for i := 0; i < n; i++ {
		db.PutProfile(profile.PublicProfile{UserID: fmt.Sprintf("u%03d", i), Coins: int64(i * 10)})
	}
	return db, memory.NewProfileRepository(db)
}

type recordingEvaluator struct {
	mu    sync.Mutex
	users []string
}

func (e *recordingEvaluator) EvaluateRetroactive(_ context.Context, userID string) []badge.Badge {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = append(e.users, userID)
	return []badge.Badge{{UserID: userID}}
}

func TestBackfillBadgesJob(t *testing.T) {
	_, profiles := seedProfiles(t, 7)
	eval := &recordingEvaluator{}
	job := NewBackfillBadgesJob(profiles, eval, BackfillBadgesConfig{PageSize: 3, Concurrency: 2}, nil)

	assert.Equal(t, "backfill_badges", job.Name())
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(context.Background()))
	assert.ElementsMatch(t, []string{"u000", "u001", "u002", "u003", "u004", "u005", "u006"}, eval.users)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(7), stats.UsersScanned)
	assert.Equal(t, int64(7), stats.BadgesAwarded)
}

func TestBackfillBadgesJob_Cancelled(t *testing.T) {
	_, profiles := seedProfiles(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewBackfillBadgesJob(profiles, &recordingEvaluator{}, DefaultBackfillBadgesConfig(), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeBoard struct {
	balances map[string]int64
	err      error
}

func (b *fakeBoard) Rebuild(_ context.Context, balances map[string]int64) error {
	if b.err != nil {
		return b.err
	}
	b.balances = balances
	return nil
}

func TestRebuildLeaderboardJob(t *testing.T) {
	_, profiles := seedProfiles(t, 5)
	board := &fakeBoard{}
	job := NewRebuildLeaderboardJob(profiles, board, RebuildLeaderboardConfig{PageSize: 2}, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, board.balances, 5)
	assert.Equal(t, int64(40), board.balances["u004"])
	assert.Equal(t, int64(5), job.LastSize())

	board.err = errors.New("redis down")
	assert.ErrorIs(t, job.Run(context.Background()), board.err)
}

func TestForEachUserPage_Empty(t *testing.T) {
	_, profiles := seedProfiles(t, 0)
	calls := 0
	require.NoError(t, forEachUserPage(context.Background(), profiles, 10, func([]string) error {
		calls++
		return nil
	}))
	assert.Zero(t, calls)
}
