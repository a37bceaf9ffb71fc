package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/circuitbreaker"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheWithClient(client), mr
}

type levelView struct {
	Level int   `json:"level"`
	Coins int64 `json:"coins"`
}

func TestCache_SetGet(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, LevelProgressKey("u1"), levelView{Level: 3, Coins: 42}, 30*time.Second))

	var got levelView
	require.NoError(t, cache.Get(ctx, "level:u1", &got))
	assert.Equal(t, levelView{Level: 3, Coins: 42}, got)

	mr.FastForward(31 * time.Second)
	assert.ErrorIs(t, cache.Get(ctx, "level:u1", &got), ErrCacheMiss)
}

func TestCache_Validation(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, cache.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, cache.Get(ctx, "", &struct{}{}), ErrCacheKeyEmpty)

	require.NoError(t, mr.Set("broken", "{not json"))
	var v levelView
	assert.ErrorIs(t, cache.Get(ctx, "broken", &v), ErrCacheSerialization)

	require.NoError(t, cache.Set(ctx, "k", 1, 0))
	require.NoError(t, cache.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
	assert.NoError(t, cache.Delete(ctx))
}

func TestCoinLeaderboard(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	board := NewCoinLeaderboard(cache, "")

	require.NoError(t, board.SetBalance(ctx, "a", 10))
	require.NoError(t, board.SetBalance(ctx, "b", 30))
	require.NoError(t, board.SetBalance(ctx, "c", 20))
	require.NoError(t, board.SetBalance(ctx, "a", 40))
	assert.ErrorIs(t, board.SetBalance(ctx, "", 1), ErrUserIDEmpty)

	top, err := board.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].UserID)
	assert.Equal(t, int64(40), top[0].Coins)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "b", top[1].UserID)

	rank, ok, err := board.Rank(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), rank)

	_, ok, err = board.Rank(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	none, err := board.Top(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCoinLeaderboard_Rebuild(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	board := NewCoinLeaderboard(cache, "coins")

	require.NoError(t, board.SetBalance(ctx, "stale", 99))
	require.NoError(t, board.Rebuild(ctx, map[string]int64{"x": 5, "y": 7}))

	top, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "y", top[0].UserID)

	require.NoError(t, board.Rebuild(ctx, nil))
	top, err = board.Top(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

// stubLedger returns fixed results.
type stubLedger struct {
	balance int64
	err     error
}

func (s stubLedger) ApplyDelta(context.Context, profile.Delta) (int64, error) {
	return s.balance, s.err
}

type capturePublisher struct{ events []shared.Event }

func (p *capturePublisher) Publish(_ context.Context, e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestMirroredLedger(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	board := NewCoinLeaderboard(cache, "")
	pub := &capturePublisher{}

	require.NoError(t, cache.Set(ctx, LevelProgressKey("u1"), levelView{Coins: 5}, time.Minute))

	ledger := NewMirroredLedger(stubLedger{balance: 15}, board, cache, pub, nil)
	balance, err := ledger.ApplyDelta(ctx, profile.Delta{UserID: "u1", Field: profile.FieldCoins, Amount: 10, Reason: "daily.login"})
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)

	top, err := board.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(15), top[0].Coins)
	assert.False(t, mr.Exists(LevelProgressKey("u1")), "level cache is invalidated")

	require.Len(t, pub.events, 1)
	credited, ok := pub.events[0].(shared.CoinsCreditedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(10), credited.Amount)
	assert.Equal(t, int64(15), credited.NewBalance)
}

func TestMirroredLedger_Failures(t *testing.T) {
	ctx := context.Background()
	delta := profile.Delta{UserID: "u1", Field: profile.FieldCoins, Amount: 10}

	boom := errors.New("boom")
	_, err := NewMirroredLedger(stubLedger{err: boom}, nil, nil, nil, nil).ApplyDelta(ctx, delta)
	assert.ErrorIs(t, err, boom)

	cache, mr := newTestCache(t)
	board := NewCoinLeaderboard(cache, "")
	mr.Close()

	balance, err := NewMirroredLedger(stubLedger{balance: 10}, board, cache, nil, nil).ApplyDelta(ctx, delta)
	require.NoError(t, err, "a Redis outage does not fail the credit")
	assert.Equal(t, int64(10), balance)
}

func TestMirroredLedger_BreakerSkipsRedis(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	board := NewCoinLeaderboard(cache, "")
	mr.Close()

	cb := circuitbreaker.New("redis-mirror", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithCoolDown(time.Hour))
	ledger := NewMirroredLedger(stubLedger{balance: 10}, board, cache, nil, nil).WithBreaker(cb)

	delta := profile.Delta{UserID: "u1", Field: profile.FieldCoins, Amount: 10}
	_, err := ledger.ApplyDelta(ctx, delta)
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	balance, err := ledger.ApplyDelta(ctx, delta)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
	assert.Equal(t, 1, cb.Counts().Requests, "the open breaker rejects the remaining Redis writes")
	assert.Equal(t, 3, cb.Counts().Rejected)
}
