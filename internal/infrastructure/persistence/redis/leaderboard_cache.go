package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/k9quest/progression-hub/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// COIN LEADERBOARD
// A sorted set (member = user id, score = coin balance) mirrored from the
// ledger. It is a read model only; the ledger stays the source of truth.
// ══════════════════════════════════════════════════════════════════════════════

const defaultBoard = "coins"

// ErrUserIDEmpty is returned when an empty user id is passed.
var ErrUserIDEmpty = errors.New("leaderboard: user id cannot be empty")

// CoinLeaderboard ranks users by coin balance.
type CoinLeaderboard struct {
	client *redis.Client
	key    string
}

// NewCoinLeaderboard creates a leaderboard on the cache's client. An empty
// board name selects the global coin board.
func NewCoinLeaderboard(cache *Cache, board string) *CoinLeaderboard {
	if board == "" {
		board = defaultBoard
	}
	return &CoinLeaderboard{client: cache.Client(), key: PrefixLeaderboard + board}
}

// SetBalance records the user's current balance. This is an O(log N) operation.
func (l *CoinLeaderboard) SetBalance(ctx context.Context, userID string, balance int64) error {
	if userID == "" {
		return ErrUserIDEmpty
	}
	return l.client.ZAdd(ctx, l.key, redis.Z{Score: float64(balance), Member: userID}).Err()
}

// Rebuild replaces the whole board atomically.
func (l *CoinLeaderboard) Rebuild(ctx context.Context, balances map[string]int64) error {
	tmp := l.key + ":rebuild"

	pipe := l.client.TxPipeline()
	pipe.Del(ctx, tmp)
	if len(balances) > 0 {
		members := make([]redis.Z, 0, len(balances))
		for id, coins := range balances {
			members = append(members, redis.Z{Score: float64(coins), Member: id})
		}
		pipe.ZAdd(ctx, tmp, members...)
		pipe.Rename(ctx, tmp, l.key)
	} else {
		pipe.Del(ctx, l.key)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}
	return nil
}

// Top returns the highest balances, ties ordered by user id descending.
func (l *CoinLeaderboard) Top(ctx context.Context, limit int) ([]query.LeaderboardEntry, error) {
	if limit <= 0 {
		return []query.LeaderboardEntry{}, nil
	}

	members, err := l.client.ZRevRangeWithScores(ctx, l.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]query.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		id, _ := m.Member.(string)
		entries = append(entries, query.LeaderboardEntry{
			Rank:   i + 1,
			UserID: id,
			Coins:  int64(m.Score),
		})
	}
	return entries, nil
}

// Rank returns the 1-based position of the user. ok is false when absent.
func (l *CoinLeaderboard) Rank(ctx context.Context, userID string) (rank int64, ok bool, err error) {
	if userID == "" {
		return 0, false, ErrUserIDEmpty
	}
	r, err := l.client.ZRevRank(ctx, l.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return r + 1, true, nil
}
