package memory

import (
	"context"
	"sort"

	"github.com/k9quest/progression-hub/internal/application/query"
)

// CoinBoard ranks profiles by balance straight from the profile table.
// It stands in for the Redis leaderboard when Redis is not configured.
type CoinBoard struct {
	db *DB
}

// NewCoinBoard creates a board over db.
func NewCoinBoard(db *DB) *CoinBoard {
	return &CoinBoard{db: db}
}

// Top returns the highest balances, ties ordered by user id descending.
func (b *CoinBoard) Top(_ context.Context, limit int) ([]query.LeaderboardEntry, error) {
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()

	if err := b.db.fault("leaderboard.Top"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []query.LeaderboardEntry{}, nil
	}

	entries := make([]query.LeaderboardEntry, 0, len(b.db.profiles))
	for id, p := range b.db.profiles {
		entries = append(entries, query.LeaderboardEntry{UserID: id, Coins: p.Coins})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Coins != entries[j].Coins {
			return entries[i].Coins > entries[j].Coins
		}
		return entries[i].UserID > entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
