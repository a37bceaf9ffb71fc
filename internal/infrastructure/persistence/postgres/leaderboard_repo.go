package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/application/query"
)

// CoinBoard ranks balances straight from the profiles table. It serves the
// leaderboard when the Redis mirror is disabled.
type CoinBoard struct {
	conn *Connection
}

// NewCoinBoard creates a new CoinBoard.
func NewCoinBoard(conn *Connection) *CoinBoard {
	return &CoinBoard{conn: conn}
}

// Top returns the highest balances, ties ordered by user id descending
// (the same order as the Redis sorted set).
func (b *CoinBoard) Top(ctx context.Context, limit int) ([]query.LeaderboardEntry, error) {
	if limit <= 0 {
		return []query.LeaderboardEntry{}, nil
	}
	sql := `
		SELECT user_id, coins
		FROM profiles
		ORDER BY coins DESC, user_id DESC
		LIMIT $1
	`

	var entries []query.LeaderboardEntry
	err := b.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, sql, limit)
		if err != nil {
			return err
		}
		entries, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (query.LeaderboardEntry, error) {
			var e query.LeaderboardEntry
			err := row.Scan(&e.UserID, &e.Coins)
			return e, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
