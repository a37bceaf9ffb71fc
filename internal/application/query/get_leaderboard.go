package query

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ учеников по балансу монет. Источник - отсортированное множество,
// которое обновляется после каждого начисления.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GetLeaderboardQuery содержит параметры запроса.
type GetLeaderboardQuery struct {
	// Limit - размер топа (по умолчанию 10, максимум 100).
	Limit int
}

// Normalize приводит лимит к допустимому диапазону.
func (q *GetLeaderboardQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit > maxLeaderboardLimit {
		q.Limit = maxLeaderboardLimit
	}
}

// LeaderboardEntry - строка таблицы.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Coins  int64  `json:"coins"`
}

// CoinBoard - источник рейтинга.
type CoinBoard interface {
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// GetLeaderboardHandler обрабатывает запрос.
type GetLeaderboardHandler struct {
	board CoinBoard
}

// NewGetLeaderboardHandler создаёт обработчик.
func NewGetLeaderboardHandler(board CoinBoard) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{board: board}
}

// Handle выполняет запрос.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) ([]LeaderboardEntry, error) {
	q.Normalize()
	entries, err := h.board.Top(ctx, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	if entries == nil {
		entries = []LeaderboardEntry{}
	}
	return entries, nil
}
