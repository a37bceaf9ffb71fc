package redis

import (
	"context"

	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/circuitbreaker"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// BalanceBoard receives balances after every successful credit.
type BalanceBoard interface {
	SetBalance(ctx context.Context, userID string, balance int64) error
}

// Invalidator drops cached read models.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// MirroredLedger decorates a profile.Ledger. After the wrapped ledger commits,
// it pushes the new balance to the leaderboard, drops the cached level read
// model and publishes CoinsCreditedEvent. Mirror failures are logged only.
// With a breaker installed, Redis writes are skipped while it is open.
type MirroredLedger struct {
	next      profile.Ledger
	board     BalanceBoard
	cache     Invalidator
	publisher shared.EventPublisher
	breaker   *circuitbreaker.CircuitBreaker
	logger    *logger.Logger
}

// NewMirroredLedger creates the decorator. board, cache and publisher may be nil.
func NewMirroredLedger(next profile.Ledger, board BalanceBoard, cache Invalidator, publisher shared.EventPublisher, log *logger.Logger) *MirroredLedger {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MirroredLedger{
		next:      next,
		board:     board,
		cache:     cache,
		publisher: publisher,
		logger:    log.With(logger.Component("mirrored_ledger")),
	}
}

// WithBreaker guards the board and cache writes with cb.
func (m *MirroredLedger) WithBreaker(cb *circuitbreaker.CircuitBreaker) *MirroredLedger {
	m.breaker = cb
	return m
}

func (m *MirroredLedger) mirror(ctx context.Context, fn func(context.Context) error) error {
	if m.breaker == nil {
		return fn(ctx)
	}
	return m.breaker.Execute(ctx, fn)
}

// ApplyDelta implements profile.Ledger.
func (m *MirroredLedger) ApplyDelta(ctx context.Context, d profile.Delta) (int64, error) {
	balance, err := m.next.ApplyDelta(ctx, d)
	if err != nil {
		return 0, err
	}

	if m.board != nil {
		err := m.mirror(ctx, func(ctx context.Context) error {
			return m.board.SetBalance(ctx, d.UserID, balance)
		})
		if err != nil && !circuitbreaker.IsRejection(err) {
			m.logger.Warn("failed to mirror balance", logger.UserID(d.UserID), logger.Coins(balance), logger.Err(err))
		}
	}
	if m.cache != nil {
		err := m.mirror(ctx, func(ctx context.Context) error {
			return m.cache.Delete(ctx, LevelProgressKey(d.UserID))
		})
		if err != nil && !circuitbreaker.IsRejection(err) {
			m.logger.Warn("failed to invalidate level cache", logger.UserID(d.UserID), logger.Err(err))
		}
	}
	if err := m.publisher.Publish(ctx, shared.NewCoinsCreditedEvent(d.UserID, d.Amount, balance, d.Reason)); err != nil {
		m.logger.Warn("failed to publish coins credited", logger.UserID(d.UserID), logger.Err(err))
	}
	return balance, nil
}
