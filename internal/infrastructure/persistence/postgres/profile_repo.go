package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY AND COIN LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository and profile.Ledger.
type ProfileRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn, now: time.Now}
}

// GetByUserID returns a public profile.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*profile.PublicProfile, error) {
	query := `
		SELECT user_id, coins, level, grade, class_id, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	var (
		p     profile.PublicProfile
		grade int16
	)
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Coins, &p.Level, &grade, &p.ClassID, &p.UpdatedAt)
	})
	if IsNoRows(err) {
		return nil, shared.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Grade = shared.Grade(grade)
	return &p, nil
}

// ListUserIDs pages user ids in ascending order after afterID.
func (r *ProfileRepository) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	query := `
		SELECT user_id FROM profiles
		WHERE user_id > $1
		ORDER BY user_id
		LIMIT NULLIF($2::int, 0)
	`
	if limit < 0 {
		limit = 0
	}

	var ids []string
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, query, afterID, limit)
		if err != nil {
			return err
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

// ListEntries returns the newest ledger entries first.
func (r *ProfileRepository) ListEntries(ctx context.Context, userID string, limit int) ([]profile.LedgerEntry, error) {
	query := `
		SELECT id, user_id, field, amount, balance_after, reason, ref, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2::int, 0)
	`
	if limit < 0 {
		limit = 0
	}

	var entries []profile.LedgerEntry
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, query, userID, limit)
		if err != nil {
			return err
		}
		entries, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.LedgerEntry, error) {
			var (
				e     profile.LedgerEntry
				field string
			)
			err := row.Scan(&e.ID, &e.UserID, &field, &e.Amount, &e.BalanceAfter, &e.Reason, &e.Ref, &e.CreatedAt)
			e.Field = profile.Field(field)
			return e, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// ApplyDelta credits the balance with one conditional UPDATE and journals the
// change in the same transaction.
func (r *ProfileRepository) ApplyDelta(ctx context.Context, d profile.Delta) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	var balance int64
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		now := r.now().UTC()

		err := tx.QueryRow(ctx, `
			UPDATE profiles
			SET coins = coins + $2, updated_at = $3
			WHERE user_id = $1 AND coins + $2 >= 0
			RETURNING coins
		`, d.UserID, d.Amount, now).Scan(&balance)
		if IsNoRows(err) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`, d.UserID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return shared.ErrProfileNotFound
			}
			return shared.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO ledger_entries (id, user_id, field, amount, balance_after, reason, ref, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.NewString(), d.UserID, string(d.Field), d.Amount, balance, d.Reason, d.Ref, now)
		return err
	})
	if err != nil {
		if shared.IsNotFound(err) || shared.IsValidation(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to apply delta: %w", err)
	}
	return balance, nil
}
