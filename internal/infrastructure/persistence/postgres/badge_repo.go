package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/domain/badge"
)

// BadgeRepository implements badge.Repository.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// ListByUser returns every badge of the user, oldest first.
func (r *BadgeRepository) ListByUser(ctx context.Context, userID string) ([]badge.Badge, error) {
	query := `
		SELECT id, user_id, badge_type, tier, earned_at
		FROM badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_type, tier
	`

	var out []badge.Badge
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, query, userID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (badge.Badge, error) {
			var (
				b         badge.Badge
				typ, tier string
			)
			err := row.Scan(&b.ID, &b.UserID, &typ, &tier, &b.EarnedAt)
			b.Type = badge.Type(typ)
			b.Tier = badge.Tier(tier)
			return b, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return out, nil
}

// Create inserts a badge. created is false when the (user, type, tier)
// triple already exists.
func (r *BadgeRepository) Create(ctx context.Context, b badge.Badge) (bool, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	var created bool
	err := r.conn.Write(ctx, func(ctx context.Context, q Querier) error {
		tag, err := q.Exec(ctx, `
			INSERT INTO badges (id, user_id, badge_type, tier, earned_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, badge_type, tier) DO NOTHING
		`, b.ID, b.UserID, string(b.Type), string(b.Tier), b.EarnedAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create badge: %w", err)
	}
	return created, nil
}
