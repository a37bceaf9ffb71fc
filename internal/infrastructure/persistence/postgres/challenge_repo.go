package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CHALLENGE REPOSITORY
// progress and claimed are JSONB objects keyed by task id. Flags are flipped
// with conditional updates so two concurrent claims cannot both succeed.
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepository implements challenge.Repository.
type ChallengeRepository struct {
	conn *Connection
}

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{conn: conn}
}

// Get returns the ledger of one day.
func (r *ChallengeRepository) Get(ctx context.Context, userID, day string) (*challenge.Challenge, error) {
	query := `
		SELECT user_id, day::text, progress, claimed, created_at, updated_at
		FROM daily_challenges
		WHERE user_id = $1 AND day = $2::date
	`

	var (
		c                 challenge.Challenge
		progress, claimed []byte
	)
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRow(ctx, query, userID, day).Scan(&c.UserID, &c.Day, &progress, &claimed, &c.CreatedAt, &c.UpdatedAt)
	})
	if IsNoRows(err) {
		return nil, shared.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily challenge: %w", err)
	}

	if c.Progress, err = decodeFlags(progress); err != nil {
		return nil, err
	}
	if c.Claimed, err = decodeFlags(claimed); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the ledger. shared.ErrChallengeExists if the day is taken.
func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	progress, err := encodeFlags(c.Progress)
	if err != nil {
		return err
	}
	claimed, err := encodeFlags(c.Claimed)
	if err != nil {
		return err
	}

	var inserted bool
	err = r.conn.Write(ctx, func(ctx context.Context, q Querier) error {
		tag, err := q.Exec(ctx, `
			INSERT INTO daily_challenges (user_id, day, progress, claimed, created_at, updated_at)
			VALUES ($1, $2::date, $3, $4, $5, $6)
			ON CONFLICT (user_id, day) DO NOTHING
		`, c.UserID, c.Day, progress, claimed, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create daily challenge: %w", err)
	}
	if !inserted {
		return shared.ErrChallengeExists
	}
	return nil
}

// MarkProgress sets progress[task]. changed is false when it was already set.
func (r *ChallengeRepository) MarkProgress(ctx context.Context, userID, day string, task challenge.TaskID) (bool, error) {
	query := `
		UPDATE daily_challenges
		SET progress = progress || jsonb_build_object($3::text, true), updated_at = NOW()
		WHERE user_id = $1 AND day = $2::date
		  AND NOT COALESCE((progress ->> $3::text)::boolean, false)
	`
	return r.flip(ctx, query, userID, day, task)
}

// MarkClaimed sets claimed[task] only if the task is completed and unclaimed.
func (r *ChallengeRepository) MarkClaimed(ctx context.Context, userID, day string, task challenge.TaskID) (bool, error) {
	query := `
		UPDATE daily_challenges
		SET claimed = claimed || jsonb_build_object($3::text, true), updated_at = NOW()
		WHERE user_id = $1 AND day = $2::date
		  AND COALESCE((progress ->> $3::text)::boolean, false)
		  AND NOT COALESCE((claimed ->> $3::text)::boolean, false)
	`
	return r.flip(ctx, query, userID, day, task)
}

// flip runs a conditional update. Zero affected rows means either the
// condition did not hold or the ledger does not exist; the latter is an error.
func (r *ChallengeRepository) flip(ctx context.Context, query, userID, day string, task challenge.TaskID) (bool, error) {
	var affected int64
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, userID, day, string(task))
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		if affected > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM daily_challenges WHERE user_id = $1 AND day = $2::date)`, userID, day,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrChallengeNotFound
		}
		return nil
	})
	if shared.IsNotFound(err) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("failed to update daily challenge: %w", err)
	}
	return affected > 0, nil
}

func encodeFlags(flags map[challenge.TaskID]bool) ([]byte, error) {
	if flags == nil {
		flags = map[challenge.TaskID]bool{}
	}
	raw, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task flags: %w", err)
	}
	return raw, nil
}

func decodeFlags(raw []byte) (map[challenge.TaskID]bool, error) {
	flags := map[challenge.TaskID]bool{}
	if len(raw) == 0 {
		return flags, nil
	}
	if err := json.Unmarshal(raw, &flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task flags: %w", err)
	}
	return flags, nil
}
