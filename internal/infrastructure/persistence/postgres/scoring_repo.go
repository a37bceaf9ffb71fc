package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/domain/scoring"
)

// ScoringRepository implements scoring.RuleRepository and scoring.AuditRepository.
type ScoringRepository struct {
	conn *Connection
}

// NewScoringRepository creates a new ScoringRepository.
func NewScoringRepository(conn *Connection) *ScoringRepository {
	return &ScoringRepository{conn: conn}
}

// ListActive returns the teacher's active rules, optionally narrowed to types.
func (r *ScoringRepository) ListActive(ctx context.Context, teacherID string, types ...scoring.RuleType) ([]scoring.Rule, error) {
	query := `
		SELECT id, teacher_id, rule_type, value, points, is_active
		FROM scoring_rules
		WHERE teacher_id = $1 AND is_active
		  AND (cardinality($2::text[]) = 0 OR rule_type = ANY($2))
		ORDER BY id
	`

	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	var out []scoring.Rule
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, query, teacherID, names)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (scoring.Rule, error) {
			var (
				rule scoring.Rule
				typ  string
			)
			err := row.Scan(&rule.ID, &rule.TeacherID, &typ, &rule.Value, &rule.Points, &rule.IsActive)
			rule.Type = scoring.RuleType(typ)
			return rule, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scoring rules: %w", err)
	}
	return out, nil
}

// Record appends an audit entry and reports whether the same fingerprint was
// journaled before.
func (r *ScoringRepository) Record(ctx context.Context, e scoring.AuditEntry) (bool, error) {
	ruleIDs := e.RuleIDs
	if ruleIDs == nil {
		ruleIDs = []string{}
	}

	var duplicate bool
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM scoring_audit WHERE fingerprint = $1)`, e.Fingerprint,
		).Scan(&duplicate); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO scoring_audit (id, user_id, submission_id, trigger, rule_ids, total, fingerprint, applied_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, e.UserID, e.SubmissionID, string(e.Trigger), ruleIDs, e.Total, e.Fingerprint, e.AppliedAt)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to record scoring audit: %w", err)
	}
	return duplicate, nil
}
