package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PathRepository implements path.Repository.
type PathRepository struct {
	conn *Connection
}

// NewPathRepository creates a new PathRepository.
func NewPathRepository(conn *Connection) *PathRepository {
	return &PathRepository{conn: conn}
}

// GetPath returns a learning path.
func (r *PathRepository) GetPath(ctx context.Context, pathID string) (*path.LearningPath, error) {
	query := `
		SELECT id, title, grade, subject, difficulty, coins_reward, is_active
		FROM learning_paths
		WHERE id = $1
	`

	var (
		p                   path.LearningPath
		grade               int16
		subject, difficulty string
	)
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRow(ctx, query, pathID).Scan(&p.ID, &p.Title, &grade, &subject, &difficulty, &p.CoinsReward, &p.IsActive)
	})
	if IsNoRows(err) {
		return nil, shared.ErrPathNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learning path: %w", err)
	}
	p.Grade = shared.Grade(grade)
	p.Subject = shared.Subject(subject)
	p.Difficulty = path.Difficulty(difficulty)
	return &p, nil
}

const stageColumns = `id, path_id, stage_order, title, stage_type, xp_reward, coins_reward, passing_score, time_limit_seconds, questions`

// ListStages returns the stages of a path ordered by position.
func (r *PathRepository) ListStages(ctx context.Context, pathID string) ([]path.Stage, error) {
	var out []path.Stage
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, `SELECT `+stageColumns+` FROM path_stages WHERE path_id = $1 ORDER BY stage_order, id`, pathID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (path.Stage, error) {
			s, err := scanStage(row)
			if err != nil {
				return path.Stage{}, err
			}
			return *s, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return out, nil
}

// GetStage returns a stage.
func (r *PathRepository) GetStage(ctx context.Context, stageID string) (*path.Stage, error) {
	var stage *path.Stage
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		s, err := scanStage(q.QueryRow(ctx, `SELECT `+stageColumns+` FROM path_stages WHERE id = $1`, stageID))
		stage = s
		return err
	})
	if IsNoRows(err) {
		return nil, shared.ErrStageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return stage, nil
}

func scanStage(row pgx.Row) (*path.Stage, error) {
	var (
		s         path.Stage
		stageType string
		limitSecs int
		questions []byte
	)
	if err := row.Scan(&s.ID, &s.PathID, &s.Order, &s.Title, &stageType, &s.XPReward, &s.CoinsReward,
		&s.PassingScore, &limitSecs, &questions); err != nil {
		return nil, err
	}
	s.Type = path.StageType(stageType)
	s.TimeLimit = time.Duration(limitSecs) * time.Second
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &s.Questions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal questions of stage %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements path.ProgressRepository. One row per
// (student, stage) is enforced by a unique index.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `id, student_id, path_id, stage_id, status, score, xp_earned, coins_earned, attempts, started_at, completed_at, updated_at`

// Get returns the progress row of a stage.
func (r *ProgressRepository) Get(ctx context.Context, studentID, stageID string) (*path.Progress, error) {
	var p *path.Progress
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		row := q.QueryRow(ctx, `SELECT `+progressColumns+` FROM student_progress WHERE student_id = $1 AND stage_id = $2`, studentID, stageID)
		got, err := scanProgress(row)
		p = got
		return err
	})
	if IsNoRows(err) {
		return nil, shared.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return p, nil
}

// ListByPath returns the student's rows on one path.
func (r *ProgressRepository) ListByPath(ctx context.Context, studentID, pathID string) ([]path.Progress, error) {
	return r.list(ctx, `WHERE student_id = $1 AND path_id = $2`, studentID, pathID)
}

// ListByStudent returns all of the student's rows.
func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID string) ([]path.Progress, error) {
	return r.list(ctx, `WHERE student_id = $1`, studentID)
}

func (r *ProgressRepository) list(ctx context.Context, where string, args ...interface{}) ([]path.Progress, error) {
	var out []path.Progress
	err := r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, `SELECT `+progressColumns+` FROM student_progress `+where+` ORDER BY stage_id`, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (path.Progress, error) {
			p, err := scanProgress(row)
			if err != nil {
				return path.Progress{}, err
			}
			return *p, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	return out, nil
}

// Create inserts a row. shared.ErrProgressExists on a duplicate (student, stage).
func (r *ProgressRepository) Create(ctx context.Context, p *path.Progress) error {
	err := r.conn.Write(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO student_progress (`+progressColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, p.ID, p.StudentID, p.PathID, p.StageID, string(p.Status), p.Score, p.XPEarned, p.CoinsEarned,
			p.Attempts, nullTime(p.StartedAt), nullTime(p.CompletedAt), p.UpdatedAt)
		return err
	})
	if IsUniqueViolation(err) {
		return shared.ErrProgressExists
	}
	if err != nil {
		return fmt.Errorf("failed to create progress: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a row.
func (r *ProgressRepository) Update(ctx context.Context, p *path.Progress) error {
	var affected int64
	err := r.conn.Write(ctx, func(ctx context.Context, q Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE student_progress SET
				status = $3,
				score = $4,
				xp_earned = $5,
				coins_earned = $6,
				attempts = $7,
				started_at = $8,
				completed_at = $9,
				updated_at = $10
			WHERE student_id = $1 AND stage_id = $2
		`, p.StudentID, p.StageID, string(p.Status), p.Score, p.XPEarned, p.CoinsEarned, p.Attempts,
			nullTime(p.StartedAt), nullTime(p.CompletedAt), p.UpdatedAt)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if affected == 0 {
		return shared.ErrProgressNotFound
	}
	return nil
}

func scanProgress(row pgx.Row) (*path.Progress, error) {
	var (
		p                      path.Progress
		status                 string
		startedAt, completedAt *time.Time
	)
	if err := row.Scan(&p.ID, &p.StudentID, &p.PathID, &p.StageID, &status, &p.Score, &p.XPEarned,
		&p.CoinsEarned, &p.Attempts, &startedAt, &completedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = path.Status(status)
	p.StartedAt = fromNullTime(startedAt)
	p.CompletedAt = fromNullTime(completedAt)
	return &p, nil
}
