package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSEWORK REPOSITORY
// Submissions and assignments are owned by the coursework service; this
// repository reads the mirrored copies and records copies carried by events.
// ══════════════════════════════════════════════════════════════════════════════

// CourseworkRepository implements coursework.SubmissionRepository,
// coursework.AssignmentRepository and coursework.Recorder.
type CourseworkRepository struct {
	conn *Connection
}

// NewCourseworkRepository creates a new CourseworkRepository.
func NewCourseworkRepository(conn *Connection) *CourseworkRepository {
	return &CourseworkRepository{conn: conn}
}

// Submissions returns the submission view of the repository.
func (r *CourseworkRepository) Submissions() coursework.SubmissionRepository {
	return submissionView{r}
}

// Assignments returns the assignment view of the repository.
func (r *CourseworkRepository) Assignments() coursework.AssignmentRepository {
	return assignmentView{r}
}

// ─────────────────────────────────────────────────────────────────────────────
// Submissions
// ─────────────────────────────────────────────────────────────────────────────

const submissionColumns = `id, student_id, assignment_id, status, score, submitted_at, graded_at`

type submissionView struct{ r *CourseworkRepository }

func (v submissionView) GetByID(ctx context.Context, id string) (*coursework.Submission, error) {
	var sub *coursework.Submission
	err := v.r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		row := q.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
		s, err := scanSubmission(row)
		if err != nil {
			return err
		}
		sub = s
		return nil
	})
	if IsNoRows(err) {
		return nil, shared.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

func (v submissionView) ListByStudent(ctx context.Context, studentID string) ([]coursework.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE student_id = $1
		ORDER BY submitted_at
	`

	var out []coursework.Submission
	err := v.r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, query, studentID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (coursework.Submission, error) {
			s, err := scanSubmission(row)
			if err != nil {
				return coursework.Submission{}, err
			}
			return *s, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	if out == nil {
		out = []coursework.Submission{}
	}
	return out, nil
}

func scanSubmission(row pgx.Row) (*coursework.Submission, error) {
	var (
		s        coursework.Submission
		status   string
		gradedAt *time.Time
	)
	if err := row.Scan(&s.ID, &s.StudentID, &s.AssignmentID, &status, &s.Score, &s.SubmittedAt, &gradedAt); err != nil {
		return nil, err
	}
	s.Status = coursework.SubmissionStatus(status)
	s.GradedAt = fromNullTime(gradedAt)
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Assignments
// ─────────────────────────────────────────────────────────────────────────────

const assignmentColumns = `id, subject, max_score, due_date, grade, coins_reward, teacher_id`

type assignmentView struct{ r *CourseworkRepository }

func (v assignmentView) GetByID(ctx context.Context, id string) (*coursework.Assignment, error) {
	var asg *coursework.Assignment
	err := v.r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		a, err := scanAssignment(q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
		asg = a
		return err
	})
	if IsNoRows(err) {
		return nil, shared.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return asg, nil
}

func (v assignmentView) GetByIDs(ctx context.Context, ids []string) (map[string]coursework.Assignment, error) {
	out := make(map[string]coursework.Assignment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	err := v.r.conn.Read(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAssignment(rows)
			if err != nil {
				return err
			}
			out[a.ID] = *a
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}
	return out, nil
}

func scanAssignment(row pgx.Row) (*coursework.Assignment, error) {
	var (
		a       coursework.Assignment
		subject string
		grade   int16
		dueDate *time.Time
	)
	if err := row.Scan(&a.ID, &subject, &a.MaxScore, &dueDate, &grade, &a.CoinsReward, &a.TeacherID); err != nil {
		return nil, err
	}
	a.Subject = shared.Subject(subject)
	a.Grade = shared.Grade(grade)
	a.DueDate = fromNullTime(dueDate)
	return &a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Recorder
// ─────────────────────────────────────────────────────────────────────────────

// SaveSubmission upserts a submission copy.
func (r *CourseworkRepository) SaveSubmission(ctx context.Context, s coursework.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			score = COALESCE(EXCLUDED.score, submissions.score),
			graded_at = COALESCE(EXCLUDED.graded_at, submissions.graded_at)
	`
	err := r.conn.Write(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.Exec(ctx, query,
			s.ID, s.StudentID, s.AssignmentID, string(s.Status), s.Score, s.SubmittedAt, nullTime(s.GradedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

// SaveAssignment upserts an assignment copy.
func (r *CourseworkRepository) SaveAssignment(ctx context.Context, a coursework.Assignment) error {
	query := `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			max_score = EXCLUDED.max_score,
			due_date = EXCLUDED.due_date,
			grade = EXCLUDED.grade,
			coins_reward = EXCLUDED.coins_reward,
			teacher_id = EXCLUDED.teacher_id
	`
	err := r.conn.Write(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.Exec(ctx, query,
			a.ID, string(a.Subject), a.MaxScore, nullTime(a.DueDate), int16(a.Grade), a.CoinsReward, a.TeacherID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}
