// Package coursework описывает задания и сдачи учеников.
// Эти сущности принадлежат внешнему хранилищу: движок прогрессии их только читает.
package coursework

import (
	"context"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionStatus - статус сдачи.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusGraded  SubmissionStatus = "graded"
	StatusLate    SubmissionStatus = "late"
)

// NormalizedScale - шкала, к которой приводятся оценки для средних (0-20).
const NormalizedScale = 20.0

// EarlySubmissionWindow - насколько раньше дедлайна нужно сдать, чтобы сдача считалась ранней.
const EarlySubmissionWindow = 24 * time.Hour

// Submission - сдача задания учеником.
type Submission struct {
	ID           string           `json:"id"`
	StudentID    string           `json:"student_id"`
	AssignmentID string           `json:"assignment_id"`
	Status       SubmissionStatus `json:"status"`

	// Score - nil, пока работа не проверена.
	Score *float64 `json:"score,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	GradedAt    time.Time `json:"graded_at,omitempty"`
}

// HasValidScore проверяет, что оценка выставлена и пригодна для арифметики.
func (s Submission) HasValidScore() bool {
	return s.Score != nil && shared.IsFiniteNonNegative(*s.Score)
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assignment - задание, выданное учителем.
type Assignment struct {
	ID          string         `json:"id"`
	Subject     shared.Subject `json:"subject"`
	MaxScore    float64        `json:"max_score"`
	DueDate     time.Time      `json:"due_date"`
	Grade       shared.Grade   `json:"grade"`
	CoinsReward int            `json:"coins_reward"`
	TeacherID   string         `json:"teacher_id"`
}

// HasDueDate проверяет, задан ли дедлайн.
func (a Assignment) HasDueDate() bool {
	return !a.DueDate.IsZero()
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE ARITHMETIC
// ══════════════════════════════════════════════════════════════════════════════

// Percentage возвращает оценку в процентах от максимума.
// ok == false, если оценки нет или максимум не положителен.
func Percentage(s Submission, a Assignment) (float64, bool) {
	if !s.HasValidScore() {
		return 0, false
	}
	return shared.Percentage(*s.Score, a.MaxScore)
}

// Normalized приводит оценку к шкале 0-20.
func Normalized(s Submission, a Assignment) (float64, bool) {
	pct, ok := Percentage(s, a)
	if !ok {
		return 0, false
	}
	return pct / 100 * NormalizedScale, true
}

// IsPerfect - оценка равна максимуму.
func IsPerfect(s Submission, a Assignment) bool {
	if !s.HasValidScore() || !shared.IsFiniteNonNegative(a.MaxScore) || a.MaxScore <= 0 {
		return false
	}
	return *s.Score == a.MaxScore
}

// HoursBeforeDue возвращает, за сколько часов до дедлайна сдана работа.
// Отрицательное значение - сдача после дедлайна. ok == false без дедлайна.
func HoursBeforeDue(s Submission, a Assignment) (float64, bool) {
	if !a.HasDueDate() || s.SubmittedAt.IsZero() {
		return 0, false
	}
	return a.DueDate.Sub(s.SubmittedAt).Hours(), true
}

// IsEarly - сдача строго раньше, чем за EarlySubmissionWindow до дедлайна.
func IsEarly(s Submission, a Assignment) bool {
	if !a.HasDueDate() || s.SubmittedAt.IsZero() {
		return false
	}
	return a.DueDate.Sub(s.SubmittedAt) > EarlySubmissionWindow
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRepository - чтение сдач.
type SubmissionRepository interface {
	// GetByID возвращает сдачу. shared.ErrSubmissionNotFound, если её нет.
	GetByID(ctx context.Context, id string) (*Submission, error)

	// ListByStudent возвращает все сдачи ученика.
	ListByStudent(ctx context.Context, studentID string) ([]Submission, error)
}

// AssignmentRepository - чтение заданий.
type AssignmentRepository interface {
	// GetByID возвращает задание. shared.ErrAssignmentNotFound, если его нет.
	GetByID(ctx context.Context, id string) (*Assignment, error)

	// GetByIDs возвращает найденные задания по ID. Отсутствующие просто пропускаются.
	GetByIDs(ctx context.Context, ids []string) (map[string]Assignment, error)
}

// Recorder сохраняет копии внешних сущностей, пришедших вместе с событием,
// чтобы последующие пересчёты видели историю.
type Recorder interface {
	// SaveSubmission вставляет сдачу. Для уже известной сдачи обновляются
	// статус и, если переданы, оценка и время проверки; время сдачи остаётся прежним.
	SaveSubmission(ctx context.Context, s Submission) error

	// SaveAssignment вставляет или заменяет задание.
	SaveAssignment(ctx context.Context, a Assignment) error
}

// AssignmentIDs собирает уникальные ID заданий из сдач.
func AssignmentIDs(subs []Submission) []string {
	seen := make(map[string]struct{}, len(subs))
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		if s.AssignmentID == "" {
			continue
		}
		if _, ok := seen[s.AssignmentID]; ok {
			continue
		}
		seen[s.AssignmentID] = struct{}{}
		ids = append(ids, s.AssignmentID)
	}
	return ids
}
