package path

import (
	"math"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// Status - состояние этапа для ученика.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusUnlocked   Status = "unlocked"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FailedQuizXPRatio - доля XP за проваленный квиз.
const FailedQuizXPRatio = 0.3

// Progress - строка прогресса (одна на пару ученик+этап).
type Progress struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	PathID      string    `json:"path_id"`
	StageID     string    `json:"stage_id"`
	Status      Status    `json:"status"`
	Score       int       `json:"score"`
	XPEarned    int       `json:"xp_earned"`
	CoinsEarned int       `json:"coins_earned"`
	Attempts    int       `json:"attempts"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProgress создаёт строку в заданном состоянии.
func NewProgress(id, studentID string, stage Stage, status Status, now time.Time) *Progress {
	return &Progress{
		ID:        id,
		StudentID: studentID,
		PathID:    stage.PathID,
		StageID:   stage.ID,
		Status:    status,
		UpdatedAt: now,
	}
}

// Unlock переводит locked → unlocked. Для остальных состояний ничего не делает.
func (p *Progress) Unlock(now time.Time) bool {
	if p.Status != StatusLocked {
		return false
	}
	p.Status = StatusUnlocked
	p.UpdatedAt = now
	return true
}

// Start переводит unlocked | failed → in_progress и увеличивает число попыток.
// Повторный старт этапа в in_progress ничего не меняет (changed == false).
func (p *Progress) Start(now time.Time) (changed bool, err error) {
	switch p.Status {
	case StatusUnlocked, StatusFailed:
		p.Status = StatusInProgress
		p.Attempts++
		p.StartedAt = now
		p.UpdatedAt = now
		return true, nil
	case StatusInProgress:
		return false, nil
	case StatusCompleted:
		return false, shared.ErrStageAlreadyDone
	default:
		return false, shared.ErrStageLocked
	}
}

// Complete переводит in_progress → completed с полной наградой этапа.
// XP перезаписывается, а не суммируется с частичным XP прошлых провалов.
func (p *Progress) Complete(stage Stage, score int, now time.Time) error {
	if p.Status != StatusInProgress {
		return shared.ErrStageNotInProgress
	}
	p.Status = StatusCompleted
	p.Score = score
	p.XPEarned = stage.XPReward
	p.CoinsEarned = stage.CoinsReward
	p.CompletedAt = now
	p.UpdatedAt = now
	return nil
}

// Fail переводит in_progress → failed: 30% XP, без монет. Этап можно пройти заново.
func (p *Progress) Fail(stage Stage, score int, now time.Time) error {
	if p.Status != StatusInProgress {
		return shared.ErrStageNotInProgress
	}
	p.Status = StatusFailed
	p.Score = score
	p.XPEarned = PartialXP(stage.XPReward)
	p.CoinsEarned = 0
	p.UpdatedAt = now
	return nil
}

// PartialXP - XP за проваленный квиз: round(0.3 × xp).
func PartialXP(xp int) int {
	return int(math.Round(FailedQuizXPRatio * float64(xp)))
}

// TotalXP суммирует XP по строкам прогресса.
func TotalXP(rows []Progress) int64 {
	var total int64
	for _, r := range rows {
		total += int64(r.XPEarned)
	}
	return total
}
