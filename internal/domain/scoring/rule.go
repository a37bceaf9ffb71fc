// Package scoring содержит бонусные правила учителей и чистый расчёт бонусов.
//
// Бонусы складываются. Защиты от повторного применения нет: каждое применение
// пишется в журнал аудита, и повтор виден по совпадающему отпечатку.
package scoring

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
)

// RuleType - тип правила.
type RuleType string

const (
	// RuleEarlySubmission - value: минимум часов до дедлайна.
	RuleEarlySubmission RuleType = "early_submission"
	// RuleScoreThreshold - value: минимальный процент от максимума.
	RuleScoreThreshold RuleType = "score_threshold"
	// RulePerfectScore - value не используется.
	RulePerfectScore RuleType = "perfect_score"
)

// IsValid проверяет тип правила.
func (t RuleType) IsValid() bool {
	switch t {
	case RuleEarlySubmission, RuleScoreThreshold, RulePerfectScore:
		return true
	}
	return false
}

// Trigger - момент применения правил.
type Trigger string

const (
	TriggerSubmission Trigger = "submission"
	TriggerGrading    Trigger = "grading"
)

// Rule - бонусное правило учителя.
type Rule struct {
	ID        string   `json:"id"`
	TeacherID string   `json:"teacher_id"`
	Type      RuleType `json:"type"`
	Value     float64  `json:"value"`
	Points    int64    `json:"points"`
	IsActive  bool     `json:"is_active"`
}

// Outcome - результат расчёта бонуса.
type Outcome struct {
	Trigger   Trigger
	Total     int64
	Triggered []string
}

// collect суммирует очки активных правил, прошедших match. Правила без очков игнорируются.
func collect(rules []Rule, trigger Trigger, match func(Rule) bool) Outcome {
	out := Outcome{Trigger: trigger}
	for _, r := range rules {
		if !r.IsActive || r.Points <= 0 {
			continue
		}
		if match(r) {
			out.Total += r.Points
			out.Triggered = append(out.Triggered, r.ID)
		}
	}
	return out
}

// OnSubmission считает бонус за раннюю сдачу. Срабатывают все правила
// early_submission, для которых hoursBefore ≥ value.
func OnSubmission(rules []Rule, sub coursework.Submission, asg coursework.Assignment) Outcome {
	hours, ok := coursework.HoursBeforeDue(sub, asg)
	if !ok {
		return Outcome{Trigger: TriggerSubmission}
	}
	return collect(rules, TriggerSubmission, func(r Rule) bool {
		return r.Type == RuleEarlySubmission && hours >= r.Value
	})
}

// OnGrading считает бонус за оценку. Без оценки бонуса нет.
func OnGrading(rules []Rule, sub coursework.Submission, asg coursework.Assignment) Outcome {
	if !sub.HasValidScore() {
		return Outcome{Trigger: TriggerGrading}
	}
	pct, pctOK := coursework.Percentage(sub, asg)
	perfect := coursework.IsPerfect(sub, asg)

	return collect(rules, TriggerGrading, func(r Rule) bool {
		switch r.Type {
		case RulePerfectScore:
			return perfect
		case RuleScoreThreshold:
			return pctOK && pct >= r.Value
		default:
			return false
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ══════════════════════════════════════════════════════════════════════════════

// AuditEntry - запись о применении бонусов.
type AuditEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SubmissionID string    `json:"submission_id"`
	Trigger      Trigger   `json:"trigger"`
	RuleIDs      []string  `json:"rule_ids"`
	Total        int64     `json:"total"`
	Fingerprint  string    `json:"fingerprint"`
	AppliedAt    time.Time `json:"applied_at"`
}

// Fingerprint - BLAKE2b-256 от (триггер, сдача, оценка).
// Одинаковый отпечаток у двух записей означает повторное применение к тому же событию.
func Fingerprint(trigger Trigger, sub coursework.Submission) string {
	scorePart := "-"
	if sub.Score != nil {
		scorePart = strconv.FormatFloat(*sub.Score, 'g', -1, 64)
	}
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%s|%s", trigger, sub.ID, scorePart)))
	return hex.EncodeToString(sum[:])
}

// RuleRepository - чтение правил.
type RuleRepository interface {
	// ListActive возвращает активные правила учителя указанных типов.
	ListActive(ctx context.Context, teacherID string, types ...RuleType) ([]Rule, error)
}

// AuditRepository - журнал применений.
type AuditRepository interface {
	// Record сохраняет запись. duplicate == true, если такой отпечаток уже был.
	Record(ctx context.Context, e AuditEntry) (duplicate bool, err error)
}
