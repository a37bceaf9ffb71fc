// Package challenge описывает ежедневные задания: каталог задач, дневной леджер
// прогресса и правила получения награды.
package challenge

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// TaskID - идентификатор задачи дня.
type TaskID string

const (
	TaskLogin            TaskID = "login"
	TaskSubmitAssignment TaskID = "submit_assignment"
	TaskCompleteStage    TaskID = "complete_stage"
	TaskHighScore        TaskID = "high_score"
)

// WeakSubjectPrefix - префикс динамической задачи по слабому предмету.
const WeakSubjectPrefix = "improve_"

const (
	// HighScorePercent - порог задачи high_score.
	HighScorePercent = 90.0

	// WeakSubjectPassPercent - порог динамической задачи по слабому предмету.
	WeakSubjectPassPercent = 70.0

	// WeakSubjectReward - награда за динамическую задачу.
	WeakSubjectReward = 20
)

// Task - задача дня.
type Task struct {
	ID      TaskID         `json:"id"`
	Title   string         `json:"title"`
	Reward  int            `json:"reward"`
	Dynamic bool           `json:"dynamic"`
	Subject shared.Subject `json:"subject,omitempty"`
}

var fixedTasks = []Task{
	{ID: TaskLogin, Title: "Log in today", Reward: 5},
	{ID: TaskSubmitAssignment, Title: "Hand in an assignment", Reward: 10},
	{ID: TaskCompleteStage, Title: "Finish a learning path stage", Reward: 10},
	{ID: TaskHighScore, Title: "Score 90% or more on graded work", Reward: 15},
}

// FixedTasks возвращает копию фиксированного каталога.
func FixedTasks() []Task {
	out := make([]Task, len(fixedTasks))
	copy(out, fixedTasks)
	return out
}

// LookupFixed ищет фиксированную задачу.
func LookupFixed(id TaskID) (Task, bool) {
	for _, t := range fixedTasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// WeakSubjectTask строит динамическую задачу для предмета.
func WeakSubjectTask(subject shared.Subject) Task {
	norm := subject.Normalize()
	return Task{
		ID:      TaskID(WeakSubjectPrefix + strings.ReplaceAll(string(norm), " ", "_")),
		Title:   "Score 70% or more in " + string(norm),
		Reward:  WeakSubjectReward,
		Dynamic: true,
		Subject: norm,
	}
}

// MatchWeakSubjectTask находит динамические задачи, чей ID совпадает с id.
// ID не обратим ("social_studies" и "social studies" дают один ID), поэтому
// задача ищется среди предметов ученика, а не разбором строки. Совпадений
// может быть несколько; они упорядочены по предмету.
// Нужна при получении награды: слабый предмет мог смениться после сегодняшней оценки.
func MatchWeakSubjectTask(id TaskID, subjects []shared.Subject) []Task {
	if !id.IsDynamic() {
		return nil
	}
	seen := make(map[shared.Subject]bool, len(subjects))
	var out []Task
	for _, subj := range subjects {
		norm := subj.Normalize()
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		if t := WeakSubjectTask(norm); t.ID == id {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// IsDynamic проверяет, похож ли ID на динамическую задачу.
func (id TaskID) IsDynamic() bool {
	return strings.HasPrefix(string(id), WeakSubjectPrefix)
}

// WeakestSubject выбирает предмет с наименьшей средней оценкой.
// При равенстве побеждает предмет, идущий раньше по алфавиту.
func WeakestSubject(averages map[shared.Subject]float64) (shared.Subject, bool) {
	if len(averages) == 0 {
		return "", false
	}
	subjects := make([]shared.Subject, 0, len(averages))
	for s := range averages {
		if s.Normalize() == "" {
			continue
		}
		subjects = append(subjects, s)
	}
	if len(subjects) == 0 {
		return "", false
	}
	sort.Slice(subjects, func(i, j int) bool {
		ai, aj := averages[subjects[i]], averages[subjects[j]]
		if ai != aj {
			return ai < aj
		}
		return subjects[i] < subjects[j]
	})
	return subjects[0], true
}

// QualifiesWeakSubject проверяет условие динамической задачи: среди переданных
// (сегодняшних) сдач есть оценённая работа по предмету не ниже 70%.
func QualifiesWeakSubject(subject shared.Subject, subs []coursework.Submission, assignments map[string]coursework.Assignment) bool {
	for _, s := range subs {
		a, ok := assignments[s.AssignmentID]
		if !ok || !a.Subject.Equal(subject) {
			continue
		}
		if pct, ok := coursework.Percentage(s, a); ok && pct >= WeakSubjectPassPercent {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Challenge - леджер задач пользователя за один день.
type Challenge struct {
	UserID    string          `json:"user_id"`
	Day       string          `json:"day"`
	Progress  map[TaskID]bool `json:"progress"`
	Claimed   map[TaskID]bool `json:"claimed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New создаёт леджер дня. Вход засчитывается сразу.
func New(userID, day string, now time.Time) *Challenge {
	return &Challenge{
		UserID:    userID,
		Day:       day,
		Progress:  map[TaskID]bool{TaskLogin: true},
		Claimed:   map[TaskID]bool{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsCompleted проверяет прогресс задачи.
func (c *Challenge) IsCompleted(id TaskID) bool {
	return c.Progress[id]
}

// IsClaimed проверяет, получена ли награда.
func (c *Challenge) IsClaimed(id TaskID) bool {
	return c.Claimed[id]
}

// CanClaim проверяет предусловия получения награды.
func (c *Challenge) CanClaim(id TaskID) error {
	if !c.IsCompleted(id) {
		return shared.ErrTaskNotCompleted
	}
	if c.IsClaimed(id) {
		return shared.ErrTaskAlreadyClaimed
	}
	return nil
}

// Repository - хранилище дневных леджеров.
type Repository interface {
	// Get возвращает леджер. shared.ErrChallengeNotFound, если его нет.
	Get(ctx context.Context, userID, day string) (*Challenge, error)

	// Create вставляет леджер. shared.ErrChallengeExists при гонке.
	Create(ctx context.Context, c *Challenge) error

	// MarkProgress ставит progress[task] = true. changed == false, если уже стояло.
	MarkProgress(ctx context.Context, userID, day string, task TaskID) (changed bool, err error)

	// MarkClaimed условно ставит claimed[task] = true: только если progress[task]
	// истинно, а claimed[task] - нет. claimed == false, если условие не выполнено.
	MarkClaimed(ctx context.Context, userID, day string, task TaskID) (claimed bool, err error)
}
