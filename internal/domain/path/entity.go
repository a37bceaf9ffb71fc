// Package path описывает учебные пути: упорядоченные этапы и прогресс ученика по ним.
//
// Состояния прогресса: locked → unlocked → in_progress → completed | failed.
// Отсутствие строки прогресса означает locked. Из failed можно начать этап заново.
// Следующий этап открывается только при переходе текущего в completed.
package path

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty - сложность пути.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// LearningPath - учебный путь.
type LearningPath struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Grade       shared.Grade   `json:"grade"`
	Subject     shared.Subject `json:"subject"`
	Difficulty  Difficulty     `json:"difficulty"`
	CoinsReward int            `json:"coins_reward"`
	IsActive    bool           `json:"is_active"`
}

// StageType - тип этапа.
type StageType string

const (
	StageLesson     StageType = "lesson"
	StageQuiz       StageType = "quiz"
	StageAssignment StageType = "assignment"
	StageChallenge  StageType = "challenge"
)

// Question - вопрос квиза.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer"`
}

// Stage - этап пути.
type Stage struct {
	ID           string        `json:"id"`
	PathID       string        `json:"path_id"`
	Order        int           `json:"order"`
	Title        string        `json:"title"`
	Type         StageType     `json:"stage_type"`
	XPReward     int           `json:"xp_reward"`
	CoinsReward  int           `json:"coins_reward"`
	PassingScore int           `json:"passing_score"`
	TimeLimit    time.Duration `json:"time_limit"`
	Questions    []Question    `json:"questions,omitempty"`
}

// SortStages упорядочивает этапы по Order (стабильно).
func SortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
}

// FirstStage возвращает этап с наименьшим Order.
func FirstStage(stages []Stage) (Stage, bool) {
	if len(stages) == 0 {
		return Stage{}, false
	}
	first := stages[0]
	for _, s := range stages[1:] {
		if s.Order < first.Order {
			first = s
		}
	}
	return first, true
}

// NextStage возвращает этап с наименьшим Order, большим чем у current.
func NextStage(stages []Stage, current Stage) (Stage, bool) {
	var (
		next  Stage
		found bool
	)
	for _, s := range stages {
		if s.Order <= current.Order || s.ID == current.ID {
			continue
		}
		if !found || s.Order < next.Order {
			next, found = s, true
		}
	}
	return next, found
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ GRADING
// ══════════════════════════════════════════════════════════════════════════════

// QuizResult - результат проверки квиза.
type QuizResult struct {
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
	Score   int  `json:"score"`
	Passed  bool `json:"passed"`
}

// GradeQuiz проверяет ответы: score = round(correct/total × 100).
// Ответы сравниваются без учёта регистра и крайних пробелов.
func (s Stage) GradeQuiz(answers map[string]string) (QuizResult, error) {
	total := len(s.Questions)
	if total == 0 {
		return QuizResult{}, shared.ErrQuizHasNoQuestions
	}

	correct := 0
	for _, q := range s.Questions {
		given, ok := answers[q.ID]
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(q.Answer)) {
			correct++
		}
	}

	score := int(math.Round(float64(correct) / float64(total) * 100))
	return QuizResult{
		Correct: correct,
		Total:   total,
		Score:   score,
		Passed:  score >= s.PassingScore,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - чтение путей и этапов.
type Repository interface {
	// GetPath возвращает путь. shared.ErrPathNotFound, если его нет.
	GetPath(ctx context.Context, pathID string) (*LearningPath, error)

	// ListStages возвращает этапы пути по возрастанию Order.
	ListStages(ctx context.Context, pathID string) ([]Stage, error)

	// GetStage возвращает этап. shared.ErrStageNotFound, если его нет.
	GetStage(ctx context.Context, stageID string) (*Stage, error)
}

// ProgressRepository - строки прогресса.
type ProgressRepository interface {
	// Get возвращает строку. shared.ErrProgressNotFound, если её нет.
	Get(ctx context.Context, studentID, stageID string) (*Progress, error)

	// ListByPath возвращает строки ученика по пути.
	ListByPath(ctx context.Context, studentID, pathID string) ([]Progress, error)

	// ListByStudent возвращает все строки ученика.
	ListByStudent(ctx context.Context, studentID string) ([]Progress, error)

	// Create вставляет строку. shared.ErrProgressExists при гонке.
	Create(ctx context.Context, p *Progress) error

	// Update сохраняет изменения строки.
	Update(ctx context.Context, p *Progress) error
}
