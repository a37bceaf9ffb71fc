// Package eventhandler содержит обработчики доменных событий.
//
// Каждое действие ученика (сдача, оценка, вход, этап пути) независимо
// разбирается несколькими движками: значки, бонусы учителя, задачи дня.
// Сбой одного движка не отменяет работу остальных.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// Handler - обработчик одного типа событий.
type Handler interface {
	EventType() shared.EventType
	Handle(ctx context.Context, event shared.Event) error
}

// Register подписывает обработчики на шину.
func Register(bus shared.EventSubscriber, handlers ...Handler) error {
	for _, h := range handlers {
		if err := bus.Subscribe(h.EventType(), h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", h.EventType(), err)
		}
	}
	return nil
}

// as приводит событие к конкретному типу (значение или указатель).
func as[T any](e shared.Event) (T, bool) {
	if v, ok := e.(T); ok {
		return v, true
	}
	if p, ok := any(e).(*T); ok && p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// loadSubmission читает сдачу из хранилища. Если хранилище её ещё не отдаёт,
// используется fallback, собранный из события.
func loadSubmission(ctx context.Context, repo coursework.SubmissionRepository, fallback coursework.Submission) (coursework.Submission, error) {
	stored, err := repo.GetByID(ctx, fallback.ID)
	if err != nil {
		if shared.IsNotFound(err) {
			return fallback, nil
		}
		return coursework.Submission{}, err
	}
	if stored.Score == nil && fallback.Score != nil {
		stored.Score = fallback.Score
		stored.Status = coursework.StatusGraded
		if stored.GradedAt.IsZero() {
			stored.GradedAt = fallback.GradedAt
		}
	}
	return *stored, nil
}

// loadAssignment возвращает задание. ok == false, если его нет.
func loadAssignment(ctx context.Context, repo coursework.AssignmentRepository, id string) (coursework.Assignment, bool, error) {
	if id == "" {
		return coursework.Assignment{}, false, nil
	}
	a, err := repo.GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return coursework.Assignment{}, false, nil
		}
		return coursework.Assignment{}, false, err
	}
	return *a, true, nil
}
