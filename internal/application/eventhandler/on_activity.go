package eventhandler

import (
	"context"
	"fmt"

	"github.com/k9quest/progression-hub/internal/application/command"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON USER LOGGED IN / ON STAGE COMPLETED
// Вход создаёт дневной леджер (задача login засчитывается сразу),
// пройденный этап пути закрывает задачу complete_stage.
// ═══════════════════════════════════════════════════════════════════════════

// OnUserLoggedInHandler обрабатывает вход ученика.
type OnUserLoggedInHandler struct {
	daily  *command.DailyChallengeHandler
	logger *logger.Logger
}

// NewOnUserLoggedInHandler создаёт обработчик.
func NewOnUserLoggedInHandler(daily *command.DailyChallengeHandler, log *logger.Logger) *OnUserLoggedInHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &OnUserLoggedInHandler{daily: daily, logger: log.With(logger.Component("on_user_logged_in"))}
}

// EventType возвращает тип обрабатываемого события.
func (h *OnUserLoggedInHandler) EventType() shared.EventType {
	return shared.EventUserLoggedIn
}

// Handle обрабатывает событие.
func (h *OnUserLoggedInHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := as[shared.UserLoggedInEvent](event)
	if !ok {
		return fmt.Errorf("on_user_logged_in: unexpected event %T", event)
	}
	if _, err := h.daily.EnsureToday(ctx, e.UserID); err != nil {
		h.logger.Error("failed to open daily challenge", logger.UserID(e.UserID), logger.Err(err))
		return err
	}
	return nil
}

// OnStageCompletedHandler обрабатывает успешно пройденный этап.
type OnStageCompletedHandler struct {
	daily  *command.DailyChallengeHandler
	logger *logger.Logger
}

// NewOnStageCompletedHandler создаёт обработчик.
func NewOnStageCompletedHandler(daily *command.DailyChallengeHandler, log *logger.Logger) *OnStageCompletedHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &OnStageCompletedHandler{daily: daily, logger: log.With(logger.Component("on_stage_completed"))}
}

// EventType возвращает тип обрабатываемого события.
func (h *OnStageCompletedHandler) EventType() shared.EventType {
	return shared.EventStageCompleted
}

// Handle обрабатывает событие. Проваленные квизы сюда не приходят.
func (h *OnStageCompletedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := as[shared.StageFinishedEvent](event)
	if !ok {
		return fmt.Errorf("on_stage_completed: unexpected event %T", event)
	}
	if _, err := h.daily.MarkTaskComplete(ctx, e.UserID, challenge.TaskCompleteStage); err != nil {
		h.logger.Error("failed to mark daily task", logger.UserID(e.UserID), logger.StageID(e.StageID), logger.Err(err))
		return err
	}
	return nil
}
