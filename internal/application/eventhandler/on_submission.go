package eventhandler

import (
	"context"
	"errors"
	"fmt"

	"github.com/k9quest/progression-hub/internal/application/command"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SUBMISSION CREATED / GRADED
// Сдача: значки (инкрементально), бонус за раннюю сдачу, задача submit_assignment.
// Оценка: бонусы за балл, значки, задачи high_score и слабого предмета.
// ═══════════════════════════════════════════════════════════════════════════

// Engines - движки, на которые раскладывается событие.
type Engines struct {
	Badges  *command.EvaluateBadgesHandler
	Scoring *command.ApplyScoringHandler
	Daily   *command.DailyChallengeHandler
}

// OnSubmissionCreatedHandler обрабатывает новую сдачу.
type OnSubmissionCreatedHandler struct {
	submissions coursework.SubmissionRepository
	assignments coursework.AssignmentRepository
	engines     Engines
	logger      *logger.Logger
}

// NewOnSubmissionCreatedHandler создаёт обработчик.
func NewOnSubmissionCreatedHandler(
	submissions coursework.SubmissionRepository,
	assignments coursework.AssignmentRepository,
	engines Engines,
	log *logger.Logger,
) *OnSubmissionCreatedHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &OnSubmissionCreatedHandler{
		submissions: submissions,
		assignments: assignments,
		engines:     engines,
		logger:      log.With(logger.Component("on_submission_created")),
	}
}

// EventType возвращает тип обрабатываемого события.
func (h *OnSubmissionCreatedHandler) EventType() shared.EventType {
	return shared.EventSubmissionCreated
}

// Handle обрабатывает событие.
func (h *OnSubmissionCreatedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := as[shared.SubmissionCreatedEvent](event)
	if !ok {
		return fmt.Errorf("on_submission_created: unexpected event %T", event)
	}

	sub, err := loadSubmission(ctx, h.submissions, coursework.Submission{
		ID:           e.SubmissionID,
		StudentID:    e.UserID,
		AssignmentID: e.AssignmentID,
		Status:       coursework.StatusPending,
		SubmittedAt:  e.OccurredAt(),
	})
	if err != nil {
		return fmt.Errorf("on_submission_created: load submission: %w", err)
	}
	asg, found, err := loadAssignment(ctx, h.assignments, sub.AssignmentID)
	if err != nil {
		return fmt.Errorf("on_submission_created: load assignment: %w", err)
	}

	if found && h.engines.Scoring != nil {
		h.engines.Scoring.ApplyOnSubmission(ctx, sub, asg)
	}
	if h.engines.Badges != nil {
		h.engines.Badges.EvaluateIncremental(ctx, e.UserID, &sub)
	}

	if h.engines.Daily == nil {
		return nil
	}
	if _, err := h.engines.Daily.MarkTaskComplete(ctx, e.UserID, challenge.TaskSubmitAssignment); err != nil {
		h.logger.Error("failed to mark daily task", logger.UserID(e.UserID), logger.Err(err))
		return err
	}
	return nil
}

// OnSubmissionGradedHandler обрабатывает оценку сдачи.
type OnSubmissionGradedHandler struct {
	submissions coursework.SubmissionRepository
	assignments coursework.AssignmentRepository
	engines     Engines
	logger      *logger.Logger
}

// NewOnSubmissionGradedHandler создаёт обработчик.
func NewOnSubmissionGradedHandler(
	submissions coursework.SubmissionRepository,
	assignments coursework.AssignmentRepository,
	engines Engines,
	log *logger.Logger,
) *OnSubmissionGradedHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &OnSubmissionGradedHandler{
		submissions: submissions,
		assignments: assignments,
		engines:     engines,
		logger:      log.With(logger.Component("on_submission_graded")),
	}
}

// EventType возвращает тип обрабатываемого события.
func (h *OnSubmissionGradedHandler) EventType() shared.EventType {
	return shared.EventSubmissionGraded
}

// Handle обрабатывает событие.
func (h *OnSubmissionGradedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := as[shared.SubmissionGradedEvent](event)
	if !ok {
		return fmt.Errorf("on_submission_graded: unexpected event %T", event)
	}

	score := e.Score
	sub, err := loadSubmission(ctx, h.submissions, coursework.Submission{
		ID:           e.SubmissionID,
		StudentID:    e.UserID,
		AssignmentID: e.AssignmentID,
		Status:       coursework.StatusGraded,
		Score:        &score,
		SubmittedAt:  e.OccurredAt(),
		GradedAt:     e.OccurredAt(),
	})
	if err != nil {
		return fmt.Errorf("on_submission_graded: load submission: %w", err)
	}
	asg, found, err := loadAssignment(ctx, h.assignments, sub.AssignmentID)
	if err != nil {
		return fmt.Errorf("on_submission_graded: load assignment: %w", err)
	}

	if found && h.engines.Scoring != nil {
		h.engines.Scoring.ApplyOnGrading(ctx, sub, asg)
	}
	if h.engines.Badges != nil {
		h.engines.Badges.EvaluateIncremental(ctx, e.UserID, &sub)
	}

	if h.engines.Daily == nil {
		return nil
	}
	var errs []error
	if found {
		if pct, ok := coursework.Percentage(sub, asg); ok && pct >= challenge.HighScorePercent {
			if _, err := h.engines.Daily.MarkTaskComplete(ctx, e.UserID, challenge.TaskHighScore); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if _, err := h.engines.Daily.MarkWeakSubjectIfQualified(ctx, e.UserID); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		h.logger.Error("failed to update daily tasks", logger.UserID(e.UserID), logger.Err(err))
		return err
	}
	return nil
}
