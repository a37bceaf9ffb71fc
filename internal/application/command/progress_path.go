package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PATH PROGRESSION
// Drives a student through the ordered stages of a learning path:
// enter → start → complete (or pass/fail a quiz) → unlock the next stage.
// ══════════════════════════════════════════════════════════════════════════════

// StageView is a stage together with the student's status on it.
type StageView struct {
	Stage    path.Stage
	Status   path.Status
	Progress *path.Progress
}

// PathView is the student's view of a learning path.
type PathView struct {
	Path   path.LearningPath
	Stages []StageView
}

// StageOutcome contains the result of finishing a stage.
type StageOutcome struct {
	Progress *path.Progress

	// Quiz is set for quiz submissions.
	Quiz *path.QuizResult

	// NextStageID is the stage unlocked by this completion, if any.
	NextStageID string

	// PathCompleted is set when the last stage of the path was completed.
	PathCompleted bool

	// CoinsCredited is the sum of stage and path rewards paid out.
	CoinsCredited int64

	// NewBalance is the coin balance after the last credit.
	NewBalance int64
}

// ProgressPathHandler handles path progression commands.
type ProgressPathHandler struct {
	paths          path.Repository
	progress       path.ProgressRepository
	ledger         profile.Ledger
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	clock          timeutil.Clock
	newID          func() string
}

// NewProgressPathHandler creates a new ProgressPathHandler.
func NewProgressPathHandler(
	paths path.Repository,
	progress path.ProgressRepository,
	ledger profile.Ledger,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	clock timeutil.Clock,
) *ProgressPathHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &ProgressPathHandler{
		paths:          paths,
		progress:       progress,
		ledger:         ledger,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("path_engine")),
		clock:          clock,
		newID:          uuid.NewString,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTER / START
// ══════════════════════════════════════════════════════════════════════════════

// EnterPath opens a path for the student: the first stage becomes unlocked.
// Entering again is harmless and just returns the current view.
func (h *ProgressPathHandler) EnterPath(ctx context.Context, studentID, pathID string) (*PathView, error) {
	if _, err := shared.NewUserID(studentID); err != nil {
		return nil, fmt.Errorf("enter_path: %w", err)
	}

	lp, err := h.paths.GetPath(ctx, pathID)
	if err != nil {
		return nil, err
	}
	if !lp.IsActive {
		return nil, shared.ErrPathInactive
	}

	stages, err := h.paths.ListStages(ctx, pathID)
	if err != nil {
		return nil, fmt.Errorf("enter_path: list stages: %w", err)
	}
	first, ok := path.FirstStage(stages)
	if !ok {
		return nil, shared.ErrPathHasNoStages
	}

	if _, err := h.unlock(ctx, studentID, first); err != nil {
		return nil, fmt.Errorf("enter_path: unlock first stage: %w", err)
	}

	return h.view(ctx, studentID, *lp, stages)
}

// StartStage moves an unlocked or failed stage to in_progress.
func (h *ProgressPathHandler) StartStage(ctx context.Context, studentID, stageID string) (*path.Progress, error) {
	if _, err := h.activeStage(ctx, stageID); err != nil {
		return nil, err
	}

	row, err := h.progress.Get(ctx, studentID, stageID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrStageLocked
		}
		return nil, fmt.Errorf("start_stage: %w", err)
	}

	changed, err := row.Start(h.clock())
	if err != nil {
		return nil, err
	}
	if changed {
		if err := h.progress.Update(ctx, row); err != nil {
			return nil, fmt.Errorf("start_stage: %w", err)
		}
		h.log.Debug("stage started", logger.UserID(studentID), logger.StageID(stageID), logger.Int("attempt", row.Attempts))
	}
	return row, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE / QUIZ
// ══════════════════════════════════════════════════════════════════════════════

// CompleteStage finishes a lesson, assignment or challenge stage with score 100.
func (h *ProgressPathHandler) CompleteStage(ctx context.Context, studentID, stageID string) (*StageOutcome, error) {
	stage, row, err := h.inProgress(ctx, studentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Type == path.StageQuiz {
		return nil, shared.ErrStageTypeMismatch
	}
	if err := row.Complete(*stage, 100, h.clock()); err != nil {
		return nil, err
	}
	return h.finish(ctx, *stage, row, nil)
}

// SubmitQuiz grades the answers (question ID → answer) and completes or fails the stage.
func (h *ProgressPathHandler) SubmitQuiz(ctx context.Context, studentID, stageID string, answers map[string]string) (*StageOutcome, error) {
	stage, row, err := h.inProgress(ctx, studentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Type != path.StageQuiz {
		return nil, shared.ErrStageTypeMismatch
	}

	quiz, err := stage.GradeQuiz(answers)
	if err != nil {
		return nil, err
	}

	now := h.clock()
	if quiz.Passed {
		err = row.Complete(*stage, quiz.Score, now)
	} else {
		err = row.Fail(*stage, quiz.Score, now)
	}
	if err != nil {
		return nil, err
	}
	return h.finish(ctx, *stage, row, &quiz)
}

// activeStage loads a stage whose path is still active. A deactivated path
// accepts no new starts and no completions, so it pays out nothing more.
func (h *ProgressPathHandler) activeStage(ctx context.Context, stageID string) (*path.Stage, error) {
	stage, err := h.paths.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	lp, err := h.paths.GetPath(ctx, stage.PathID)
	if err != nil {
		return nil, err
	}
	if !lp.IsActive {
		return nil, shared.ErrPathInactive
	}
	return stage, nil
}

// inProgress loads the stage of an active path and the student's row on it.
func (h *ProgressPathHandler) inProgress(ctx context.Context, studentID, stageID string) (*path.Stage, *path.Progress, error) {
	stage, err := h.activeStage(ctx, stageID)
	if err != nil {
		return nil, nil, err
	}
	row, err := h.progress.Get(ctx, studentID, stageID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil, shared.ErrStageLocked
		}
		return nil, nil, err
	}
	return stage, row, nil
}

// finish persists the terminal row, unlocks the next stage, pays rewards and publishes the event.
func (h *ProgressPathHandler) finish(ctx context.Context, stage path.Stage, row *path.Progress, quiz *path.QuizResult) (*StageOutcome, error) {
	log := h.log.With(logger.UserID(row.StudentID), logger.StageID(stage.ID))

	if err := h.progress.Update(ctx, row); err != nil {
		return nil, fmt.Errorf("finish_stage: save progress: %w", err)
	}

	outcome := &StageOutcome{Progress: row, Quiz: quiz}
	passed := row.Status == path.StatusCompleted

	if passed {
		stages, err := h.paths.ListStages(ctx, stage.PathID)
		if err != nil {
			return nil, fmt.Errorf("finish_stage: list stages: %w", err)
		}
		if next, ok := path.NextStage(stages, stage); ok {
			if _, err := h.unlock(ctx, row.StudentID, next); err != nil {
				return nil, fmt.Errorf("finish_stage: unlock next stage: %w", err)
			}
			outcome.NextStageID = next.ID
		} else {
			outcome.PathCompleted = true
		}

		if err := h.credit(ctx, outcome, row.StudentID, int64(stage.CoinsReward), "path.stage", stage.ID); err != nil {
			return nil, err
		}
		if outcome.PathCompleted {
			lp, err := h.paths.GetPath(ctx, stage.PathID)
			if err != nil {
				return nil, fmt.Errorf("finish_stage: get path: %w", err)
			}
			if err := h.credit(ctx, outcome, row.StudentID, int64(lp.CoinsReward), "path.completed", lp.ID); err != nil {
				return nil, err
			}
		}
	}

	event := shared.NewStageFinishedEvent(passed, row.StudentID, row.PathID, stage.ID, string(stage.Type), row.Score, row.XPEarned, row.CoinsEarned)
	if err := h.eventPublisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish stage event", logger.Err(err))
	}

	log.Info("stage finished",
		logger.String("status", string(row.Status)),
		logger.Int("score", row.Score),
		logger.Int("xp", row.XPEarned),
		logger.Coins(outcome.CoinsCredited),
	)
	return outcome, nil
}

// credit pays coins through the ledger. Zero amounts are skipped.
func (h *ProgressPathHandler) credit(ctx context.Context, outcome *StageOutcome, userID string, amount int64, reason, ref string) error {
	if amount <= 0 {
		return nil
	}
	balance, err := h.ledger.ApplyDelta(ctx, profile.Delta{
		UserID: userID,
		Field:  profile.FieldCoins,
		Amount: amount,
		Reason: reason,
		Ref:    ref,
	})
	if err != nil {
		h.log.Error("failed to credit path reward",
			logger.UserID(userID),
			logger.String("reason", reason),
			logger.Coins(amount),
			logger.Err(err),
		)
		return fmt.Errorf("finish_stage: credit %s: %w", reason, err)
	}
	outcome.CoinsCredited += amount
	outcome.NewBalance = balance
	return nil
}

// unlock makes sure the student has an unlocked (or further) row for stage.
func (h *ProgressPathHandler) unlock(ctx context.Context, studentID string, stage path.Stage) (*path.Progress, error) {
	now := h.clock()

	row, err := h.progress.Get(ctx, studentID, stage.ID)
	switch {
	case err == nil:
		if row.Unlock(now) {
			if err := h.progress.Update(ctx, row); err != nil {
				return nil, err
			}
		}
		return row, nil
	case !shared.IsNotFound(err):
		return nil, err
	}

	row = path.NewProgress(h.newID(), studentID, stage, path.StatusUnlocked, now)
	if err := h.progress.Create(ctx, row); err != nil {
		if errors.Is(err, shared.ErrProgressExists) {
			// Lost the race to a concurrent unlock; the row is there now.
			return h.progress.Get(ctx, studentID, stage.ID)
		}
		return nil, err
	}
	return row, nil
}

// view assembles the per-stage status list. Stages without a row are locked.
func (h *ProgressPathHandler) view(ctx context.Context, studentID string, lp path.LearningPath, stages []path.Stage) (*PathView, error) {
	rows, err := h.progress.ListByPath(ctx, studentID, lp.ID)
	if err != nil {
		return nil, fmt.Errorf("path_view: %w", err)
	}
	byStage := make(map[string]path.Progress, len(rows))
	for _, r := range rows {
		byStage[r.StageID] = r
	}

	out := &PathView{Path: lp, Stages: make([]StageView, 0, len(stages))}
	for _, s := range stages {
		sv := StageView{Stage: s, Status: path.StatusLocked}
		if r, ok := byStage[s.ID]; ok {
			r := r
			sv.Status = r.Status
			sv.Progress = &r
		}
		out.Stages = append(out.Stages, sv)
	}
	return out, nil
}
