package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CHALLENGE
// Tracks the per-day task ledger: fixed tasks plus one dynamic task for the
// student's weakest subject. Rewards are claimed explicitly, at most once.
// ══════════════════════════════════════════════════════════════════════════════

// TaskStatus is one row of the daily board.
type TaskStatus struct {
	Task      challenge.Task `json:"task"`
	Completed bool           `json:"completed"`
	Claimed   bool           `json:"claimed"`
}

// DailyBoard is the student's task list for one day.
type DailyBoard struct {
	UserID string       `json:"user_id"`
	Day    string       `json:"day"`
	Tasks  []TaskStatus `json:"tasks"`
}

// ClaimResult contains the result of a reward claim.
type ClaimResult struct {
	Task       challenge.Task
	Day        string
	Reward     int64
	NewBalance int64
}

// DailyChallengeHandler handles daily challenge commands.
type DailyChallengeHandler struct {
	challenges     challenge.Repository
	submissions    coursework.SubmissionRepository
	assignments    coursework.AssignmentRepository
	ledger         profile.Ledger
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	clock          timeutil.Clock
	loc            *time.Location
}

// NewDailyChallengeHandler creates a new DailyChallengeHandler.
func NewDailyChallengeHandler(
	challenges challenge.Repository,
	submissions coursework.SubmissionRepository,
	assignments coursework.AssignmentRepository,
	ledger profile.Ledger,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	clock timeutil.Clock,
	loc *time.Location,
) *DailyChallengeHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if loc == nil {
		loc = timeutil.DefaultSchoolTZ
	}
	return &DailyChallengeHandler{
		challenges:     challenges,
		submissions:    submissions,
		assignments:    assignments,
		ledger:         ledger,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("daily_challenge")),
		clock:          clock,
		loc:            loc,
	}
}

// Today returns the current school day key.
func (h *DailyChallengeHandler) Today() string {
	return timeutil.DayKey(h.clock(), h.loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// EnsureToday returns today's ledger, creating it on first access.
// Creation marks the login task as completed.
func (h *DailyChallengeHandler) EnsureToday(ctx context.Context, userID string) (*challenge.Challenge, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, fmt.Errorf("daily_challenge: %w", err)
	}

	now := h.clock()
	day := timeutil.DayKey(now, h.loc)

	c, err := h.challenges.Get(ctx, userID, day)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, shared.ErrChallengeNotFound) {
		return nil, fmt.Errorf("daily_challenge: get: %w", err)
	}

	c = challenge.New(userID, day, now)
	if err := h.challenges.Create(ctx, c); err != nil {
		if errors.Is(err, shared.ErrChallengeExists) {
			return h.challenges.Get(ctx, userID, day)
		}
		return nil, fmt.Errorf("daily_challenge: create: %w", err)
	}

	h.log.Debug("daily challenge created", logger.UserID(userID), logger.String("day", day))
	h.publish(ctx, shared.NewDailyTaskCompletedEvent(userID, day, string(challenge.TaskLogin)))
	return c, nil
}

// MarkTaskComplete records progress on a task. Returns false if it was already done.
// Dynamic tasks are accepted only for today's weakest subject.
func (h *DailyChallengeHandler) MarkTaskComplete(ctx context.Context, userID string, taskID challenge.TaskID) (bool, error) {
	if _, err := h.resolveTask(ctx, userID, taskID); err != nil {
		return false, err
	}

	c, err := h.EnsureToday(ctx, userID)
	if err != nil {
		return false, err
	}

	changed, err := h.challenges.MarkProgress(ctx, userID, c.Day, taskID)
	if err != nil {
		return false, fmt.Errorf("daily_challenge: mark progress: %w", err)
	}
	if changed {
		h.log.Info("daily task completed", logger.UserID(userID), logger.TaskID(string(taskID)))
		h.publish(ctx, shared.NewDailyTaskCompletedEvent(userID, c.Day, string(taskID)))
	}
	return changed, nil
}

// MarkWeakSubjectIfQualified completes today's dynamic task when a submission
// graded today reaches the pass mark in the weakest subject.
func (h *DailyChallengeHandler) MarkWeakSubjectIfQualified(ctx context.Context, userID string) (bool, error) {
	task, ok, err := h.WeakSubjectTask(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	qualified, err := h.qualifiesToday(ctx, userID, task)
	if err != nil || !qualified {
		return false, err
	}
	return h.MarkTaskComplete(ctx, userID, task.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM
// ══════════════════════════════════════════════════════════════════════════════

// Claim pays the reward of a completed task. The claimed flag is set with a
// conditional write before coins are credited, so a reward is paid at most once.
func (h *DailyChallengeHandler) Claim(ctx context.Context, userID string, taskID challenge.TaskID) (*ClaimResult, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, fmt.Errorf("daily_challenge: %w", err)
	}

	task, ok := challenge.LookupFixed(taskID)
	var candidates []challenge.Task
	if !ok {
		// The ledger gates dynamic tasks: only the one marked earlier today can be claimed.
		var err error
		if candidates, err = h.dynamicCandidates(ctx, userID, taskID); err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, shared.ErrUnknownTask
		}
		task = candidates[0]
	}

	day := h.Today()
	c, err := h.challenges.Get(ctx, userID, day)
	if err != nil {
		if errors.Is(err, shared.ErrChallengeNotFound) {
			return nil, shared.ErrTaskNotCompleted
		}
		return nil, fmt.Errorf("daily_challenge: get: %w", err)
	}
	if err := c.CanClaim(task.ID); err != nil {
		return nil, err
	}

	if task.Dynamic {
		qualified := false
		for _, cand := range candidates {
			ok, err := h.qualifiesToday(ctx, userID, cand)
			if err != nil {
				return nil, err
			}
			if ok {
				task, qualified = cand, true
				break
			}
		}
		if !qualified {
			return nil, shared.ErrTaskNoLongerValid
		}
	}

	claimed, err := h.challenges.MarkClaimed(ctx, userID, day, task.ID)
	if err != nil {
		return nil, fmt.Errorf("daily_challenge: mark claimed: %w", err)
	}
	if !claimed {
		return nil, shared.ErrTaskAlreadyClaimed
	}

	reward := int64(task.Reward)
	balance, err := h.ledger.ApplyDelta(ctx, profile.Delta{
		UserID: userID,
		Field:  profile.FieldCoins,
		Amount: reward,
		Reason: "daily." + string(task.ID),
		Ref:    day,
	})
	if err != nil {
		h.log.Error("reward marked claimed but credit failed",
			logger.UserID(userID),
			logger.TaskID(string(task.ID)),
			logger.Coins(reward),
			logger.Err(err),
		)
		return nil, fmt.Errorf("daily_challenge: credit reward: %w", err)
	}

	h.log.Info("daily reward claimed", logger.UserID(userID), logger.TaskID(string(task.ID)), logger.Coins(reward))
	h.publish(ctx, shared.NewDailyRewardClaimedEvent(userID, day, string(task.ID), task.Reward))

	return &ClaimResult{Task: task, Day: day, Reward: reward, NewBalance: balance}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOARD
// ══════════════════════════════════════════════════════════════════════════════

// Board returns today's tasks with their status. It creates the ledger if needed.
func (h *DailyChallengeHandler) Board(ctx context.Context, userID string) (*DailyBoard, error) {
	c, err := h.EnsureToday(ctx, userID)
	if err != nil {
		return nil, err
	}

	tasks := challenge.FixedTasks()
	if weak, ok, err := h.WeakSubjectTask(ctx, userID); err != nil {
		return nil, err
	} else if ok {
		tasks = append(tasks, weak)
	}

	// A dynamic task completed earlier today stays listed even if the weakest subject moved since.
	for id := range c.Progress {
		if !id.IsDynamic() || containsTask(tasks, id) {
			continue
		}
		matches, err := h.dynamicCandidates(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			tasks = append(tasks, matches[0])
		}
	}

	board := &DailyBoard{UserID: userID, Day: c.Day, Tasks: make([]TaskStatus, 0, len(tasks))}
	for _, t := range tasks {
		board.Tasks = append(board.Tasks, TaskStatus{
			Task:      t,
			Completed: c.IsCompleted(t.ID),
			Claimed:   c.IsClaimed(t.ID),
		})
	}
	return board, nil
}

// WeakSubjectTask derives today's dynamic task from the student's subject
// averages. ok == false when the student has no graded work yet.
func (h *DailyChallengeHandler) WeakSubjectTask(ctx context.Context, userID string) (challenge.Task, bool, error) {
	subs, err := h.submissions.ListByStudent(ctx, userID)
	if err != nil {
		return challenge.Task{}, false, fmt.Errorf("daily_challenge: list submissions: %w", err)
	}
	assignments, err := h.assignmentsFor(ctx, subs)
	if err != nil {
		return challenge.Task{}, false, err
	}

	stats := badge.ComputeStats(badge.Snapshot{
		UserID:      userID,
		Submissions: subs,
		Assignments: assignments,
		Now:         h.clock(),
		Location:    h.loc,
	})
	subject, ok := challenge.WeakestSubject(stats.SubjectAverages())
	if !ok {
		return challenge.Task{}, false, nil
	}
	return challenge.WeakSubjectTask(subject), true, nil
}

// dynamicCandidates resolves a dynamic task ID against the subjects the
// student has submitted work in.
func (h *DailyChallengeHandler) dynamicCandidates(ctx context.Context, userID string, id challenge.TaskID) ([]challenge.Task, error) {
	if !id.IsDynamic() {
		return nil, nil
	}
	subs, err := h.submissions.ListByStudent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("daily_challenge: list submissions: %w", err)
	}
	assignments, err := h.assignmentsFor(ctx, subs)
	if err != nil {
		return nil, err
	}
	subjects := make([]shared.Subject, 0, len(assignments))
	for _, a := range assignments {
		subjects = append(subjects, a.Subject)
	}
	return challenge.MatchWeakSubjectTask(id, subjects), nil
}

// resolveTask maps a task ID to a fixed task or today's dynamic task.
func (h *DailyChallengeHandler) resolveTask(ctx context.Context, userID string, taskID challenge.TaskID) (challenge.Task, error) {
	if t, ok := challenge.LookupFixed(taskID); ok {
		return t, nil
	}
	if !taskID.IsDynamic() {
		return challenge.Task{}, shared.ErrUnknownTask
	}
	weak, ok, err := h.WeakSubjectTask(ctx, userID)
	if err != nil {
		return challenge.Task{}, err
	}
	if !ok || weak.ID != taskID {
		return challenge.Task{}, shared.ErrUnknownTask
	}
	return weak, nil
}

// qualifiesToday checks the dynamic task against submissions graded today.
func (h *DailyChallengeHandler) qualifiesToday(ctx context.Context, userID string, task challenge.Task) (bool, error) {
	now := h.clock()
	subs, err := h.submissions.ListByStudent(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("daily_challenge: list submissions: %w", err)
	}

	today := make([]coursework.Submission, 0, len(subs))
	for _, s := range subs {
		if !s.GradedAt.IsZero() && timeutil.IsSameDay(s.GradedAt, now, h.loc) {
			today = append(today, s)
		}
	}
	if len(today) == 0 {
		return false, nil
	}

	assignments, err := h.assignmentsFor(ctx, today)
	if err != nil {
		return false, err
	}
	return challenge.QualifiesWeakSubject(task.Subject, today, assignments), nil
}

func (h *DailyChallengeHandler) assignmentsFor(ctx context.Context, subs []coursework.Submission) (map[string]coursework.Assignment, error) {
	ids := coursework.AssignmentIDs(subs)
	if len(ids) == 0 {
		return map[string]coursework.Assignment{}, nil
	}
	found, err := h.assignments.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("daily_challenge: get assignments: %w", err)
	}
	return found, nil
}

func containsTask(tasks []challenge.Task, id challenge.TaskID) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (h *DailyChallengeHandler) publish(ctx context.Context, event shared.Event) {
	if err := h.eventPublisher.Publish(ctx, event); err != nil {
		h.log.Warn("failed to publish daily challenge event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
