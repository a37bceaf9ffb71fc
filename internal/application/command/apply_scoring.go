package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY SCORING COMMAND
// Credits teacher-defined bonus coins when a submission is handed in or graded.
// Every application is journaled with a fingerprint so re-deliveries show up.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyScoringCommand contains the data to apply bonus rules.
type ApplyScoringCommand struct {
	Trigger    scoring.Trigger
	Submission coursework.Submission
	Assignment coursework.Assignment

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ApplyScoringCommand) Validate() error {
	switch c.Trigger {
	case scoring.TriggerSubmission, scoring.TriggerGrading:
	default:
		return fmt.Errorf("apply_scoring: unknown trigger: %q", c.Trigger)
	}
	if c.Submission.ID == "" {
		return errors.New("apply_scoring: submission id is required")
	}
	if c.Submission.StudentID == "" {
		return errors.New("apply_scoring: student id is required")
	}
	if c.Assignment.ID != c.Submission.AssignmentID {
		return errors.New("apply_scoring: assignment does not match submission")
	}
	return nil
}

// ApplyScoringResult contains the result of applying rules.
type ApplyScoringResult struct {
	// Points is the total credited; 0 when no rule fired or the run failed.
	Points int64

	// RuleIDs lists the rules that fired.
	RuleIDs []string

	// NewBalance is the coin balance after the credit (0 if nothing was credited).
	NewBalance int64

	// Duplicate is set when the same trigger was already applied to this submission.
	Duplicate bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ApplyScoringHandler handles the ApplyScoringCommand.
type ApplyScoringHandler struct {
	rules          scoring.RuleRepository
	audit          scoring.AuditRepository
	ledger         profile.Ledger
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	clock          timeutil.Clock
}

// NewApplyScoringHandler creates a new ApplyScoringHandler.
func NewApplyScoringHandler(
	rules scoring.RuleRepository,
	audit scoring.AuditRepository,
	ledger profile.Ledger,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	clock timeutil.Clock,
) *ApplyScoringHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &ApplyScoringHandler{
		rules:          rules,
		audit:          audit,
		ledger:         ledger,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("scoring_engine")),
		clock:          clock,
	}
}

// ruleTypes returns the rule types relevant for a trigger.
func ruleTypes(trigger scoring.Trigger) []scoring.RuleType {
	if trigger == scoring.TriggerSubmission {
		return []scoring.RuleType{scoring.RuleEarlySubmission}
	}
	return []scoring.RuleType{scoring.RuleScoreThreshold, scoring.RulePerfectScore}
}

// Handle executes the command. Only an invalid command returns an error;
// storage failures are logged and reported as zero points.
func (h *ApplyScoringHandler) Handle(ctx context.Context, cmd ApplyScoringCommand) (*ApplyScoringResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sub := cmd.Submission
	log := h.log.With(
		logger.UserID(sub.StudentID),
		logger.SubmissionID(sub.ID),
		logger.String("trigger", string(cmd.Trigger)),
	)
	result := &ApplyScoringResult{}

	rules, err := h.rules.ListActive(ctx, cmd.Assignment.TeacherID, ruleTypes(cmd.Trigger)...)
	if err != nil {
		log.Error("failed to load scoring rules", logger.Err(err))
		return result, nil
	}

	var outcome scoring.Outcome
	if cmd.Trigger == scoring.TriggerSubmission {
		outcome = scoring.OnSubmission(rules, sub, cmd.Assignment)
	} else {
		outcome = scoring.OnGrading(rules, sub, cmd.Assignment)
	}
	if outcome.Total == 0 {
		return result, nil
	}

	balance, err := h.ledger.ApplyDelta(ctx, profile.Delta{
		UserID: sub.StudentID,
		Field:  profile.FieldCoins,
		Amount: outcome.Total,
		Reason: "scoring." + string(cmd.Trigger),
		Ref:    sub.ID,
	})
	if err != nil {
		log.Error("failed to credit scoring bonus", logger.Coins(outcome.Total), logger.Err(err))
		return result, nil
	}

	result.Points = outcome.Total
	result.RuleIDs = outcome.Triggered
	result.NewBalance = balance

	duplicate, err := h.audit.Record(ctx, scoring.AuditEntry{
		ID:           uuid.NewString(),
		UserID:       sub.StudentID,
		SubmissionID: sub.ID,
		Trigger:      cmd.Trigger,
		RuleIDs:      outcome.Triggered,
		Total:        outcome.Total,
		Fingerprint:  scoring.Fingerprint(cmd.Trigger, sub),
		AppliedAt:    h.clock(),
	})
	switch {
	case err != nil:
		log.Error("failed to journal scoring bonus", logger.Err(err))
	case duplicate:
		result.Duplicate = true
		log.Warn("scoring bonus applied again for the same event", logger.Coins(outcome.Total))
	}

	event := shared.NewScoringBonusAppliedEvent(sub.StudentID, sub.ID, string(cmd.Trigger), outcome.Triggered, outcome.Total)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	if err := h.eventPublisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish scoring event", logger.Err(err))
	}

	log.Info("scoring bonus applied",
		logger.Coins(outcome.Total),
		logger.Strings("rules", outcome.Triggered),
		logger.Int64("balance", balance),
	)
	return result, nil
}

// ApplyOnSubmission applies early-submission rules and returns the credited points.
func (h *ApplyScoringHandler) ApplyOnSubmission(ctx context.Context, sub coursework.Submission, asg coursework.Assignment) int64 {
	return h.apply(ctx, scoring.TriggerSubmission, sub, asg)
}

// ApplyOnGrading applies score-threshold and perfect-score rules and returns the credited points.
func (h *ApplyScoringHandler) ApplyOnGrading(ctx context.Context, sub coursework.Submission, asg coursework.Assignment) int64 {
	return h.apply(ctx, scoring.TriggerGrading, sub, asg)
}

func (h *ApplyScoringHandler) apply(ctx context.Context, trigger scoring.Trigger, sub coursework.Submission, asg coursework.Assignment) int64 {
	start := time.Now()
	res, err := h.Handle(ctx, ApplyScoringCommand{Trigger: trigger, Submission: sub, Assignment: asg})
	if err != nil {
		h.log.Warn("scoring run rejected", logger.SubmissionID(sub.ID), logger.Err(err))
		return 0
	}
	h.log.Debug("scoring run finished", logger.SubmissionID(sub.ID), logger.Latency(time.Since(start)))
	return res.Points
}
