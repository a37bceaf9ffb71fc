// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE BADGES COMMAND
// Awards achievement badges. Incremental runs react to one submission,
// retroactive runs rescan the whole history (backfill).
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateBadgesCommand contains the data for one evaluation run.
type EvaluateBadgesCommand struct {
	// UserID is the student being evaluated.
	UserID string

	// Mode selects incremental or retroactive evaluation.
	Mode badge.Mode

	// Trigger is the submission that caused an incremental run. Optional.
	// It is merged into the snapshot even if the store does not return it yet.
	Trigger *coursework.Submission

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EvaluateBadgesCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return fmt.Errorf("evaluate_badges: %w", err)
	}
	switch c.Mode {
	case badge.ModeIncremental, badge.ModeRetroactive:
	default:
		return fmt.Errorf("evaluate_badges: unknown mode: %q", c.Mode)
	}
	if c.Trigger != nil && c.Trigger.StudentID != "" && c.Trigger.StudentID != c.UserID {
		return errors.New("evaluate_badges: trigger submission belongs to another student")
	}
	return nil
}

// EvaluateBadgesResult contains the outcome of a run.
type EvaluateBadgesResult struct {
	UserID string
	Mode   badge.Mode

	// Awarded lists badges persisted by this run in catalog order.
	// Empty when nothing was earned or the run failed.
	Awarded []badge.Badge

	EvaluatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateBadgesConfig contains configuration for the handler.
type EvaluateBadgesConfig struct {
	// Catalog is the ordered list of badge definitions.
	Catalog badge.Catalog

	// Location is the school timezone used for streak days.
	Location *time.Location

	// Clock supplies "now".
	Clock timeutil.Clock
}

// DefaultEvaluateBadgesConfig returns the default configuration.
func DefaultEvaluateBadgesConfig() EvaluateBadgesConfig {
	return EvaluateBadgesConfig{
		Catalog:  badge.DefaultCatalog(),
		Location: timeutil.DefaultSchoolTZ,
		Clock:    timeutil.SystemClock,
	}
}

// EvaluateBadgesHandler handles the EvaluateBadgesCommand.
type EvaluateBadgesHandler struct {
	submissions    coursework.SubmissionRepository
	assignments    coursework.AssignmentRepository
	profiles       profile.Repository
	badges         badge.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	config         EvaluateBadgesConfig
	newID          badge.IDFunc
}

// NewEvaluateBadgesHandler creates a new EvaluateBadgesHandler.
func NewEvaluateBadgesHandler(
	submissions coursework.SubmissionRepository,
	assignments coursework.AssignmentRepository,
	profiles profile.Repository,
	badges badge.Repository,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config EvaluateBadgesConfig,
) *EvaluateBadgesHandler {
	if config.Catalog == nil {
		config.Catalog = badge.DefaultCatalog()
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &EvaluateBadgesHandler{
		submissions:    submissions,
		assignments:    assignments,
		profiles:       profiles,
		badges:         badges,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("badge_engine")),
		config:         config,
		newID:          uuid.NewString,
	}
}

// Handle executes the command. Only an invalid command returns an error;
// storage failures are logged and yield an empty award list.
func (h *EvaluateBadgesHandler) Handle(ctx context.Context, cmd EvaluateBadgesCommand) (*EvaluateBadgesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	now := h.config.Clock()
	result := &EvaluateBadgesResult{
		UserID:      cmd.UserID,
		Mode:        cmd.Mode,
		Awarded:     []badge.Badge{},
		EvaluatedAt: now,
	}
	log := h.log.With(logger.UserID(cmd.UserID), logger.String("mode", string(cmd.Mode)))

	snap, existing, err := h.loadSnapshot(ctx, cmd.UserID, now)
	if err != nil {
		log.Error("failed to load badge snapshot", logger.Err(err))
		return result, nil
	}
	if cmd.Trigger != nil {
		trigger := *cmd.Trigger
		trigger.StudentID = cmd.UserID
		snap = snap.WithSubmission(trigger)
		if _, ok := snap.Assignments[trigger.AssignmentID]; !ok && trigger.AssignmentID != "" {
			if asg, err := h.assignments.GetByID(ctx, trigger.AssignmentID); err == nil {
				snap.Assignments[asg.ID] = *asg
			} else if !shared.IsNotFound(err) {
				log.Error("failed to load trigger assignment", logger.Err(err))
				return result, nil
			}
		}
	}

	ledger := badge.NewRunLedger(existing)
	candidates := badge.Evaluate(h.config.Catalog, snap, cmd.Mode, ledger, h.newID)
	if len(candidates) == 0 {
		log.Debug("no new badges", logger.Latency(time.Since(start)))
		return result, nil
	}

	// Persist one by one so the unique index arbitrates concurrent runs.
	awarded := make([]badge.Badge, 0, len(candidates))
	for _, b := range candidates {
		created, err := h.badges.Create(ctx, b)
		if err != nil {
			log.Error("failed to persist badge",
				logger.BadgeType(string(b.Type)),
				logger.String("tier", string(b.Tier)),
				logger.Err(err),
			)
			return result, nil
		}
		if !created {
			log.Debug("badge already held", logger.BadgeType(string(b.Type)))
			continue
		}
		awarded = append(awarded, b)
	}

	for _, b := range awarded {
		event := shared.NewBadgeAwardedEvent(b.UserID, string(b.Type), string(b.Tier))
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		if err := h.eventPublisher.Publish(ctx, event); err != nil {
			log.Warn("failed to publish badge event", logger.BadgeType(string(b.Type)), logger.Err(err))
		}
	}

	result.Awarded = awarded
	log.Info("badges awarded",
		logger.Int("count", len(awarded)),
		logger.Latency(time.Since(start)),
	)
	return result, nil
}

// EvaluateIncremental is a shortcut for an incremental run triggered by sub.
func (h *EvaluateBadgesHandler) EvaluateIncremental(ctx context.Context, userID string, sub *coursework.Submission) []badge.Badge {
	res, err := h.Handle(ctx, EvaluateBadgesCommand{UserID: userID, Mode: badge.ModeIncremental, Trigger: sub})
	if err != nil {
		h.log.Warn("incremental badge run rejected", logger.UserID(userID), logger.Err(err))
		return []badge.Badge{}
	}
	return res.Awarded
}

// EvaluateRetroactive is a shortcut for a full-history run.
func (h *EvaluateBadgesHandler) EvaluateRetroactive(ctx context.Context, userID string) []badge.Badge {
	res, err := h.Handle(ctx, EvaluateBadgesCommand{UserID: userID, Mode: badge.ModeRetroactive})
	if err != nil {
		h.log.Warn("retroactive badge run rejected", logger.UserID(userID), logger.Err(err))
		return []badge.Badge{}
	}
	return res.Awarded
}

// loadSnapshot fetches submissions, profile and held badges concurrently,
// then the assignments referenced by the submissions.
func (h *EvaluateBadgesHandler) loadSnapshot(ctx context.Context, userID string, now time.Time) (badge.Snapshot, []badge.Badge, error) {
	var (
		subs     []coursework.Submission
		prof     *profile.PublicProfile
		existing []badge.Badge
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subs, err = h.submissions.ListByStudent(gctx, userID)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		p, err := h.profiles.GetByUserID(gctx, userID)
		if err != nil {
			if shared.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("get profile: %w", err)
		}
		prof = p
		return nil
	})
	g.Go(func() error {
		var err error
		existing, err = h.badges.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("list badges: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return badge.Snapshot{}, nil, err
	}

	assignments := make(map[string]coursework.Assignment)
	if ids := coursework.AssignmentIDs(subs); len(ids) > 0 {
		found, err := h.assignments.GetByIDs(ctx, ids)
		if err != nil {
			return badge.Snapshot{}, nil, fmt.Errorf("get assignments: %w", err)
		}
		for id, a := range found {
			assignments[id] = a
		}
	}

	snap := badge.Snapshot{
		UserID:      userID,
		Submissions: subs,
		Assignments: assignments,
		Now:         now,
		Location:    h.config.Location,
	}
	if prof != nil {
		snap.Coins = prof.Coins
		snap.Level = prof.Level
		snap.Grade = prof.Grade
	}
	return snap, existing, nil
}
