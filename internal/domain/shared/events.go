package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. User actions arrive as coursework/profile events,
// engines answer with badge/path/scoring/challenge events.
const (
	// Coursework events (produced outside the engine)
	EventSubmissionCreated EventType = "coursework.submission_created"
	EventSubmissionGraded  EventType = "coursework.submission_graded"

	// Profile events
	EventUserLoggedIn  EventType = "profile.logged_in"
	EventCoinsCredited EventType = "profile.coins_credited"

	// Engine events
	EventBadgeAwarded        EventType = "badge.awarded"
	EventScoringBonusApplied EventType = "scoring.bonus_applied"
	EventStageCompleted      EventType = "path.stage_completed"
	EventStageFailed         EventType = "path.stage_failed"
	EventDailyTaskCompleted  EventType = "challenge.task_completed"
	EventDailyRewardClaimed  EventType = "challenge.reward_claimed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Coursework Events
// ═══════════════════════════════════════════════════════════════════════════

// SubmissionCreatedEvent is emitted when a student hands in an assignment.
type SubmissionCreatedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	SubmissionID string `json:"submission_id"`
	AssignmentID string `json:"assignment_id"`
}

// Payload implements Event interface.
func (e SubmissionCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"submission_id": e.SubmissionID,
		"assignment_id": e.AssignmentID,
	}
}

// NewSubmissionCreatedEvent creates a new SubmissionCreatedEvent.
func NewSubmissionCreatedEvent(userID, submissionID, assignmentID string) SubmissionCreatedEvent {
	return SubmissionCreatedEvent{
		BaseEvent:    NewBaseEvent(EventSubmissionCreated, userID),
		UserID:       userID,
		SubmissionID: submissionID,
		AssignmentID: assignmentID,
	}
}

// SubmissionGradedEvent is emitted when a teacher grades a submission.
type SubmissionGradedEvent struct {
	BaseEvent
	UserID       string  `json:"user_id"`
	SubmissionID string  `json:"submission_id"`
	AssignmentID string  `json:"assignment_id"`
	Score        float64 `json:"score"`
}

// Payload implements Event interface.
func (e SubmissionGradedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"submission_id": e.SubmissionID,
		"assignment_id": e.AssignmentID,
		"score":         e.Score,
	}
}

// NewSubmissionGradedEvent creates a new SubmissionGradedEvent.
func NewSubmissionGradedEvent(userID, submissionID, assignmentID string, score float64) SubmissionGradedEvent {
	return SubmissionGradedEvent{
		BaseEvent:    NewBaseEvent(EventSubmissionGraded, userID),
		UserID:       userID,
		SubmissionID: submissionID,
		AssignmentID: assignmentID,
		Score:        score,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// UserLoggedInEvent is emitted on every successful sign-in.
type UserLoggedInEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

// Payload implements Event interface.
func (e UserLoggedInEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"user_id": e.UserID}
}

// NewUserLoggedInEvent creates a new UserLoggedInEvent.
func NewUserLoggedInEvent(userID string) UserLoggedInEvent {
	return UserLoggedInEvent{
		BaseEvent: NewBaseEvent(EventUserLoggedIn, userID),
		UserID:    userID,
	}
}

// CoinsCreditedEvent is emitted after every successful coin ledger mutation.
type CoinsCreditedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
	Reason     string `json:"reason"`
}

// Payload implements Event interface.
func (e CoinsCreditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"amount":      e.Amount,
		"new_balance": e.NewBalance,
		"reason":      e.Reason,
	}
}

// NewCoinsCreditedEvent creates a new CoinsCreditedEvent.
func NewCoinsCreditedEvent(userID string, amount, newBalance int64, reason string) CoinsCreditedEvent {
	return CoinsCreditedEvent{
		BaseEvent:  NewBaseEvent(EventCoinsCredited, userID),
		UserID:     userID,
		Amount:     amount,
		NewBalance: newBalance,
		Reason:     reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Engine Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeAwardedEvent is emitted once per persisted badge.
type BadgeAwardedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	BadgeType string `json:"badge_type"`
	Tier      string `json:"tier"`
}

// Payload implements Event interface.
func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"badge_type": e.BadgeType,
		"tier":       e.Tier,
	}
}

// NewBadgeAwardedEvent creates a new BadgeAwardedEvent.
func NewBadgeAwardedEvent(userID, badgeType, tier string) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BaseEvent: NewBaseEvent(EventBadgeAwarded, userID),
		UserID:    userID,
		BadgeType: badgeType,
		Tier:      tier,
	}
}

// ScoringBonusAppliedEvent is emitted when teacher bonus rules credit coins.
type ScoringBonusAppliedEvent struct {
	BaseEvent
	UserID       string   `json:"user_id"`
	SubmissionID string   `json:"submission_id"`
	Trigger      string   `json:"trigger"`
	RuleIDs      []string `json:"rule_ids"`
	Points       int64    `json:"points"`
}

// Payload implements Event interface.
func (e ScoringBonusAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"submission_id": e.SubmissionID,
		"trigger":       e.Trigger,
		"rule_ids":      e.RuleIDs,
		"points":        e.Points,
	}
}

// NewScoringBonusAppliedEvent creates a new ScoringBonusAppliedEvent.
func NewScoringBonusAppliedEvent(userID, submissionID, trigger string, ruleIDs []string, points int64) ScoringBonusAppliedEvent {
	return ScoringBonusAppliedEvent{
		BaseEvent:    NewBaseEvent(EventScoringBonusApplied, userID),
		UserID:       userID,
		SubmissionID: submissionID,
		Trigger:      trigger,
		RuleIDs:      ruleIDs,
		Points:       points,
	}
}

// StageFinishedEvent is emitted when a path stage reaches completed or failed.
type StageFinishedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	PathID      string `json:"path_id"`
	StageID     string `json:"stage_id"`
	StageType   string `json:"stage_type"`
	Score       int    `json:"score"`
	XPEarned    int    `json:"xp_earned"`
	CoinsEarned int    `json:"coins_earned"`
}

// Payload implements Event interface.
func (e StageFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"path_id":      e.PathID,
		"stage_id":     e.StageID,
		"stage_type":   e.StageType,
		"score":        e.Score,
		"xp_earned":    e.XPEarned,
		"coins_earned": e.CoinsEarned,
	}
}

// NewStageFinishedEvent creates a completed (passed=true) or failed stage event.
func NewStageFinishedEvent(passed bool, userID, pathID, stageID, stageType string, score, xp, coins int) StageFinishedEvent {
	eventType := EventStageCompleted
	if !passed {
		eventType = EventStageFailed
	}
	return StageFinishedEvent{
		BaseEvent:   NewBaseEvent(eventType, userID),
		UserID:      userID,
		PathID:      pathID,
		StageID:     stageID,
		StageType:   stageType,
		Score:       score,
		XPEarned:    xp,
		CoinsEarned: coins,
	}
}

// DailyTaskEvent is emitted when a daily task is completed or its reward claimed.
type DailyTaskEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Day    string `json:"day"`
	TaskID string `json:"task_id"`
	Reward int    `json:"reward,omitempty"`
}

// Payload implements Event interface.
func (e DailyTaskEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"day":     e.Day,
		"task_id": e.TaskID,
		"reward":  e.Reward,
	}
}

// NewDailyTaskCompletedEvent creates a new task-completed event.
func NewDailyTaskCompletedEvent(userID, day, taskID string) DailyTaskEvent {
	return DailyTaskEvent{
		BaseEvent: NewBaseEvent(EventDailyTaskCompleted, userID),
		UserID:    userID,
		Day:       day,
		TaskID:    taskID,
	}
}

// NewDailyRewardClaimedEvent creates a new reward-claimed event.
func NewDailyRewardClaimedEvent(userID, day, taskID string, reward int) DailyTaskEvent {
	return DailyTaskEvent{
		BaseEvent: NewBaseEvent(EventDailyRewardClaimed, userID),
		UserID:    userID,
		Day:       day,
		TaskID:    taskID,
		Reward:    reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event. Useful where no bus is wired.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
