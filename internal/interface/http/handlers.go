package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is the error envelope of every non-2xx response.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, fields ...string) {
	c.AbortWithStatusJSON(status, gin.H{"error": APIError{Code: code, Message: message, Fields: fields}})
}

// respondDomainError maps domain error kinds to HTTP statuses.
func respondDomainError(c *gin.Context, err error) {
	_ = c.Error(err)

	var de *shared.DomainError
	msg := err.Error()
	if errors.As(err, &de) {
		msg = de.Message
	}

	switch {
	case shared.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", msg)
	case shared.IsValidation(err):
		respondError(c, http.StatusBadRequest, "invalid_request", msg)
	case shared.IsStateConflict(err), shared.IsAlreadyExists(err):
		respondError(c, http.StatusConflict, "conflict", msg)
	case shared.IsRetryable(err):
		respondError(c, http.StatusServiceUnavailable, "unavailable", "store temporarily unavailable")
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", logger.Err(err))
		respondError(c, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// bindJSON decodes the body and validates it. It writes the 400 itself.
func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return s.check(c, dst)
}

// check runs struct validation and reports failing fields.
func (s *Server) check(c *gin.Context, v interface{}) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s:%s", fe.Namespace(), fe.Tag()))
		}
		respondError(c, http.StatusBadRequest, "validation_failed", "request validation failed", fields...)
		return false
	}
	respondError(c, http.StatusBadRequest, "validation_failed", err.Error())
	return false
}

// userID reads and validates the :user_id path parameter.
func userID(c *gin.Context) (string, bool) {
	uid, err := shared.NewUserID(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_user_id", "invalid user id")
		return "", false
	}
	return string(uid), true
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT INGESTION
// ══════════════════════════════════════════════════════════════════════════════

// handleIngestEvent stores the carried copies and publishes the user action.
// POST /v1/events
func (s *Server) handleIngestEvent(c *gin.Context) {
	var env EventEnvelope
	if !s.bindJSON(c, &env) {
		return
	}
	uid, err := shared.NewUserID(env.UserID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_user_id", "invalid user id")
		return
	}
	ctx := c.Request.Context()
	now := s.deps.Clock()

	var event shared.Event
	switch env.Type {
	case EventTypeUserLoggedIn:
		e := shared.NewUserLoggedInEvent(string(uid))
		e.BaseEvent = e.BaseEvent.WithCorrelationID(env.CorrelationID)
		event = e

	case EventTypeSubmissionCreated, EventTypeSubmissionGraded:
		graded := env.Type == EventTypeSubmissionGraded
		if graded && env.Submission.Score == nil {
			respondError(c, http.StatusBadRequest, "validation_failed", "graded submission needs a score", "EventEnvelope.Submission.Score:required")
			return
		}
		sub := env.Submission.toSubmission(string(uid), graded, now)
		if err := s.record(c, sub, env.Assignment); err != nil {
			respondDomainError(c, err)
			return
		}
		if graded {
			e := shared.NewSubmissionGradedEvent(string(uid), sub.ID, sub.AssignmentID, *sub.Score)
			e.BaseEvent = e.BaseEvent.WithCorrelationID(env.CorrelationID)
			event = e
		} else {
			e := shared.NewSubmissionCreatedEvent(string(uid), sub.ID, sub.AssignmentID)
			e.BaseEvent = e.BaseEvent.WithCorrelationID(env.CorrelationID)
			event = e
		}
	}

	if err := s.deps.Bus.Publish(ctx, event); err != nil {
		logger.FromContext(ctx).Error("event processing failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(string(uid)),
			logger.Err(err),
		)
		respondError(c, http.StatusInternalServerError, "event_failed", "event accepted but processing failed")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_type":  event.EventType(),
		"user_id":     event.AggregateID(),
		"occurred_at": event.OccurredAt(),
	})
}

func (s *Server) record(c *gin.Context, sub coursework.Submission, asg *AssignmentDTO) error {
	if s.deps.Recorder == nil {
		return nil
	}
	ctx := c.Request.Context()
	if asg != nil {
		a := asg.toAssignment()
		if a.ID != sub.AssignmentID {
			return shared.NewDomainError("coursework", "Ingest", shared.ErrInvalidInput, "assignment id does not match the submission")
		}
		if err := s.deps.Recorder.SaveAssignment(ctx, a); err != nil {
			return fmt.Errorf("save assignment: %w", err)
		}
	}
	if err := s.deps.Recorder.SaveSubmission(ctx, sub); err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

// GET /v1/users/:user_id/level
func (s *Server) handleLevel(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	q := query.GetLevelProgressQuery{
		UserID:    uid,
		SkipCache: strings.EqualFold(c.Query("fresh"), "true"),
	}
	dto, err := s.deps.Level.Handle(c.Request.Context(), q)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// GET /v1/leaderboard?limit=N
func (s *Server) handleLeaderboard(c *gin.Context) {
	if s.deps.Leaderboard == nil {
		respondError(c, http.StatusServiceUnavailable, "unavailable", "leaderboard is not configured")
		return
	}
	var p LeaderboardParams
	if err := c.ShouldBindQuery(&p); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_query", "limit must be an integer")
		return
	}
	if !s.check(c, p) {
		return
	}
	entries, err := s.deps.Leaderboard.Handle(c.Request.Context(), query.GetLeaderboardQuery{Limit: p.Limit})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// POST /v1/users/:user_id/badges/backfill
func (s *Server) handleBackfill(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	awarded := s.deps.Badges.EvaluateRetroactive(c.Request.Context(), uid)
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "awarded": awarded})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATHS
// ══════════════════════════════════════════════════════════════════════════════

// POST /v1/users/:user_id/paths/:path_id/enter
func (s *Server) handleEnterPath(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	view, err := s.deps.Paths.EnterPath(c.Request.Context(), uid, c.Param("path_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPathViewDTO(view))
}

// POST /v1/users/:user_id/stages/:stage_id/start
func (s *Server) handleStartStage(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	row, err := s.deps.Paths.StartStage(c.Request.Context(), uid, c.Param("stage_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// POST /v1/users/:user_id/stages/:stage_id/complete
func (s *Server) handleCompleteStage(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	outcome, err := s.deps.Paths.CompleteStage(c.Request.Context(), uid, c.Param("stage_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStageOutcomeDTO(outcome))
}

// POST /v1/users/:user_id/stages/:stage_id/quiz
func (s *Server) handleSubmitQuiz(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req QuizRequest
	if !s.bindJSON(c, &req) {
		return
	}
	outcome, err := s.deps.Paths.SubmitQuiz(c.Request.Context(), uid, c.Param("stage_id"), req.Answers)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStageOutcomeDTO(outcome))
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// GET /v1/users/:user_id/daily
func (s *Server) handleDailyBoard(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	board, err := s.deps.Daily.Board(c.Request.Context(), uid)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// POST /v1/users/:user_id/daily/:task_id/claim
func (s *Server) handleClaim(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	res, err := s.deps.Daily.Claim(c.Request.Context(), uid, challenge.TaskID(c.Param("task_id")))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClaimDTO{
		TaskID:     string(res.Task.ID),
		Day:        res.Day,
		Reward:     res.Reward,
		NewBalance: res.NewBalance,
	})
}
