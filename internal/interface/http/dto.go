package http

import (
	"time"

	"github.com/k9quest/progression-hub/internal/application/command"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// Ingested event types.
const (
	EventTypeSubmissionCreated = "submission.created"
	EventTypeSubmissionGraded  = "submission.graded"
	EventTypeUserLoggedIn      = "user.logged_in"
)

// EventEnvelope is the body of POST /v1/events.
type EventEnvelope struct {
	Type          string         `json:"type" validate:"required,oneof=submission.created submission.graded user.logged_in"`
	UserID        string         `json:"user_id" validate:"required,max=128"`
	CorrelationID string         `json:"correlation_id" validate:"omitempty,max=128"`
	Submission    *SubmissionDTO `json:"submission" validate:"required_unless=Type user.logged_in"`
	Assignment    *AssignmentDTO `json:"assignment"`
}

// SubmissionDTO is a submission copy carried by an event.
type SubmissionDTO struct {
	ID           string    `json:"id" validate:"required,max=128"`
	AssignmentID string    `json:"assignment_id" validate:"required,max=128"`
	Score        *float64  `json:"score" validate:"omitempty,gte=0"`
	Late         bool      `json:"late"`
	SubmittedAt  time.Time `json:"submitted_at"`
	GradedAt     time.Time `json:"graded_at"`
}

// AssignmentDTO is an assignment copy carried by an event.
type AssignmentDTO struct {
	ID          string    `json:"id" validate:"required,max=128"`
	Subject     string    `json:"subject" validate:"required,max=64"`
	MaxScore    float64   `json:"max_score" validate:"gte=0"`
	DueDate     time.Time `json:"due_date"`
	Grade       int       `json:"grade" validate:"gte=0,lte=9"`
	CoinsReward int       `json:"coins_reward" validate:"gte=0"`
	TeacherID   string    `json:"teacher_id" validate:"max=128"`
}

// toSubmission builds the domain copy for userID. now fills missing timestamps.
func (d SubmissionDTO) toSubmission(userID string, graded bool, now time.Time) coursework.Submission {
	s := coursework.Submission{
		ID:           d.ID,
		StudentID:    userID,
		AssignmentID: d.AssignmentID,
		Status:       coursework.StatusPending,
		SubmittedAt:  d.SubmittedAt,
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = now
	}
	if d.Late {
		s.Status = coursework.StatusLate
	}
	if graded && d.Score != nil {
		score := *d.Score
		s.Score = &score
		s.Status = coursework.StatusGraded
		s.GradedAt = d.GradedAt
		if s.GradedAt.IsZero() {
			s.GradedAt = now
		}
	}
	return s
}

func (d AssignmentDTO) toAssignment() coursework.Assignment {
	return coursework.Assignment{
		ID:          d.ID,
		Subject:     shared.Subject(d.Subject).Normalize(),
		MaxScore:    d.MaxScore,
		DueDate:     d.DueDate,
		Grade:       shared.Grade(d.Grade),
		CoinsReward: d.CoinsReward,
		TeacherID:   d.TeacherID,
	}
}

// QuizRequest is the body of POST .../stages/:stage_id/quiz.
type QuizRequest struct {
	// Answers maps question id to answer.
	Answers map[string]string `json:"answers" validate:"required,max=200,dive,keys,max=128,endkeys,max=1024"`
}

// LeaderboardParams are the query parameters of GET /v1/leaderboard.
type LeaderboardParams struct {
	Limit int `form:"limit" validate:"gte=0,lte=100"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// QuestionDTO is a quiz question without its answer.
type QuestionDTO struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// StageDTO is a stage as shown to a student.
type StageDTO struct {
	ID               string         `json:"id"`
	Order            int            `json:"order"`
	Title            string         `json:"title"`
	Type             path.StageType `json:"stage_type"`
	XPReward         int            `json:"xp_reward"`
	CoinsReward      int            `json:"coins_reward"`
	PassingScore     int            `json:"passing_score,omitempty"`
	TimeLimitSeconds int64          `json:"time_limit_seconds,omitempty"`
	Questions        []QuestionDTO  `json:"questions,omitempty"`
	Status           path.Status    `json:"status"`
	Score            int            `json:"score"`
	Attempts         int            `json:"attempts"`
}

// PathViewDTO is the response of POST .../paths/:path_id/enter.
type PathViewDTO struct {
	Path   path.LearningPath `json:"path"`
	Stages []StageDTO        `json:"stages"`
}

// StageOutcomeDTO is the response of complete and quiz.
type StageOutcomeDTO struct {
	Progress      *path.Progress   `json:"progress"`
	Quiz          *path.QuizResult `json:"quiz,omitempty"`
	NextStageID   string           `json:"next_stage_id,omitempty"`
	PathCompleted bool             `json:"path_completed"`
	CoinsCredited int64            `json:"coins_credited"`
	NewBalance    int64            `json:"new_balance"`
}

// ClaimDTO is the response of a daily claim.
type ClaimDTO struct {
	TaskID     string `json:"task_id"`
	Day        string `json:"day"`
	Reward     int64  `json:"reward"`
	NewBalance int64  `json:"new_balance"`
}

func newPathViewDTO(v *command.PathView) PathViewDTO {
	out := PathViewDTO{Path: v.Path, Stages: make([]StageDTO, 0, len(v.Stages))}
	for _, sv := range v.Stages {
		st := sv.Stage
		dto := StageDTO{
			ID:               st.ID,
			Order:            st.Order,
			Title:            st.Title,
			Type:             st.Type,
			XPReward:         st.XPReward,
			CoinsReward:      st.CoinsReward,
			PassingScore:     st.PassingScore,
			TimeLimitSeconds: int64(st.TimeLimit / time.Second),
			Status:           sv.Status,
		}
		for _, q := range st.Questions {
			dto.Questions = append(dto.Questions, QuestionDTO{ID: q.ID, Prompt: q.Prompt, Options: q.Options})
		}
		if sv.Progress != nil {
			dto.Score = sv.Progress.Score
			dto.Attempts = sv.Progress.Attempts
		}
		out.Stages = append(out.Stages, dto)
	}
	return out
}

func newStageOutcomeDTO(o *command.StageOutcome) StageOutcomeDTO {
	return StageOutcomeDTO{
		Progress:      o.Progress,
		Quiz:          o.Quiz,
		NextStageID:   o.NextStageID,
		PathCompleted: o.PathCompleted,
		CoinsCredited: o.CoinsCredited,
		NewBalance:    o.NewBalance,
	}
}
