// Package shared содержит общие для доменов прогрессии ошибки, события и
// value objects. Пакет не зависит от внешних библиотек.
package shared

import (
	"errors"
	"fmt"
)

// Виды ошибок. Каждая DomainError ссылается на один из них через Kind,
// а HTTP-слой выбирает статус по виду, а не по конкретной ошибке.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNegativeValue = errors.New("value cannot be negative")

	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError несёт контекст ошибки: домен, операцию и вид.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap отдаёт причину, а без неё вид ошибки.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is сопоставляет и вид, и причину.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError создаёт ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WithCause возвращает копию ошибки с причиной err. Предопределённые
// ошибки пакета при этом не меняются.
func (e *DomainError) WithCause(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// Progression domain errors
var (
	ErrProfileNotFound    = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrInsufficientFunds  = NewDomainError("profile", "ApplyDelta", ErrNegativeValue, "balance cannot go below zero")
	ErrUnsupportedField   = NewDomainError("profile", "ApplyDelta", ErrInvalidInput, "unsupported ledger field")
	ErrNonPositiveDelta   = NewDomainError("profile", "ApplyDelta", ErrInvalidInput, "delta must be positive")
	ErrAssignmentNotFound = NewDomainError("coursework", "FindAssignment", ErrNotFound, "assignment not found")
	ErrSubmissionNotFound = NewDomainError("coursework", "FindSubmission", ErrNotFound, "submission not found")
)

// Learning path errors
var (
	ErrPathNotFound       = NewDomainError("path", "Find", ErrNotFound, "learning path not found")
	ErrPathInactive       = NewDomainError("path", "Enter", ErrInvalidState, "learning path is not active")
	ErrPathHasNoStages    = NewDomainError("path", "Enter", ErrInvalidState, "learning path has no stages")
	ErrStageNotFound      = NewDomainError("path", "FindStage", ErrNotFound, "stage not found")
	ErrStageLocked        = NewDomainError("path", "Start", ErrStateTransition, "stage is locked")
	ErrStageAlreadyDone   = NewDomainError("path", "Start", ErrAlreadyProcessed, "stage already completed")
	ErrStageNotInProgress = NewDomainError("path", "Complete", ErrStateTransition, "stage is not in progress")
	ErrStageTypeMismatch  = NewDomainError("path", "Complete", ErrInvalidInput, "operation does not match stage type")
	ErrQuizHasNoQuestions = NewDomainError("path", "SubmitQuiz", ErrInvalidInput, "quiz has no questions")
	ErrProgressExists     = NewDomainError("path", "CreateProgress", ErrAlreadyExists, "progress row already exists")
	ErrProgressNotFound   = NewDomainError("path", "FindProgress", ErrNotFound, "progress row not found")
)

// Daily challenge errors
var (
	ErrChallengeNotFound  = NewDomainError("challenge", "Find", ErrNotFound, "no daily challenge for this day")
	ErrChallengeExists    = NewDomainError("challenge", "Create", ErrAlreadyExists, "daily challenge already exists")
	ErrUnknownTask        = NewDomainError("challenge", "Validate", ErrInvalidID, "unknown daily task")
	ErrTaskNotCompleted   = NewDomainError("challenge", "Claim", ErrStateTransition, "task is not completed")
	ErrTaskAlreadyClaimed = NewDomainError("challenge", "Claim", ErrAlreadyProcessed, "task reward already claimed")
	ErrTaskNoLongerValid  = NewDomainError("challenge", "Claim", ErrExpired, "task condition no longer holds")
)

// Storage errors
var (
	ErrStoreUnavailable = NewDomainError("store", "Request", ErrServiceUnavailable, "entity store is unavailable")
	ErrStoreTimeout     = NewDomainError("store", "Request", ErrTimeout, "entity store request timeout")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation: запрос некорректен сам по себе (400).
func IsValidation(err error) bool {
	return anyKind(err, ErrInvalidID, ErrInvalidInput, ErrNegativeValue)
}

// IsStateConflict: операция не допускается текущим состоянием сущности (409).
func IsStateConflict(err error) bool {
	return anyKind(err, ErrStateTransition, ErrAlreadyProcessed, ErrInvalidState, ErrExpired)
}

// IsRetryable: хранилище недоступно, повтор может пройти (503).
func IsRetryable(err error) bool {
	return anyKind(err, ErrServiceUnavailable, ErrTimeout)
}

func anyKind(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
