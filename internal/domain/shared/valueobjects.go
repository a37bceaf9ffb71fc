// Package shared contains common domain types, errors, events, and value objects
// that are used across all progression domain packages.
package shared

import (
	"math"
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxIDLength bounds identifiers accepted from the entity store and the API.
const MaxIDLength = 64

// UserID identifies a student profile. The format is owned by the auth
// collaborator, so only emptiness and length are checked here.
type UserID string

// IsValid checks if the user ID is usable.
func (u UserID) IsValid() bool {
	n := utf8.RuneCountInString(string(u))
	return n > 0 && n <= MaxIDLength
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID")
	}
	return uid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Grade Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Grade is a school year from kindergarten (0) to grade 9.
type Grade int

const (
	GradeKindergarten Grade = 0
	MaxGrade          Grade = 9
)

// IsValid checks if the grade is within K-9.
func (g Grade) IsValid() bool {
	return g >= GradeKindergarten && g <= MaxGrade
}

// ═══════════════════════════════════════════════════════════════════════════
// Subject Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Subject names a school subject. Comparisons are case-insensitive.
type Subject string

// Normalize returns the canonical (trimmed, lowercase) form.
func (s Subject) Normalize() Subject {
	return Subject(strings.ToLower(strings.TrimSpace(string(s))))
}

// Equal compares two subjects case-insensitively.
func (s Subject) Equal(other Subject) bool {
	return s.Normalize() == other.Normalize()
}

// String returns the string representation.
func (s Subject) String() string {
	return string(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// Score helpers
// ═══════════════════════════════════════════════════════════════════════════

// IsFiniteNonNegative reports whether v can take part in score arithmetic.
func IsFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Percentage returns score/max*100. ok is false when the pair cannot be normalised.
func Percentage(score, max float64) (pct float64, ok bool) {
	if !IsFiniteNonNegative(score) || !IsFiniteNonNegative(max) || max == 0 {
		return 0, false
	}
	return score / max * 100, true
}
