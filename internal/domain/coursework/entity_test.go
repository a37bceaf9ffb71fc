package coursework

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func score(v float64) *float64 { return &v }

func TestNormalized(t *testing.T) {
	a := Assignment{MaxScore: 50}

	got, ok := Normalized(Submission{Score: score(40)}, a)
	assert.True(t, ok)
	assert.InDelta(t, 16.0, got, 1e-9)

	_, ok = Normalized(Submission{}, a)
	assert.False(t, ok, "ungraded submission")

	_, ok = Normalized(Submission{Score: score(10)}, Assignment{MaxScore: 0})
	assert.False(t, ok, "zero max score")

	_, ok = Normalized(Submission{Score: score(math.NaN())}, a)
	assert.False(t, ok, "NaN score")

	_, ok = Normalized(Submission{Score: score(-1)}, a)
	assert.False(t, ok, "negative score")
}

func TestIsPerfect(t *testing.T) {
	a := Assignment{MaxScore: 10}

	assert.True(t, IsPerfect(Submission{Score: score(10)}, a))
	assert.False(t, IsPerfect(Submission{Score: score(9.5)}, a))
	assert.False(t, IsPerfect(Submission{}, a))
	assert.False(t, IsPerfect(Submission{Score: score(0)}, Assignment{MaxScore: 0}))
}

func TestIsEarly(t *testing.T) {
	due := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	a := Assignment{DueDate: due}

	assert.True(t, IsEarly(Submission{SubmittedAt: due.Add(-30 * time.Hour)}, a))
	assert.False(t, IsEarly(Submission{SubmittedAt: due.Add(-24 * time.Hour)}, a), "exactly 24h is not early")
	assert.False(t, IsEarly(Submission{SubmittedAt: due.Add(time.Hour)}, a))
	assert.False(t, IsEarly(Submission{SubmittedAt: due.Add(-48 * time.Hour)}, Assignment{}))

	hours, ok := HoursBeforeDue(Submission{SubmittedAt: due.Add(-30 * time.Hour)}, a)
	assert.True(t, ok)
	assert.InDelta(t, 30.0, hours, 1e-9)
}

func TestAssignmentIDs(t *testing.T) {
	subs := []Submission{{AssignmentID: "a1"}, {AssignmentID: "a2"}, {AssignmentID: "a1"}, {}}

	assert.Equal(t, []string{"a1", "a2"}, AssignmentIDs(subs))
}
