package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

var (
	testLoc = timeutil.DefaultSchoolTZ
	testNow = time.Date(2026, 10, 15, 11, 0, 0, 0, testLoc)
)

// recordingPublisher keeps published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	db    *memory.DB
	pub   *recordingPublisher
	logs  *observer.ObservedLogs
	log   *logger.Logger
	clock timeutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	db := memory.NewDB()
	db.PutProfile(profile.PublicProfile{UserID: "u1", Grade: 5})
	return &fixture{
		db:    db,
		pub:   &recordingPublisher{},
		logs:  logs,
		log:   logger.NewWithCore(core),
		clock: timeutil.FixedClock(testNow),
	}
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	p, err := memory.NewProfileRepository(f.db).GetByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p.Coins
}

func scorePtr(v float64) *float64 { return &v }

// graded seeds an assignment plus a graded submission for u1.
func (f *fixture) graded(id, subject string, score, max float64, submitted, due time.Time) coursework.Submission {
	asg := coursework.Assignment{ID: "a-" + id, Subject: shared.Subject(subject), MaxScore: max, DueDate: due, TeacherID: "t1"}
	sub := coursework.Submission{
		ID:           id,
		StudentID:    "u1",
		AssignmentID: asg.ID,
		Status:       coursework.StatusGraded,
		Score:        scorePtr(score),
		SubmittedAt:  submitted,
		GradedAt:     submitted.Add(time.Hour),
	}
	f.db.PutAssignment(asg)
	f.db.PutSubmission(sub)
	return sub
}
