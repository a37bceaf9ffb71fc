package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k9quest/progression-hub/internal/application/command"
	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/messaging"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

var testNow = time.Date(2026, 10, 15, 11, 0, 0, 0, timeutil.DefaultSchoolTZ)

type stack struct {
	db      *memory.DB
	repos   Repositories
	engines *Engines
	bus     *messaging.InMemoryEventBus
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := memory.NewDB()
	SeedDemo(db, testNow)

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	repos := MemoryRepositories(db)
	engines, err := Build(repos, bus, Options{
		Clock: timeutil.FixedClock(testNow),
		Board: memory.NewCoinBoard(db),
	})
	require.NoError(t, err)
	return &stack{db: db, repos: repos, engines: engines, bus: bus}
}

func (s *stack) balance(t *testing.T, userID string) int64 {
	t.Helper()
	p, err := s.repos.Profiles.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return p.Coins
}

func taskStatus(t *testing.T, board *command.DailyBoard, id challenge.TaskID) command.TaskStatus {
	t.Helper()
	for _, ts := range board.Tasks {
		if ts.Task.ID == id {
			return ts
		}
	}
	t.Fatalf("task %s not on the board", id)
	return command.TaskStatus{}
}

func TestBuild_Validation(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})

	_, err := Build(Repositories{}, bus, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submissions repository is not set")
	assert.Contains(t, err.Error(), "challenges repository is not set")

	_, err = Build(MemoryRepositories(memory.NewDB()), nil, Options{})
	assert.EqualError(t, err, "app: event bus is not set")
}

func TestBuild_LoginCompletesDailyTask(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	uid := DemoStudents[0]

	require.NoError(t, s.bus.Publish(ctx, shared.NewUserLoggedInEvent(uid)))

	board, err := s.engines.Daily.Board(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", board.Day)
	assert.True(t, taskStatus(t, board, challenge.TaskLogin).Completed)
	assert.False(t, taskStatus(t, board, challenge.TaskSubmitAssignment).Completed)

	res, err := s.engines.Daily.Claim(ctx, uid, challenge.TaskLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.NewBalance)

	_, err = s.engines.Daily.Claim(ctx, uid, challenge.TaskLogin)
	assert.Error(t, err)
	assert.Equal(t, int64(5), s.balance(t, uid))
}

func TestBuild_SubmissionFlow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	uid := DemoStudents[1]

	s.db.PutSubmission(coursework.Submission{
		ID:           "sub-1",
		StudentID:    uid,
		AssignmentID: DemoAssignmentID,
		Status:       coursework.StatusPending,
		SubmittedAt:  testNow,
	})
	require.NoError(t, s.bus.Publish(ctx, shared.NewSubmissionCreatedEvent(uid, "sub-1", DemoAssignmentID)))
	assert.Equal(t, int64(5), s.balance(t, uid), "early submission bonus")

	require.NoError(t, s.bus.Publish(ctx, shared.NewSubmissionGradedEvent(uid, "sub-1", DemoAssignmentID, 20)))
	assert.Equal(t, int64(35), s.balance(t, uid), "threshold and perfect score bonuses")

	badges, err := s.repos.Badges.ListByUser(ctx, uid)
	require.NoError(t, err)
	assert.NotEmpty(t, badges)

	board, err := s.engines.Daily.Board(ctx, uid)
	require.NoError(t, err)
	assert.True(t, taskStatus(t, board, challenge.TaskSubmitAssignment).Completed)
	assert.True(t, taskStatus(t, board, challenge.TaskHighScore).Completed)

	audit := s.db.Audit()
	assert.Len(t, audit, 2)
}

func TestBuild_PathFlow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	uid := DemoStudents[2]

	_, err := s.engines.Paths.EnterPath(ctx, uid, DemoPathID)
	require.NoError(t, err)

	_, err = s.engines.Paths.StartStage(ctx, uid, DemoLessonStage)
	require.NoError(t, err)
	lesson, err := s.engines.Paths.CompleteStage(ctx, uid, DemoLessonStage)
	require.NoError(t, err)
	assert.Equal(t, DemoQuizStage, lesson.NextStageID)

	board, err := s.engines.Daily.Board(ctx, uid)
	require.NoError(t, err)
	assert.True(t, taskStatus(t, board, challenge.TaskCompleteStage).Completed)

	_, err = s.engines.Paths.StartStage(ctx, uid, DemoQuizStage)
	require.NoError(t, err)
	quiz, err := s.engines.Paths.SubmitQuiz(ctx, uid, DemoQuizStage, map[string]string{"q1": "3/4", "q2": " 2/3 "})
	require.NoError(t, err)
	require.NotNil(t, quiz.Quiz)
	assert.Equal(t, 100, quiz.Quiz.Score)
	assert.True(t, quiz.PathCompleted)
	assert.Equal(t, int64(65), s.balance(t, uid))

	dto, err := s.engines.Level.Handle(ctx, query.GetLevelProgressQuery{UserID: uid})
	require.NoError(t, err)
	assert.Equal(t, int64(60), dto.TotalXP)
	assert.Equal(t, int64(65), dto.Coins)

	top, err := s.engines.Leaderboard.Handle(ctx, query.GetLeaderboardQuery{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, uid, top[0].UserID)
	assert.Equal(t, 1, top[0].Rank)
}

func TestBuild_DisabledEngines(t *testing.T) {
	db := memory.NewDB()
	SeedDemo(db, testNow)
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	repos := MemoryRepositories(db)
	engines, err := Build(repos, bus, Options{
		Clock:          timeutil.FixedClock(testNow),
		DisableScoring: true,
		DisableDaily:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, engines.Leaderboard, "no board configured")

	ctx := context.Background()
	uid := DemoStudents[0]
	db.PutSubmission(coursework.Submission{ID: "sub-1", StudentID: uid, AssignmentID: DemoAssignmentID, Status: coursework.StatusPending, SubmittedAt: testNow})
	require.NoError(t, bus.Publish(ctx, shared.NewSubmissionCreatedEvent(uid, "sub-1", DemoAssignmentID)))
	require.NoError(t, bus.Publish(ctx, shared.NewUserLoggedInEvent(uid)))

	p, err := repos.Profiles.GetByUserID(ctx, uid)
	require.NoError(t, err)
	assert.Zero(t, p.Coins)
	assert.Empty(t, db.Audit())

	badges, err := repos.Badges.ListByUser(ctx, uid)
	require.NoError(t, err)
	assert.NotEmpty(t, badges, "badges still react to submissions")

	board, err := engines.Daily.Board(ctx, uid)
	require.NoError(t, err)
	assert.False(t, taskStatus(t, board, challenge.TaskLogin).Completed)
}
