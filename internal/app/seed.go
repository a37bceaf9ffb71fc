package app

import (
	"time"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
)

// Demo identifiers seeded by SeedDemo.
const (
	DemoTeacherID    = "teacher-demo"
	DemoPathID       = "path-fractions"
	DemoLessonStage  = "stage-fractions-intro"
	DemoQuizStage    = "stage-fractions-quiz"
	DemoAssignmentID = "asg-fractions-hw"
)

// DemoStudents are the profiles seeded by SeedDemo.
var DemoStudents = []string{"student-ada", "student-bo", "student-cy"}

// SeedDemo fills an in-memory database with a small class, one learning path
// and the demo teacher's scoring rules.
func SeedDemo(db *memory.DB, now time.Time) {
	for _, id := range DemoStudents {
		db.PutProfile(profile.PublicProfile{UserID: id, Grade: 5, ClassID: "5A", UpdatedAt: now})
	}

	db.PutPath(
		path.LearningPath{
			ID:          DemoPathID,
			Title:       "Fractions from scratch",
			Grade:       5,
			Subject:     "math",
			Difficulty:  path.DifficultyEasy,
			CoinsReward: 50,
			IsActive:    true,
		},
		path.Stage{
			ID:          DemoLessonStage,
			Order:       1,
			Title:       "What is a fraction",
			Type:        path.StageLesson,
			XPReward:    20,
			CoinsReward: 5,
		},
		path.Stage{
			ID:           DemoQuizStage,
			Order:        2,
			Title:        "Fractions check",
			Type:         path.StageQuiz,
			XPReward:     40,
			CoinsReward:  10,
			PassingScore: 70,
			Questions: []path.Question{
				{ID: "q1", Prompt: "1/2 + 1/4 = ?", Options: []string{"3/4", "2/6", "1/8"}, Answer: "3/4"},
				{ID: "q2", Prompt: "Which is larger: 2/3 or 3/5?", Options: []string{"2/3", "3/5"}, Answer: "2/3"},
			},
		},
	)

	db.PutAssignment(coursework.Assignment{
		ID:          DemoAssignmentID,
		Subject:     "math",
		MaxScore:    20,
		DueDate:     now.Add(72 * time.Hour),
		Grade:       5,
		CoinsReward: 10,
		TeacherID:   DemoTeacherID,
	})

	db.PutRule(scoring.Rule{ID: "rule-early", TeacherID: DemoTeacherID, Type: scoring.RuleEarlySubmission, Value: 24, Points: 5, IsActive: true})
	db.PutRule(scoring.Rule{ID: "rule-80", TeacherID: DemoTeacherID, Type: scoring.RuleScoreThreshold, Value: 80, Points: 10, IsActive: true})
	db.PutRule(scoring.Rule{ID: "rule-perfect", TeacherID: DemoTeacherID, Type: scoring.RulePerfectScore, Points: 20, IsActive: true})
}
