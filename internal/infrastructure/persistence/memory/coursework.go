package memory

import (
	"context"
	"sort"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

type submissionRepository struct {
	db *DB
}

// NewSubmissionRepository returns a coursework.SubmissionRepository backed by db.
func NewSubmissionRepository(db *DB) coursework.SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(_ context.Context, id string) (*coursework.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("submission.GetByID"); err != nil {
		return nil, err
	}
	s, ok := r.db.submissions[id]
	if !ok {
		return nil, shared.ErrSubmissionNotFound
	}
	return &s, nil
}

func (r *submissionRepository) ListByStudent(_ context.Context, studentID string) ([]coursework.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("submission.List"); err != nil {
		return nil, err
	}

	out := make([]coursework.Submission, 0)
	for _, s := range r.db.submissions {
		if s.StudentID == studentID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

type assignmentRepository struct {
	db *DB
}

// NewAssignmentRepository returns a coursework.AssignmentRepository backed by db.
func NewAssignmentRepository(db *DB) coursework.AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(_ context.Context, id string) (*coursework.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("assignment.GetByID"); err != nil {
		return nil, err
	}
	a, ok := r.db.assignments[id]
	if !ok {
		return nil, shared.ErrAssignmentNotFound
	}
	return &a, nil
}

func (r *assignmentRepository) GetByIDs(_ context.Context, ids []string) (map[string]coursework.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("assignment.GetByIDs"); err != nil {
		return nil, err
	}
	out := make(map[string]coursework.Assignment, len(ids))
	for _, id := range ids {
		if a, ok := r.db.assignments[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

type recorder struct {
	db *DB
}

// NewRecorder returns a coursework.Recorder backed by db.
func NewRecorder(db *DB) coursework.Recorder {
	return &recorder{db: db}
}

// SaveSubmission merges into an existing row the way the postgres upsert does:
// hand-in time, student and assignment stay, score and graded time are only
// overwritten by non-empty values.
func (r *recorder) SaveSubmission(_ context.Context, s coursework.Submission) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("submission.Save"); err != nil {
		return err
	}
	if prev, ok := r.db.submissions[s.ID]; ok {
		s.StudentID = prev.StudentID
		s.AssignmentID = prev.AssignmentID
		s.SubmittedAt = prev.SubmittedAt
		if s.Score == nil {
			s.Score = prev.Score
		}
		if s.GradedAt.IsZero() {
			s.GradedAt = prev.GradedAt
		}
	}
	r.db.submissions[s.ID] = s
	return nil
}

func (r *recorder) SaveAssignment(_ context.Context, a coursework.Assignment) error {
	r.db.PutAssignment(a)
	return nil
}
