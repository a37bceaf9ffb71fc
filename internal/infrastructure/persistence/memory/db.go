// Package memory implements every domain repository on top of in-process maps.
// It backs the dev profile (STORAGE_DRIVER=memory) and the application tests.
package memory

import (
	"sync"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
)

// DB holds all tables behind a single lock.
type DB struct {
	mu sync.RWMutex

	submissions map[string]coursework.Submission
	assignments map[string]coursework.Assignment
	profiles    map[string]*profile.PublicProfile
	entries     []profile.LedgerEntry
	badges      map[string][]badge.Badge
	paths       map[string]path.LearningPath
	stages      map[string]path.Stage
	progress    map[string]*path.Progress // key: student|stage
	rules       []scoring.Rule
	audit       []scoring.AuditEntry
	challenges  map[string]*challenge.Challenge // key: user|day

	faults map[string]error
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		submissions: make(map[string]coursework.Submission),
		assignments: make(map[string]coursework.Assignment),
		profiles:    make(map[string]*profile.PublicProfile),
		badges:      make(map[string][]badge.Badge),
		paths:       make(map[string]path.LearningPath),
		stages:      make(map[string]path.Stage),
		progress:    make(map[string]*path.Progress),
		challenges:  make(map[string]*challenge.Challenge),
		faults:      make(map[string]error),
	}
}

// FailNext makes the next call of op (e.g. "badge.Create") return err.
func (db *DB) FailNext(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.faults[op] = err
}

// fault pops an injected error. Callers must hold the lock.
func (db *DB) fault(op string) error {
	err, ok := db.faults[op]
	if !ok {
		return nil
	}
	delete(db.faults, op)
	return err
}

func compositeKey(a, b string) string {
	return a + "|" + b
}

// ══════════════════════════════════════════════════════════════════════════════
// Seeding (fixtures and dev data)
// ══════════════════════════════════════════════════════════════════════════════

// PutSubmission inserts or replaces a submission.
func (db *DB) PutSubmission(s coursework.Submission) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.submissions[s.ID] = s
}

// PutAssignment inserts or replaces an assignment.
func (db *DB) PutAssignment(a coursework.Assignment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.assignments[a.ID] = a
}

// PutProfile inserts or replaces a profile.
func (db *DB) PutProfile(p profile.PublicProfile) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := p
	db.profiles[p.UserID] = &cp
}

// PutPath inserts a learning path with its stages.
func (db *DB) PutPath(p path.LearningPath, stages ...path.Stage) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.paths[p.ID] = p
	for _, s := range stages {
		s.PathID = p.ID
		db.stages[s.ID] = s
	}
}

// PutRule inserts a scoring rule.
func (db *DB) PutRule(r scoring.Rule) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rules = append(db.rules, r)
}

// Audit returns a copy of the scoring audit log.
func (db *DB) Audit() []scoring.AuditEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]scoring.AuditEntry, len(db.audit))
	copy(out, db.audit)
	return out
}
