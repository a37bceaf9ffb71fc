package memory

import (
	"context"
	"sort"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// Badges
// ══════════════════════════════════════════════════════════════════════════════

type badgeRepository struct {
	db *DB
}

// NewBadgeRepository returns a badge.Repository backed by db.
func NewBadgeRepository(db *DB) badge.Repository {
	return &badgeRepository{db: db}
}

func (r *badgeRepository) ListByUser(_ context.Context, userID string) ([]badge.Badge, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("badge.List"); err != nil {
		return nil, err
	}
	out := make([]badge.Badge, len(r.db.badges[userID]))
	copy(out, r.db.badges[userID])
	return out, nil
}

func (r *badgeRepository) Create(_ context.Context, b badge.Badge) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("badge.Create"); err != nil {
		return false, err
	}
	for _, existing := range r.db.badges[b.UserID] {
		if existing.Type == b.Type && existing.Tier == b.Tier {
			return false, nil
		}
	}
	r.db.badges[b.UserID] = append(r.db.badges[b.UserID], b)
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Scoring
// ══════════════════════════════════════════════════════════════════════════════

type ruleRepository struct {
	db *DB
}

// NewRuleRepository returns a scoring.RuleRepository backed by db.
func NewRuleRepository(db *DB) scoring.RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) ListActive(_ context.Context, teacherID string, types ...scoring.RuleType) ([]scoring.Rule, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("rule.List"); err != nil {
		return nil, err
	}

	want := make(map[scoring.RuleType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []scoring.Rule
	for _, rule := range r.db.rules {
		if rule.TeacherID != teacherID || !rule.IsActive {
			continue
		}
		if len(want) > 0 && !want[rule.Type] {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

type auditRepository struct {
	db *DB
}

// NewAuditRepository returns a scoring.AuditRepository backed by db.
func NewAuditRepository(db *DB) scoring.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(_ context.Context, e scoring.AuditEntry) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("audit.Record"); err != nil {
		return false, err
	}
	duplicate := false
	for _, prev := range r.db.audit {
		if prev.Fingerprint == e.Fingerprint {
			duplicate = true
			break
		}
	}
	r.db.audit = append(r.db.audit, e)
	return duplicate, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Learning paths
// ══════════════════════════════════════════════════════════════════════════════

type pathRepository struct {
	db *DB
}

// NewPathRepository returns a path.Repository backed by db.
func NewPathRepository(db *DB) path.Repository {
	return &pathRepository{db: db}
}

func (r *pathRepository) GetPath(_ context.Context, pathID string) (*path.LearningPath, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.paths[pathID]
	if !ok {
		return nil, shared.ErrPathNotFound
	}
	return &p, nil
}

func (r *pathRepository) ListStages(_ context.Context, pathID string) ([]path.Stage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []path.Stage
	for _, s := range r.db.stages {
		if s.PathID == pathID {
			out = append(out, s)
		}
	}
	path.SortStages(out)
	return out, nil
}

func (r *pathRepository) GetStage(_ context.Context, stageID string) (*path.Stage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.stages[stageID]
	if !ok {
		return nil, shared.ErrStageNotFound
	}
	return &s, nil
}

type progressRepository struct {
	db *DB
}

// NewProgressRepository returns a path.ProgressRepository backed by db.
func NewProgressRepository(db *DB) path.ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Get(_ context.Context, studentID, stageID string) (*path.Progress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("progress.Get"); err != nil {
		return nil, err
	}
	p, ok := r.db.progress[compositeKey(studentID, stageID)]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *progressRepository) list(match func(*path.Progress) bool) []path.Progress {
	var out []path.Progress
	for _, p := range r.db.progress {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageID < out[j].StageID })
	return out
}

func (r *progressRepository) ListByPath(_ context.Context, studentID, pathID string) ([]path.Progress, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.list(func(p *path.Progress) bool { return p.StudentID == studentID && p.PathID == pathID }), nil
}

func (r *progressRepository) ListByStudent(_ context.Context, studentID string) ([]path.Progress, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.list(func(p *path.Progress) bool { return p.StudentID == studentID }), nil
}

func (r *progressRepository) Create(_ context.Context, p *path.Progress) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("progress.Create"); err != nil {
		return err
	}
	key := compositeKey(p.StudentID, p.StageID)
	if _, exists := r.db.progress[key]; exists {
		return shared.ErrProgressExists
	}
	cp := *p
	r.db.progress[key] = &cp
	return nil
}

func (r *progressRepository) Update(_ context.Context, p *path.Progress) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("progress.Update"); err != nil {
		return err
	}
	key := compositeKey(p.StudentID, p.StageID)
	if _, exists := r.db.progress[key]; !exists {
		return shared.ErrProgressNotFound
	}
	cp := *p
	r.db.progress[key] = &cp
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Daily challenges
// ══════════════════════════════════════════════════════════════════════════════

type challengeRepository struct {
	db *DB
}

// NewChallengeRepository returns a challenge.Repository backed by db.
func NewChallengeRepository(db *DB) challenge.Repository {
	return &challengeRepository{db: db}
}

func cloneChallenge(c *challenge.Challenge) *challenge.Challenge {
	cp := *c
	cp.Progress = make(map[challenge.TaskID]bool, len(c.Progress))
	for k, v := range c.Progress {
		cp.Progress[k] = v
	}
	cp.Claimed = make(map[challenge.TaskID]bool, len(c.Claimed))
	for k, v := range c.Claimed {
		cp.Claimed[k] = v
	}
	return &cp
}

func (r *challengeRepository) Get(_ context.Context, userID, day string) (*challenge.Challenge, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("challenge.Get"); err != nil {
		return nil, err
	}
	c, ok := r.db.challenges[compositeKey(userID, day)]
	if !ok {
		return nil, shared.ErrChallengeNotFound
	}
	return cloneChallenge(c), nil
}

func (r *challengeRepository) Create(_ context.Context, c *challenge.Challenge) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := compositeKey(c.UserID, c.Day)
	if _, exists := r.db.challenges[key]; exists {
		return shared.ErrChallengeExists
	}
	r.db.challenges[key] = cloneChallenge(c)
	return nil
}

func (r *challengeRepository) MarkProgress(_ context.Context, userID, day string, task challenge.TaskID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.challenges[compositeKey(userID, day)]
	if !ok {
		return false, shared.ErrChallengeNotFound
	}
	if c.Progress[task] {
		return false, nil
	}
	c.Progress[task] = true
	return true, nil
}

func (r *challengeRepository) MarkClaimed(_ context.Context, userID, day string, task challenge.TaskID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("challenge.MarkClaimed"); err != nil {
		return false, err
	}
	c, ok := r.db.challenges[compositeKey(userID, day)]
	if !ok {
		return false, shared.ErrChallengeNotFound
	}
	if !c.Progress[task] || c.Claimed[task] {
		return false, nil
	}
	c.Claimed[task] = true
	return true, nil
}
