// Package app wires repositories, engines and event handlers into one
// progression stack. cmd/server, cmd/worker and the HTTP tests build the
// same graph through Build.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/k9quest/progression-hub/internal/application/command"
	"github.com/k9quest/progression-hub/internal/application/eventhandler"
	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repositories is the storage surface the engines need.
type Repositories struct {
	Submissions coursework.SubmissionRepository
	Assignments coursework.AssignmentRepository
	Recorder    coursework.Recorder

	Profiles profile.Repository
	Ledger   profile.Ledger

	Badges     badge.Repository
	Rules      scoring.RuleRepository
	Audit      scoring.AuditRepository
	Paths      path.Repository
	Progress   path.ProgressRepository
	Challenges challenge.Repository
}

// MemoryRepositories backs every repository with db.
func MemoryRepositories(db *memory.DB) Repositories {
	return Repositories{
		Submissions: memory.NewSubmissionRepository(db),
		Assignments: memory.NewAssignmentRepository(db),
		Recorder:    memory.NewRecorder(db),
		Profiles:    memory.NewProfileRepository(db),
		Ledger:      memory.NewLedger(db),
		Badges:      memory.NewBadgeRepository(db),
		Rules:       memory.NewRuleRepository(db),
		Audit:       memory.NewAuditRepository(db),
		Paths:       memory.NewPathRepository(db),
		Progress:    memory.NewProgressRepository(db),
		Challenges:  memory.NewChallengeRepository(db),
	}
}

// PostgresRepositories backs every repository with conn.
func PostgresRepositories(conn *postgres.Connection) Repositories {
	cw := postgres.NewCourseworkRepository(conn)
	profiles := postgres.NewProfileRepository(conn)
	scoringRepo := postgres.NewScoringRepository(conn)
	return Repositories{
		Submissions: cw.Submissions(),
		Assignments: cw.Assignments(),
		Recorder:    cw,
		Profiles:    profiles,
		Ledger:      profiles,
		Badges:      postgres.NewBadgeRepository(conn),
		Rules:       scoringRepo,
		Audit:       scoringRepo,
		Paths:       postgres.NewPathRepository(conn),
		Progress:    postgres.NewProgressRepository(conn),
		Challenges:  postgres.NewChallengeRepository(conn),
	}
}

func (r Repositories) validate() error {
	var errs []error
	check := func(name string, missing bool) {
		if missing {
			errs = append(errs, fmt.Errorf("app: %s repository is not set", name))
		}
	}
	check("submissions", r.Submissions == nil)
	check("assignments", r.Assignments == nil)
	check("profiles", r.Profiles == nil)
	check("ledger", r.Ledger == nil)
	check("badges", r.Badges == nil)
	check("rules", r.Rules == nil)
	check("audit", r.Audit == nil)
	check("paths", r.Paths == nil)
	check("progress", r.Progress == nil)
	check("challenges", r.Challenges == nil)
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINES
// ══════════════════════════════════════════════════════════════════════════════

// Options tunes the stack. Zero values fall back to defaults.
type Options struct {
	Logger   *logger.Logger
	Clock    timeutil.Clock
	Location *time.Location
	Catalog  badge.Catalog

	// LevelCache caches level read models (nil disables caching).
	LevelCache    query.Cache
	LevelCacheTTL time.Duration

	// Board serves the coin leaderboard (nil disables the endpoint).
	Board query.CoinBoard

	// DisableScoring stops teacher bonus rules from reacting to events.
	DisableScoring bool

	// DisableDaily stops events from completing daily tasks. Claims still work.
	DisableDaily bool
}

// Engines holds the command and query handlers of one stack.
type Engines struct {
	Badges  *command.EvaluateBadgesHandler
	Scoring *command.ApplyScoringHandler
	Paths   *command.ProgressPathHandler
	Daily   *command.DailyChallengeHandler

	Level       *query.GetLevelProgressHandler
	Leaderboard *query.GetLeaderboardHandler
}

// Build constructs every engine and subscribes the event handlers to bus.
func Build(repos Repositories, bus shared.EventBus, opts Options) (*Engines, error) {
	if err := repos.validate(); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, errors.New("app: event bus is not set")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock
	}
	if opts.Location == nil {
		opts.Location = timeutil.DefaultSchoolTZ
	}
	if opts.Catalog == nil {
		opts.Catalog = badge.DefaultCatalog()
	}
	log := opts.Logger

	levelCfg := query.DefaultGetLevelProgressConfig()
	levelCfg.Location = opts.Location
	levelCfg.Clock = opts.Clock
	if opts.LevelCacheTTL > 0 {
		levelCfg.CacheTTL = opts.LevelCacheTTL
	}

	e := &Engines{
		Badges: command.NewEvaluateBadgesHandler(
			repos.Submissions, repos.Assignments, repos.Profiles, repos.Badges, bus, log,
			command.EvaluateBadgesConfig{Catalog: opts.Catalog, Location: opts.Location, Clock: opts.Clock},
		),
		Scoring: command.NewApplyScoringHandler(repos.Rules, repos.Audit, repos.Ledger, bus, log, opts.Clock),
		Paths:   command.NewProgressPathHandler(repos.Paths, repos.Progress, repos.Ledger, bus, log, opts.Clock),
		Daily: command.NewDailyChallengeHandler(
			repos.Challenges, repos.Submissions, repos.Assignments, repos.Ledger, bus, log, opts.Clock, opts.Location,
		),
	}
	e.Level = query.NewGetLevelProgressHandler(repos.Progress, repos.Submissions, repos.Profiles, repos.Badges, opts.LevelCache, log, levelCfg)
	if opts.Board != nil {
		e.Leaderboard = query.NewGetLeaderboardHandler(opts.Board)
	}

	engines := eventhandler.Engines{Badges: e.Badges, Scoring: e.Scoring, Daily: e.Daily}
	if opts.DisableScoring {
		engines.Scoring = nil
	}
	if opts.DisableDaily {
		engines.Daily = nil
	}
	handlers := []eventhandler.Handler{
		eventhandler.NewOnSubmissionCreatedHandler(repos.Submissions, repos.Assignments, engines, log),
		eventhandler.NewOnSubmissionGradedHandler(repos.Submissions, repos.Assignments, engines, log),
	}
	if engines.Daily != nil {
		handlers = append(handlers,
			eventhandler.NewOnUserLoggedInHandler(e.Daily, log),
			eventhandler.NewOnStageCompletedHandler(e.Daily, log),
		)
	}
	if err := eventhandler.Register(bus, handlers...); err != nil {
		return nil, fmt.Errorf("app: register event handlers: %w", err)
	}
	return e, nil
}
