package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL BADGES JOB
// Re-runs retroactive badge evaluation for every profile. Awards are
// idempotent, so a rerun only grants what the incremental path missed.
// ══════════════════════════════════════════════════════════════════════════════

// RetroactiveEvaluator evaluates a user's full submission history.
type RetroactiveEvaluator interface {
	EvaluateRetroactive(ctx context.Context, userID string) []badge.Badge
}

// BackfillBadgesConfig contains configuration for the backfill job.
type BackfillBadgesConfig struct {
	PageSize    int
	Concurrency int

	// Timeout bounds a whole run (0 = none).
	Timeout time.Duration
}

// DefaultBackfillBadgesConfig returns sensible defaults.
func DefaultBackfillBadgesConfig() BackfillBadgesConfig {
	return BackfillBadgesConfig{
		PageSize:    defaultPageSize,
		Concurrency: 4,
		Timeout:     30 * time.Minute,
	}
}

// BackfillStats describes one run.
type BackfillStats struct {
	UsersScanned  int64
	BadgesAwarded int64
	Duration      time.Duration
}

// BackfillBadgesJob implements scheduler.Job.
type BackfillBadgesJob struct {
	profiles  profile.Repository
	evaluator RetroactiveEvaluator
	config    BackfillBadgesConfig
	logger    *logger.Logger

	last atomic.Pointer[BackfillStats]
}

// NewBackfillBadgesJob creates the job.
func NewBackfillBadgesJob(profiles profile.Repository, evaluator RetroactiveEvaluator, config BackfillBadgesConfig, log *logger.Logger) *BackfillBadgesJob {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &BackfillBadgesJob{
		profiles:  profiles,
		evaluator: evaluator,
		config:    config,
		logger:    log.With(logger.Component("backfill_badges")),
	}
}

func (j *BackfillBadgesJob) Name() string { return "backfill_badges" }

func (j *BackfillBadgesJob) Description() string {
	return "Retroactively evaluates badges for every profile"
}

// Run executes the backfill.
func (j *BackfillBadgesJob) Run(ctx context.Context) error {
	start := time.Now()
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	var scanned, awarded atomic.Int64
	err := forEachUserPage(ctx, j.profiles, j.config.PageSize, func(ids []string) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.config.Concurrency)
		for _, id := range ids {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				got := j.evaluator.EvaluateRetroactive(gctx, id)
				scanned.Add(1)
				awarded.Add(int64(len(got)))
				return nil
			})
		}
		return g.Wait()
	})

	stats := &BackfillStats{
		UsersScanned:  scanned.Load(),
		BadgesAwarded: awarded.Load(),
		Duration:      time.Since(start),
	}
	j.last.Store(stats)

	if err != nil {
		j.logger.Error("backfill interrupted", logger.Int64("users", stats.UsersScanned), logger.Err(err))
		return err
	}
	j.logger.Info("backfill finished",
		logger.Int64("users", stats.UsersScanned),
		logger.Int64("badges", stats.BadgesAwarded),
		logger.Latency(stats.Duration),
	)
	return nil
}

// LastStats returns the statistics of the previous run, or nil.
func (j *BackfillBadgesJob) LastStats() *BackfillStats {
	return j.last.Load()
}
