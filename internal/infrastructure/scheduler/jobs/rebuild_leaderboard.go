package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// The coin leaderboard is mirrored on every credit; this job repairs drift
// (lost mirror writes, a flushed Redis) by rebuilding it from profiles.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRebuilder replaces the whole board atomically.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, balances map[string]int64) error
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	PageSize int
	Timeout  time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		PageSize: defaultPageSize,
		Timeout:  5 * time.Minute,
	}
}

// RebuildLeaderboardJob implements scheduler.Job.
type RebuildLeaderboardJob struct {
	profiles profile.Repository
	board    LeaderboardRebuilder
	config   RebuildLeaderboardConfig
	logger   *logger.Logger

	lastSize atomic.Int64
}

// NewRebuildLeaderboardJob creates the job.
func NewRebuildLeaderboardJob(profiles profile.Repository, board LeaderboardRebuilder, config RebuildLeaderboardConfig, log *logger.Logger) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &RebuildLeaderboardJob{
		profiles: profiles,
		board:    board,
		config:   config,
		logger:   log.With(logger.Component("rebuild_leaderboard")),
	}
}

func (j *RebuildLeaderboardJob) Name() string { return "rebuild_leaderboard" }

func (j *RebuildLeaderboardJob) Description() string {
	return "Rebuilds the coin leaderboard from profile balances"
}

// Run executes the rebuild. Profiles deleted mid-scan are skipped.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	start := time.Now()
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	balances := make(map[string]int64)
	err := forEachUserPage(ctx, j.profiles, j.config.PageSize, func(ids []string) error {
		for _, id := range ids {
			p, err := j.profiles.GetByUserID(ctx, id)
			if shared.IsNotFound(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to load profile %s: %w", id, err)
			}
			balances[id] = p.Coins
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := j.board.Rebuild(ctx, balances); err != nil {
		return err
	}
	j.lastSize.Store(int64(len(balances)))

	j.logger.Info("leaderboard rebuilt",
		logger.Int("users", len(balances)),
		logger.Latency(time.Since(start)),
	)
	return nil
}

// LastSize returns the number of users in the last rebuilt board.
func (j *RebuildLeaderboardJob) LastSize() int64 {
	return j.lastSize.Load()
}
