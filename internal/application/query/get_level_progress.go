// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/level"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/domain/streak"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEVEL PROGRESS QUERY
// Уровень, тир, серия и баланс ученика. XP берётся из строк прогресса путей,
// монеты - из профиля: это два независимых счётчика.
// ══════════════════════════════════════════════════════════════════════════════

// GetLevelProgressQuery содержит параметры запроса.
type GetLevelProgressQuery struct {
	// UserID - ученик.
	UserID string

	// SkipCache - читать мимо кэша.
	SkipCache bool
}

// Validate проверяет параметры запроса.
func (q GetLevelProgressQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return fmt.Errorf("get_level_progress: %w", err)
	}
	return nil
}

// LevelProgressDTO - ответ запроса.
type LevelProgressDTO struct {
	UserID string `json:"user_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Уровень
	// ─────────────────────────────────────────────────────────────────────────

	Level                int        `json:"level"`
	TotalXP              int64      `json:"total_xp"`
	CurrentXPIntoLevel   int64      `json:"current_xp_into_level"`
	XPNeededForNextLevel int64      `json:"xp_needed_for_next_level"`
	ProgressPercent      float64    `json:"progress_percent"`
	IsMaxLevel           bool       `json:"is_max_level"`
	Tier                 level.Tier `json:"tier"`

	// ─────────────────────────────────────────────────────────────────────────
	// Активность и награды
	// ─────────────────────────────────────────────────────────────────────────

	CurrentStreak int   `json:"current_streak"`
	LongestStreak int   `json:"longest_streak"`
	Coins         int64 `json:"coins"`
	BadgeCount    int   `json:"badge_count"`

	ComputedAt time.Time `json:"computed_at"`
}

// Cache - кэш готовых ответов (реализуется Redis).
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// GetLevelProgressConfig - настройки обработчика.
type GetLevelProgressConfig struct {
	Location *time.Location
	Clock    timeutil.Clock

	// CacheTTL - время жизни ответа в кэше. 0 отключает кэш.
	CacheTTL time.Duration
}

// DefaultGetLevelProgressConfig возвращает настройки по умолчанию.
func DefaultGetLevelProgressConfig() GetLevelProgressConfig {
	return GetLevelProgressConfig{
		Location: timeutil.DefaultSchoolTZ,
		Clock:    timeutil.SystemClock,
		CacheTTL: 30 * time.Second,
	}
}

// GetLevelProgressHandler обрабатывает запрос.
type GetLevelProgressHandler struct {
	progress    path.ProgressRepository
	submissions coursework.SubmissionRepository
	profiles    profile.Repository
	badges      badge.Repository
	cache       Cache
	log         *logger.Logger
	config      GetLevelProgressConfig
}

// NewGetLevelProgressHandler создаёт обработчик. cache может быть nil.
func NewGetLevelProgressHandler(
	progress path.ProgressRepository,
	submissions coursework.SubmissionRepository,
	profiles profile.Repository,
	badges badge.Repository,
	cache Cache,
	log *logger.Logger,
	config GetLevelProgressConfig,
) *GetLevelProgressHandler {
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &GetLevelProgressHandler{
		progress:    progress,
		submissions: submissions,
		profiles:    profiles,
		badges:      badges,
		cache:       cache,
		log:         log.With(logger.Component("level_query")),
		config:      config,
	}
}

func cacheKey(userID string) string {
	return "level:" + userID
}

// Handle выполняет запрос.
func (h *GetLevelProgressHandler) Handle(ctx context.Context, q GetLevelProgressQuery) (*LevelProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	useCache := h.cache != nil && h.config.CacheTTL > 0 && !q.SkipCache
	if useCache {
		var cached LevelProgressDTO
		if err := h.cache.Get(ctx, cacheKey(q.UserID), &cached); err == nil {
			return &cached, nil
		}
	}

	var (
		rows   []path.Progress
		subs   []coursework.Submission
		prof   *profile.PublicProfile
		badges []badge.Badge
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rows, err = h.progress.ListByStudent(gctx, q.UserID)
		return err
	})
	g.Go(func() (err error) {
		subs, err = h.submissions.ListByStudent(gctx, q.UserID)
		return err
	})
	g.Go(func() error {
		p, err := h.profiles.GetByUserID(gctx, q.UserID)
		if err != nil {
			return err
		}
		prof = p
		return nil
	})
	g.Go(func() (err error) {
		badges, err = h.badges.ListByUser(gctx, q.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, shared.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get_level_progress: %w", err)
	}

	now := h.config.Clock()
	lp := level.Calculate(path.TotalXP(rows))
	tier := level.GetTier(lp.Level)

	activity := make([]time.Time, 0, len(subs))
	for _, s := range subs {
		activity = append(activity, s.SubmittedAt)
	}
	st := streak.Calculate(activity, now, h.config.Location)

	dto := &LevelProgressDTO{
		UserID:               q.UserID,
		Level:                lp.Level,
		TotalXP:              lp.TotalXP,
		CurrentXPIntoLevel:   lp.CurrentXPIntoLevel,
		XPNeededForNextLevel: lp.XPNeededForNextLevel,
		ProgressPercent:      lp.ProgressPercent,
		IsMaxLevel:           lp.IsMaxLevel,
		Tier:                 tier,
		CurrentStreak:        st.Current,
		LongestStreak:        st.Longest,
		Coins:                prof.Coins,
		BadgeCount:           len(badges),
		ComputedAt:           now,
	}

	if useCache {
		if err := h.cache.Set(ctx, cacheKey(q.UserID), dto, h.config.CacheTTL); err != nil {
			h.log.Warn("failed to cache level progress", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	return dto, nil
}
