// Package badge содержит каталог значков, агрегированный снимок прогресса ученика
// и чистую функцию оценки правил выдачи.
//
// Инварианты:
//   - у ученика не больше одной записи на пару (тип, тир);
//   - записи неизменяемы и никогда не удаляются;
//   - для значков без тиров идемпотентность проверяется по одному типу.
package badge

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Type - тип значка.
type Type string

const (
	TypeFirstSubmission    Type = "first_submission"
	TypeTenSubmissions     Type = "ten_submissions"
	TypeFiftySubmissions   Type = "fifty_submissions"
	TypeCenturySubmissions Type = "century_submissions"
	TypePerfectScore       Type = "perfect_score"
	TypeStreakMaster       Type = "streak_master"
	TypeEarlyBird          Type = "early_bird"
	TypeCoinCollector      Type = "coin_collector"
	TypeCoinSaver          Type = "coin_saver"
	TypeCoinTycoon         Type = "coin_tycoon"
	TypeSteadyLearner      Type = "steady_learner"
	TypeHonorRoll          Type = "honor_roll"
	TypeStraightA          Type = "straight_a"
	TypeMathWhiz           Type = "math_whiz"
	TypeScienceStar        Type = "science_star"
	TypeWordSmith          Type = "word_smith"
	TypeHistoryBuff        Type = "history_buff"
	TypeGeographyGuru      Type = "geography_guru"
	TypeLanguageAce        Type = "language_ace"
)

// Tier - ступень значка.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// DefaultTier - тир записи для значков без ступеней.
const DefaultTier = TierBronze

// Rank возвращает порядок тира (bronze < silver < gold). Неизвестный тир - 0.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	default:
		return 0
	}
}

// IsValid проверяет, что тир известен.
func (t Tier) IsValid() bool {
	return t.Rank() > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Badge - выданный значок.
type Badge struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Type     Type      `json:"badge_type"`
	Tier     Tier      `json:"tier"`
	EarnedAt time.Time `json:"earned_at"`
}

// New создаёт запись значка по определению из каталога.
func New(id, userID string, def Definition, earnedAt time.Time) Badge {
	tier := def.Tier
	if !tier.IsValid() {
		tier = DefaultTier
	}
	return Badge{
		ID:       id,
		UserID:   userID,
		Type:     def.Type,
		Tier:     tier,
		EarnedAt: earnedAt,
	}
}

// Key - ключ идемпотентности.
type Key string

// TypeKey - ключ значка без тиров.
func TypeKey(t Type) Key {
	return Key(t)
}

// TieredKey - ключ ступени значка.
func TieredKey(t Type, tier Tier) Key {
	return Key(string(t) + ":" + string(tier))
}

// keys возвращает оба ключа, которые занимает уже существующая запись.
func (b Badge) keys() []Key {
	tier := b.Tier
	if !tier.IsValid() {
		tier = DefaultTier
	}
	return []Key{TypeKey(b.Type), TieredKey(b.Type, tier)}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище значков.
type Repository interface {
	// ListByUser возвращает все значки пользователя.
	ListByUser(ctx context.Context, userID string) ([]Badge, error)

	// Create сохраняет значок. created == false, если пара (тип, тир) уже занята:
	// это не ошибка, а сигнал, что значок выдал параллельный запуск.
	Create(ctx context.Context, b Badge) (created bool, err error)
}
