package badge

import (
	"fmt"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// ══════════════════════════════════════════════════════════════════════════════

// RequirementKind - вид условия выдачи.
type RequirementKind string

const (
	// ReqSubmissions - всего сдач.
	ReqSubmissions RequirementKind = "submissions"
	// ReqPerfectScores - сдач с оценкой, равной максимуму.
	ReqPerfectScores RequirementKind = "perfect_scores"
	// ReqStreak - серия дней со сдачами.
	ReqStreak RequirementKind = "streak"
	// ReqCoins - баланс монет.
	ReqCoins RequirementKind = "coins"
	// ReqAverageScore - средняя оценка по шкале 0-20.
	ReqAverageScore RequirementKind = "average_score"
	// ReqSubjectAverage - средняя оценка по предмету по шкале 0-20.
	ReqSubjectAverage RequirementKind = "subject_average"
	// ReqEarlySubmissions - сдач больше чем за 24 часа до дедлайна.
	ReqEarlySubmissions RequirementKind = "early_submissions"
)

// Requirement - условие выдачи значка.
type Requirement struct {
	Kind RequirementKind

	// Threshold - порог (включительно).
	Threshold float64

	// MinSubmissions - минимум оценённых сдач для средних.
	MinSubmissions int

	// Subject - предмет для ReqSubjectAverage.
	Subject shared.Subject
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Definition описывает значок (или одну его ступень).
type Definition struct {
	Type        Type
	Tier        Tier
	Tiered      bool
	Name        string
	Description string
	Icon        string
	Requirement Requirement
}

// Key возвращает ключ идемпотентности определения.
func (d Definition) Key() Key {
	if d.Tiered {
		return TieredKey(d.Type, d.Tier)
	}
	return TypeKey(d.Type)
}

// Catalog - упорядоченный список определений. Порядок объявления задаёт порядок выдачи.
type Catalog []Definition

func untiered(t Type, name, desc, icon string, req Requirement) Definition {
	return Definition{Type: t, Tier: DefaultTier, Name: name, Description: desc, Icon: icon, Requirement: req}
}

func tiered(t Type, name, icon string, kind RequirementKind, thresholds [3]float64, desc string) []Definition {
	tiersInOrder := [3]Tier{TierBronze, TierSilver, TierGold}
	defs := make([]Definition, 0, 3)
	for i, tier := range tiersInOrder {
		defs = append(defs, Definition{
			Type:        t,
			Tier:        tier,
			Tiered:      true,
			Name:        name,
			Description: fmt.Sprintf(desc, thresholds[i]),
			Icon:        icon,
			Requirement: Requirement{Kind: kind, Threshold: thresholds[i]},
		})
	}
	return defs
}

// DefaultCatalog возвращает каталог значков платформы.
func DefaultCatalog() Catalog {
	c := Catalog{
		untiered(TypeFirstSubmission, "First Steps", "Hand in your first assignment", "🎒",
			Requirement{Kind: ReqSubmissions, Threshold: 1}),
		untiered(TypeTenSubmissions, "Getting Busy", "Hand in 10 assignments", "📚",
			Requirement{Kind: ReqSubmissions, Threshold: 10}),
		untiered(TypeFiftySubmissions, "Homework Hero", "Hand in 50 assignments", "🦸",
			Requirement{Kind: ReqSubmissions, Threshold: 50}),
		untiered(TypeCenturySubmissions, "Century Club", "Hand in 100 assignments", "💯",
			Requirement{Kind: ReqSubmissions, Threshold: 100}),
	}

	c = append(c, tiered(TypePerfectScore, "Perfectionist", "⭐", ReqPerfectScores,
		[3]float64{1, 5, 10}, "Earn full marks %.0f time(s)")...)
	c = append(c, tiered(TypeStreakMaster, "On Fire", "🔥", ReqStreak,
		[3]float64{3, 7, 30}, "Hand in work %.0f days in a row")...)
	c = append(c, tiered(TypeEarlyBird, "Early Bird", "🐦", ReqEarlySubmissions,
		[3]float64{3, 7, 15}, "Hand in %.0f assignments more than a day early")...)

	c = append(c,
		untiered(TypeCoinCollector, "Coin Collector", "Save up 100 coins", "🪙",
			Requirement{Kind: ReqCoins, Threshold: 100}),
		untiered(TypeCoinSaver, "Piggy Bank", "Save up 500 coins", "🐷",
			Requirement{Kind: ReqCoins, Threshold: 500}),
		untiered(TypeCoinTycoon, "Coin Tycoon", "Save up 1000 coins", "💰",
			Requirement{Kind: ReqCoins, Threshold: 1000}),
		untiered(TypeSteadyLearner, "Steady Learner", "Keep a 12/20 average over 10 graded assignments", "📈",
			Requirement{Kind: ReqAverageScore, Threshold: 12, MinSubmissions: 10}),
		untiered(TypeHonorRoll, "Honor Roll", "Keep a 16/20 average over 5 graded assignments", "🎖️",
			Requirement{Kind: ReqAverageScore, Threshold: 16, MinSubmissions: 5}),
		untiered(TypeStraightA, "Straight A", "Keep an 18/20 average over 10 graded assignments", "🅰️",
			Requirement{Kind: ReqAverageScore, Threshold: 18, MinSubmissions: 10}),
		untiered(TypeMathWhiz, "Math Whiz", "Average 16/20 in math over 3 assignments", "➗",
			Requirement{Kind: ReqSubjectAverage, Threshold: 16, MinSubmissions: 3, Subject: "math"}),
		untiered(TypeScienceStar, "Science Star", "Average 16/20 in science over 3 assignments", "🔬",
			Requirement{Kind: ReqSubjectAverage, Threshold: 16, MinSubmissions: 3, Subject: "science"}),
		untiered(TypeWordSmith, "Word Smith", "Average 16/20 in english over 3 assignments", "✍️",
			Requirement{Kind: ReqSubjectAverage, Threshold: 16, MinSubmissions: 3, Subject: "english"}),
		untiered(TypeHistoryBuff, "History Buff", "Average 16/20 in history over 3 assignments", "🏛️",
			Requirement{Kind: ReqSubjectAverage, Threshold: 16, MinSubmissions: 3, Subject: "history"}),
		untiered(TypeGeographyGuru, "Geography Guru", "Average 16/20 in geography over 3 assignments", "🌍",
			Requirement{Kind: ReqSubjectAverage, Threshold: 16, MinSubmissions: 3, Subject: "geography"}),
		untiered(TypeLanguageAce, "Language Ace", "Average 16/20 in a foreign language over 3 assignments", "🗣️",
			Requirement{Kind: ReqSubjectAverage, Threshold: 16, MinSubmissions: 3, Subject: "foreign language"}),
	)
	return c
}

// Lookup ищет определение по типу и тиру. Для значков без тиров тир игнорируется.
func (c Catalog) Lookup(t Type, tier Tier) (Definition, bool) {
	for _, d := range c {
		if d.Type != t {
			continue
		}
		if !d.Tiered || d.Tier == tier {
			return d, true
		}
	}
	return Definition{}, false
}

// Validate проверяет каталог: ключи уникальны, ступени идут от bronze к gold,
// у ступеней пороги растут, у средних по предмету указан предмет.
func (c Catalog) Validate() error {
	seen := make(map[Key]struct{}, len(c))
	lastTier := make(map[Type]Definition)
	for _, d := range c {
		k := d.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("badge catalog: duplicate key %q", k)
		}
		seen[k] = struct{}{}

		if d.Requirement.Kind == ReqSubjectAverage && d.Requirement.Subject == "" {
			return fmt.Errorf("badge catalog: %q has no subject", d.Type)
		}
		if !d.Tiered {
			continue
		}
		if prev, ok := lastTier[d.Type]; ok {
			if d.Tier.Rank() <= prev.Tier.Rank() {
				return fmt.Errorf("badge catalog: %q tiers out of order", d.Type)
			}
			if d.Requirement.Threshold <= prev.Requirement.Threshold {
				return fmt.Errorf("badge catalog: %q thresholds must grow with tier", d.Type)
			}
		}
		lastTier[d.Type] = d
	}
	return nil
}
