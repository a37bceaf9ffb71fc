// Package level содержит кривую опыта (XP) и тиры уровней.
// Кривая - чистая функция без состояния: уровень всегда выводится из накопленного XP.
package level

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// CURVE CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinLevel - первый уровень.
	MinLevel = 1

	// MaxLevel - жёсткий потолок. XP сверх него накапливается, но уровень не растёт.
	MaxLevel = 100

	// BaseXP - стоимость первого уровня.
	BaseXP = 50

	// GrowthFactor - множитель стоимости каждого следующего уровня.
	GrowthFactor = 1.15
)

// xpTable[l] = XPForLevel(l), totalTable[l] = TotalXPForLevel(l).
// Индекс 0 не используется.
var (
	xpTable    [MaxLevel + 1]int64
	totalTable [MaxLevel + 1]int64
)

func init() {
	var sum int64
	for l := MinLevel; l <= MaxLevel; l++ {
		xpTable[l] = int64(math.Floor(BaseXP * math.Pow(GrowthFactor, float64(l-1))))
		totalTable[l] = sum
		sum += xpTable[l]
	}
}

func clampLevel(l int) int {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// XPForLevel возвращает XP, необходимый чтобы пройти уровень l:
// floor(50 × 1.15^(l-1)). Уровни вне [1,100] прижимаются к границам.
func XPForLevel(l int) int64 {
	return xpTable[clampLevel(l)]
}

// TotalXPForLevel возвращает суммарный XP, с которого начинается уровень l
// (сумма XPForLevel(i) для i < l). TotalXPForLevel(1) == 0.
func TotalXPForLevel(l int) int64 {
	return totalTable[clampLevel(l)]
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - положение студента на кривой.
type Progress struct {
	Level                int     `json:"level"`
	TotalXP              int64   `json:"total_xp"`
	CurrentXPIntoLevel   int64   `json:"current_xp_into_level"`
	XPNeededForNextLevel int64   `json:"xp_needed_for_next_level"`
	ProgressPercent      float64 `json:"progress_percent"`
	IsMaxLevel           bool    `json:"is_max_level"`
}

// Calculate выводит уровень из накопленного XP.
// Уровень - наибольший l ≤ 100, для которого TotalXPForLevel(l) ≤ totalXP.
// Отрицательный XP считается нулевым. ProgressPercent не превышает 100.
func Calculate(totalXP int64) Progress {
	if totalXP < 0 {
		totalXP = 0
	}

	lvl := MinLevel
	for lvl < MaxLevel && totalTable[lvl+1] <= totalXP {
		lvl++
	}

	into := totalXP - totalTable[lvl]
	needed := xpTable[lvl]

	pct := float64(into) / float64(needed) * 100
	if pct > 100 {
		pct = 100
	}

	return Progress{
		Level:                lvl,
		TotalXP:              totalXP,
		CurrentXPIntoLevel:   into,
		XPNeededForNextLevel: needed,
		ProgressPercent:      pct,
		IsMaxLevel:           lvl == MaxLevel,
	}
}
