package level

// ══════════════════════════════════════════════════════════════════════════════
// TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Tier - полоса из десяти уровней с названием и бонусами.
type Tier struct {
	// Name - отображаемое название тира.
	Name string `json:"name"`

	// MinLevel и MaxLevel - границы полосы включительно.
	MinLevel int `json:"min_level"`
	MaxLevel int `json:"max_level"`

	// Color - цвет рамки аватара в интерфейсе.
	Color string `json:"color"`

	// Perks - что открывает тир.
	Perks []string `json:"perks"`
}

// Contains проверяет, попадает ли уровень в полосу.
func (t Tier) Contains(l int) bool {
	return l >= t.MinLevel && l <= t.MaxLevel
}

// tiers - таблица тиров, упорядочена по возрастанию уровней.
var tiers = []Tier{
	{Name: "Seedling", MinLevel: 1, MaxLevel: 10, Color: "#8BC34A", Perks: []string{"Basic avatar frames"}},
	{Name: "Sprout", MinLevel: 11, MaxLevel: 20, Color: "#4CAF50", Perks: []string{"Custom profile color"}},
	{Name: "Explorer", MinLevel: 21, MaxLevel: 30, Color: "#00BCD4", Perks: []string{"Explorer avatar frame", "Extra daily challenge slot"}},
	{Name: "Scholar", MinLevel: 31, MaxLevel: 40, Color: "#2196F3", Perks: []string{"Animated badges"}},
	{Name: "Achiever", MinLevel: 41, MaxLevel: 50, Color: "#3F51B5", Perks: []string{"Shop discount 5%"}},
	{Name: "Expert", MinLevel: 51, MaxLevel: 60, Color: "#673AB7", Perks: []string{"Expert title", "Shop discount 10%"}},
	{Name: "Master", MinLevel: 61, MaxLevel: 70, Color: "#9C27B0", Perks: []string{"Master avatar frame"}},
	{Name: "Grandmaster", MinLevel: 71, MaxLevel: 80, Color: "#E91E63", Perks: []string{"Leaderboard highlight"}},
	{Name: "Legend", MinLevel: 81, MaxLevel: 90, Color: "#FF9800", Perks: []string{"Legend title", "Shop discount 15%"}},
	{Name: "Mythic", MinLevel: 91, MaxLevel: 100, Color: "#FFD700", Perks: []string{"Mythic avatar frame", "Hall of fame entry"}},
}

// Tiers возвращает копию таблицы тиров.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// GetTier возвращает тир для уровня. Если уровень не попал ни в одну полосу,
// возвращается самый нижний тир.
func GetTier(l int) Tier {
	for _, t := range tiers {
		if t.Contains(l) {
			return t
		}
	}
	return tiers[0]
}
