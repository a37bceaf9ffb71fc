// Package streak считает серии последовательных дней активности.
//
// День - календарная дата в часовом поясе школы (см. pkg/timeutil).
// Несколько действий за одну дату считаются одним днём.
package streak

import (
	"sort"
	"time"

	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// Result - текущая и лучшая серии.
type Result struct {
	// Current - серия, которая заканчивается сегодня или вчера.
	Current int `json:"current"`

	// Longest - самая длинная серия за всю историю.
	Longest int `json:"longest"`
}

// Calculate считает серии по неупорядоченному набору отметок времени.
//
// Текущая серия отсчитывается назад от сегодняшней даты, а если сегодня
// активности не было - от вчерашней. Пустой вход даёт {0, 0}.
func Calculate(activity []time.Time, now time.Time, loc *time.Location) Result {
	days := distinctDays(activity, loc)
	if len(days) == 0 {
		return Result{}
	}

	return Result{
		Current: currentRun(days, timeutil.CivilDay(now, loc)),
		Longest: longestRun(days),
	}
}

// distinctDays возвращает отсортированный список уникальных дат.
func distinctDays(activity []time.Time, loc *time.Location) []int {
	seen := make(map[int]struct{}, len(activity))
	days := make([]int, 0, len(activity))
	for _, ts := range activity {
		if ts.IsZero() {
			continue
		}
		d := timeutil.CivilDay(ts, loc)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

func longestRun(days []int) int {
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] == 1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

func currentRun(days []int, today int) int {
	set := make(map[int]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}

	anchor := today
	if _, ok := set[today]; !ok {
		anchor = today - 1
		if _, ok := set[anchor]; !ok {
			return 0
		}
	}

	run := 0
	for d := anchor; ; d-- {
		if _, ok := set[d]; !ok {
			break
		}
		run++
	}
	return run
}
