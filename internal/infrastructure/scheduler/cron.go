package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron"
)

// CronSchedule fires on a standard five-field cron expression
// ("minute hour day-of-month month day-of-week") or a descriptor such as
// "@daily". Fields are evaluated in the scheduler's timezone.
type CronSchedule struct {
	expr  string
	sched cron.Schedule
}

// ParseCron parses a standard cron expression.
func ParseCron(expr string) (*CronSchedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, sched: sched}, nil
}

// MustParseCron is ParseCron for expressions known at compile time.
func MustParseCron(expr string) *CronSchedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// Next implements Schedule.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.sched.Next(t)
}

func (c *CronSchedule) String() string {
	return c.expr
}
