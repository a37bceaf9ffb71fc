package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval after registration.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule. Intervals below one second are raised to one second.
func Every(interval time.Duration) IntervalSchedule {
	if interval < time.Second {
		interval = time.Second
	}
	return IntervalSchedule{Interval: interval}
}

// Next implements Schedule.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// ParseSchedule accepts "@every <duration>" or a standard cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	var every string
	if n, _ := fmt.Sscanf(expr, "@every %s", &every); n == 1 {
		d, err := time.ParseDuration(every)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", expr, err)
		}
		return Every(d), nil
	}
	return ParseCron(expr)
}
