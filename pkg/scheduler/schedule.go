package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule determines when a periodic task should run
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return "@every " + s.every.String()
}

// hourlySchedule runs every hour at the given minute
type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("@hourly :%02d", s.minute)
}

// dailySchedule runs once per day at the given wall clock time
type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d", s.hour, s.minute)
}

// Every runs a task at a fixed interval. Non-positive intervals are raised to
// one second.
func Every(d time.Duration) Schedule {
	if d < time.Second {
		d = time.Second
	}
	return intervalSchedule{every: d}
}

// HourlyAt runs a task every hour at the given minute (0-59, clamped).
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: clamp(minute, 59)}
}

// DailyAt runs a task every day at hour:minute (clamped to valid values).
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: clamp(hour, 23), minute: clamp(minute, 59)}
}

// Parse reads a schedule from configuration. Accepted forms:
//
//	@every 6h
//	@hourly :15
//	@daily 03:00
func Parse(s string) (Schedule, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), " ")
	arg = strings.TrimSpace(arg)

	switch kind {
	case "@every":
		d, err := time.ParseDuration(arg)
		if err != nil || d < time.Second {
			return nil, fmt.Errorf("%w: %q needs a duration of at least 1s", ErrInvalidSchedule, s)
		}
		return intervalSchedule{every: d}, nil
	case "@hourly":
		minute, err := strconv.Atoi(strings.TrimPrefix(arg, ":"))
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("%w: %q needs a minute between :00 and :59", ErrInvalidSchedule, s)
		}
		return hourlySchedule{minute: minute}, nil
	case "@daily":
		t, err := time.Parse("15:04", arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q needs a time as HH:MM", ErrInvalidSchedule, s)
		}
		return dailySchedule{hour: t.Hour(), minute: t.Minute()}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
}

func clamp(v, hi int) int {
	return min(max(v, 0), hi)
}
