// Package schedule decides whether a weekly block plan is in force.
package schedule

import (
	"time"

	"matelock-backend/internal/models"
)

// Weekday numbers t's day of week from 1 (Sunday) to 7 (Saturday).
func Weekday(t time.Time) int {
	return int(t.Weekday()) + 1
}

// MinuteOfDay returns minutes since local midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// IsActive reports whether now falls inside an enabled range of now's
// weekday, in now's location. A range that crosses midnight is checked
// against the day it starts on only.
func IsActive(plan models.WeeklyBlockPlan, now time.Time) bool {
	day := plan.Day(Weekday(now))
	if !day.Enabled {
		return false
	}
	minute := MinuteOfDay(now)
	for _, r := range day.Ranges {
		if r.Contains(minute) {
			return true
		}
	}
	return false
}
