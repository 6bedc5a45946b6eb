package schedule

import (
	"testing"
	"time"

	"matelock-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func planFor(weekday int, ranges ...models.TimeRange) models.WeeklyBlockPlan {
	var plan models.WeeklyBlockPlan
	plan.Days[weekday-1] = models.DaySchedule{Enabled: true, Ranges: ranges}
	return plan
}

func at(day, hour, minute int) time.Time {
	// 2026-03-01 is a Sunday.
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestWeekday(t *testing.T) {
	assert.Equal(t, 1, Weekday(at(1, 12, 0)))
	assert.Equal(t, 2, Weekday(at(2, 12, 0)))
	assert.Equal(t, 7, Weekday(at(7, 12, 0)))
}

func TestIsActive(t *testing.T) {
	overnight := models.TimeRange{StartMinutes: 22 * 60, EndMinutes: 6 * 60}
	office := models.TimeRange{StartMinutes: 9 * 60, EndMinutes: 17 * 60}

	tests := []struct {
		name string
		plan models.WeeklyBlockPlan
		now  time.Time
		want bool
	}{
		{"overnight late evening", planFor(2, overnight), at(2, 23, 30), true},
		{"overnight early morning", planFor(2, overnight), at(2, 5, 59), true},
		{"overnight midday", planFor(2, overnight), at(2, 12, 0), false},
		{"overnight end is exclusive", planFor(2, overnight), at(2, 6, 0), false},
		{"office hours inside", planFor(2, office), at(2, 10, 0), true},
		{"office hours after", planFor(2, office), at(2, 18, 0), false},
		{"office start is inclusive", planFor(2, office), at(2, 9, 0), true},
		{"other weekday", planFor(2, office), at(3, 10, 0), false},
		{"disabled day", func() models.WeeklyBlockPlan {
			p := planFor(2, office)
			p.Days[1].Enabled = false
			return p
		}(), at(2, 10, 0), false},
		{"enabled day without ranges", planFor(2), at(2, 10, 0), false},
		{"empty plan", models.WeeklyBlockPlan{}, at(2, 10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsActive(tt.plan, tt.now))
		})
	}
}

func TestIsActiveUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	plan := planFor(2, models.TimeRange{StartMinutes: 9 * 60, EndMinutes: 17 * 60})

	// Monday 01:00 UTC is Monday 10:00 in Tokyo.
	now := at(2, 1, 0)
	assert.False(t, IsActive(plan, now))
	assert.True(t, IsActive(plan, now.In(tokyo)))
}
