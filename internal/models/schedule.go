package models

import "fmt"

const (
	// MinutesPerDay bounds TimeRange values: 0..MinutesPerDay-1.
	MinutesPerDay = 24 * 60
	DaysPerWeek   = 7
)

// TimeRange is a window in minutes since midnight. End before start means
// the window crosses midnight.
type TimeRange struct {
	StartMinutes int `json:"startMinutes"`
	EndMinutes   int `json:"endMinutes"`
}

// CrossesMidnight reports whether the range wraps into the next day.
func (r TimeRange) CrossesMidnight() bool {
	return r.StartMinutes > r.EndMinutes
}

// Contains reports whether minute (of day) falls in [start, end).
func (r TimeRange) Contains(minute int) bool {
	if r.CrossesMidnight() {
		return minute >= r.StartMinutes || minute < r.EndMinutes
	}
	return r.StartMinutes <= minute && minute < r.EndMinutes
}

func (r TimeRange) validate() error {
	if r.StartMinutes < 0 || r.StartMinutes >= MinutesPerDay {
		return fmt.Errorf("start minute %d out of range", r.StartMinutes)
	}
	if r.EndMinutes < 0 || r.EndMinutes >= MinutesPerDay {
		return fmt.Errorf("end minute %d out of range", r.EndMinutes)
	}
	return nil
}

// DaySchedule holds the blocking windows of one weekday
type DaySchedule struct {
	Enabled bool
	Ranges  []TimeRange
}

// WeeklyBlockPlan has one DaySchedule per weekday. Days[0] is weekday 1
// (Sunday) and Days[6] is weekday 7 (Saturday).
type WeeklyBlockPlan struct {
	Days [DaysPerWeek]DaySchedule
}

// Day returns the schedule for a weekday numbered 1..7.
func (p WeeklyBlockPlan) Day(weekday int) DaySchedule {
	if weekday < 1 || weekday > DaysPerWeek {
		return DaySchedule{}
	}
	return p.Days[weekday-1]
}

// Enabled reports whether at least one day is switched on.
func (p WeeklyBlockPlan) Enabled() bool {
	for _, d := range p.Days {
		if d.Enabled {
			return true
		}
	}
	return false
}

// Payload encodes the plan in its wire form; every weekday is present.
func (p WeeklyBlockPlan) Payload() *WeeklySchedulePayload {
	out := &WeeklySchedulePayload{Days: make([]DayPayload, 0, DaysPerWeek)}
	for i, d := range p.Days {
		var ranges []TimeRange
		if d.Ranges != nil {
			ranges = make([]TimeRange, len(d.Ranges))
			copy(ranges, d.Ranges)
		}
		out.Days = append(out.Days, DayPayload{
			Weekday: i + 1,
			Enabled: d.Enabled,
			Ranges:  ranges,
		})
	}
	return out
}

// PlanFromPayload decodes the wire form. Missing weekdays are disabled days
// without ranges.
func PlanFromPayload(p *WeeklySchedulePayload) (WeeklyBlockPlan, error) {
	var plan WeeklyBlockPlan
	if p == nil {
		return plan, nil
	}
	var seen [DaysPerWeek]bool
	for _, d := range p.Days {
		if d.Weekday < 1 || d.Weekday > DaysPerWeek {
			return WeeklyBlockPlan{}, fmt.Errorf("weekday %d out of range", d.Weekday)
		}
		if seen[d.Weekday-1] {
			return WeeklyBlockPlan{}, fmt.Errorf("weekday %d listed twice", d.Weekday)
		}
		seen[d.Weekday-1] = true

		// An empty list stays empty; only an absent one decodes as nil.
		var ranges []TimeRange
		if d.Ranges != nil {
			ranges = make([]TimeRange, 0, len(d.Ranges))
		}
		for _, r := range d.Ranges {
			if err := r.validate(); err != nil {
				return WeeklyBlockPlan{}, fmt.Errorf("weekday %d: %w", d.Weekday, err)
			}
			ranges = append(ranges, r)
		}
		plan.Days[d.Weekday-1] = DaySchedule{Enabled: d.Enabled, Ranges: ranges}
	}
	return plan, nil
}
