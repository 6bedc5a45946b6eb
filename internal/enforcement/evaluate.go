// Package enforcement mirrors the agreed configuration and pause state of one
// user onto the device's shield.
package enforcement

import (
	"time"

	"matelock-backend/internal/models"
	"matelock-backend/internal/schedule"
)

// Shield is the operating system blocking mechanism
type Shield interface {
	IsAuthorized() bool
	Apply(selection Selection, active bool) error
}

// Selection is what the shield blocks. All blocks every app and category.
type Selection struct {
	AppTokens      []string `json:"app_tokens"`
	CategoryTokens []string `json:"category_tokens"`
	All            bool     `json:"all"`
}

// SelectionFrom converts an agreed app selection.
func SelectionFrom(p *models.AppSelectionPayload) Selection {
	if p == nil {
		return Selection{}
	}
	return Selection{
		AppTokens:      append([]string(nil), p.AppTokens...),
		CategoryTokens: append([]string(nil), p.CategoryTokens...),
	}
}

// State is the locally cached input of an evaluation
type State struct {
	Selection   Selection
	Plan        *models.WeeklyBlockPlan
	ManualBlock bool
	PauseUntil  *time.Time
}

// ScheduleEnabled reports whether a plan is agreed and has an enabled day.
func (s State) ScheduleEnabled() bool {
	return s.Plan != nil && s.Plan.Enabled()
}

// Paused reports whether the pause is running at now.
func (s State) Paused(now time.Time) bool {
	return s.PauseUntil != nil && now.Before(*s.PauseUntil)
}

// Reasons reported with a decision.
const (
	ReasonPaused           = "paused"
	ReasonUnauthorized     = "unauthorized"
	ReasonManual           = "manual"
	ReasonScheduleDisabled = "schedule_disabled"
	ReasonInSchedule       = "in_schedule"
	ReasonOutsideSchedule  = "outside_schedule"
)

// Decision is the result of one evaluation
type Decision struct {
	Active     bool       `json:"active"`
	Reason     string     `json:"reason"`
	Selection  Selection  `json:"selection"`
	PauseUntil *time.Time `json:"pause_until,omitempty"`
}

// Evaluate applies the precedence rules, first match wins: a running pause,
// a missing shield authorization, the manual override, a disabled schedule
// and finally the weekly plan.
func Evaluate(state State, authorized bool, now time.Time) Decision {
	switch {
	case state.Paused(now):
		return Decision{Reason: ReasonPaused, Selection: state.Selection, PauseUntil: state.PauseUntil}
	case !authorized:
		return Decision{Reason: ReasonUnauthorized, Selection: state.Selection}
	case state.ManualBlock:
		return Decision{Active: true, Reason: ReasonManual, Selection: Selection{All: true}}
	case !state.ScheduleEnabled():
		return Decision{Reason: ReasonScheduleDisabled, Selection: state.Selection}
	case schedule.IsActive(*state.Plan, now):
		return Decision{Active: true, Reason: ReasonInSchedule, Selection: state.Selection}
	}
	return Decision{Reason: ReasonOutsideSchedule, Selection: state.Selection}
}

// StateFromSetup fills the agreed selection and plan of userID from a setup
// document. Nothing is agreed until setup is complete.
func StateFromSetup(state State, doc *models.SetupDocument, pair *models.Pair, userID string) (State, error) {
	state.Selection = Selection{}
	state.Plan = nil
	if doc == nil || !doc.IsComplete() {
		return state, nil
	}
	plan, err := doc.AgreedPlan(userID)
	if err != nil {
		return state, err
	}
	state.Selection = SelectionFrom(doc.AgreedSelection(pair, userID))
	state.Plan = plan
	return state, nil
}
