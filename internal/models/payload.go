package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Payload is a step-specific answer. The concrete type is chosen by the
// setup document's step: *AppSelectionPayload or *WeeklySchedulePayload.
type Payload interface {
	Step() Step
	Validate() error
}

// AppSelectionPayload lists the opaque shield tokens to block
type AppSelectionPayload struct {
	AppTokens      []string `json:"appTokens"`
	CategoryTokens []string `json:"categoryTokens"`
}

func (p *AppSelectionPayload) Step() Step { return StepAppSelection }

// Validate checks that every token is standard base64.
func (p *AppSelectionPayload) Validate() error {
	for _, tokens := range [][]string{p.AppTokens, p.CategoryTokens} {
		for _, t := range tokens {
			if t == "" {
				return fmt.Errorf("empty token")
			}
			if _, err := base64.StdEncoding.DecodeString(t); err != nil {
				return fmt.Errorf("token %q is not base64: %w", t, err)
			}
		}
	}
	return nil
}

// IsEmpty reports whether nothing is selected.
func (p *AppSelectionPayload) IsEmpty() bool {
	return p == nil || (len(p.AppTokens) == 0 && len(p.CategoryTokens) == 0)
}

// DayPayload is the wire form of one DaySchedule
type DayPayload struct {
	Weekday int         `json:"weekday"`
	Enabled bool        `json:"enabled"`
	Ranges  []TimeRange `json:"ranges"`
}

// WeeklySchedulePayload is the wire form of a WeeklyBlockPlan
type WeeklySchedulePayload struct {
	Days []DayPayload `json:"days"`
}

func (p *WeeklySchedulePayload) Step() Step { return StepWeeklySchedule }

// Validate decodes the payload into a plan and discards the result.
func (p *WeeklySchedulePayload) Validate() error {
	_, err := PlanFromPayload(p)
	return err
}

// DecodePayload decodes raw JSON into the payload type that belongs to step.
func DecodePayload(step Step, raw []byte) (Payload, error) {
	var p Payload
	switch step {
	case StepAppSelection:
		p = &AppSelectionPayload{}
	case StepWeeklySchedule:
		p = &WeeklySchedulePayload{}
	default:
		return nil, fmt.Errorf("unknown step %q", step)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", step, err)
	}
	return p, nil
}

// ApprovedConfig holds what a user proposed and their partner approved,
// one entry per step.
type ApprovedConfig struct {
	AppSelection   *AppSelectionPayload   `json:"appSelection,omitempty"`
	WeeklySchedule *WeeklySchedulePayload `json:"weeklySchedule,omitempty"`
}

// With returns a copy of c with the payload recorded under its step.
func (c ApprovedConfig) With(p Payload) ApprovedConfig {
	switch v := p.(type) {
	case *AppSelectionPayload:
		c.AppSelection = v
	case *WeeklySchedulePayload:
		c.WeeklySchedule = v
	}
	return c
}

// Has reports whether a payload was approved for step.
func (c ApprovedConfig) Has(step Step) bool {
	switch step {
	case StepAppSelection:
		return c.AppSelection != nil
	case StepWeeklySchedule:
		return c.WeeklySchedule != nil
	}
	return false
}
