package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairRoles(t *testing.T) {
	pair := &Pair{MemberA: "alice", MemberB: "bob"}

	role, ok := pair.RoleOf("alice")
	require.True(t, ok)
	assert.Equal(t, RoleA, role)
	assert.Equal(t, RoleB, role.Other())
	assert.Equal(t, "bob", pair.Member(role.Other()))

	partner, ok := pair.PartnerOf("bob")
	require.True(t, ok)
	assert.Equal(t, "alice", partner)

	_, ok = pair.RoleOf("mallory")
	assert.False(t, ok)
	_, ok = pair.RoleOf("")
	assert.False(t, ok)

	pending := &Pair{MemberA: "alice"}
	assert.False(t, pending.IsFinalized())
	_, ok = pending.PartnerOf("alice")
	assert.False(t, ok)
}

func TestPhaseTurn(t *testing.T) {
	tests := []struct {
		phase Phase
		role  Role
		ok    bool
	}{
		{PhaseAwaitingASubmission, RoleA, true},
		{PhaseAwaitingBApproval, RoleB, true},
		{PhaseAwaitingBSubmission, RoleB, true},
		{PhaseAwaitingAApproval, RoleA, true},
		{PhaseComplete, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			role, ok := tt.phase.Turn()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.role, role)
		})
	}

	assert.Equal(t, PhaseAwaitingBSubmission, SubmissionPhase(RoleB))
	assert.Equal(t, PhaseAwaitingAApproval, ApprovalPhase(RoleA))
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep("weeklySchedule")
	require.NoError(t, err)
	assert.Equal(t, 1, step.Index())

	_, err = ParseStep("bedtime")
	assert.Error(t, err)
}

func TestPlanPayloadRoundTrip(t *testing.T) {
	var plan WeeklyBlockPlan
	plan.Days[1] = DaySchedule{Enabled: true, Ranges: []TimeRange{{StartMinutes: 22 * 60, EndMinutes: 6 * 60}}}
	plan.Days[3] = DaySchedule{Enabled: false}

	payload := plan.Payload()
	require.Len(t, payload.Days, DaysPerWeek)
	assert.Equal(t, 2, payload.Days[1].Weekday)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	decoded, err := DecodePayload(StepWeeklySchedule, raw)
	require.NoError(t, err)
	back, err := PlanFromPayload(decoded.(*WeeklySchedulePayload))
	require.NoError(t, err)

	assert.True(t, back.Enabled())
	assert.Equal(t, plan.Days[1].Ranges, back.Day(2).Ranges)
	assert.Empty(t, back.Day(4).Ranges)
	assert.Equal(t, DaySchedule{}, back.Day(8))
}

func TestPlanPayloadRoundTripEqual(t *testing.T) {
	var plan WeeklyBlockPlan
	plan.Days[0] = DaySchedule{Enabled: true, Ranges: []TimeRange{}}
	plan.Days[2] = DaySchedule{Enabled: true, Ranges: []TimeRange{
		{StartMinutes: 9 * 60, EndMinutes: 12 * 60},
		{StartMinutes: 13 * 60, EndMinutes: 17 * 60},
	}}
	plan.Days[5] = DaySchedule{Enabled: false, Ranges: []TimeRange{}}
	plan.Days[6] = DaySchedule{Enabled: true, Ranges: []TimeRange{{StartMinutes: 23 * 60, EndMinutes: 30}}}

	raw, err := json.Marshal(plan.Payload())
	require.NoError(t, err)
	decoded, err := DecodePayload(StepWeeklySchedule, raw)
	require.NoError(t, err)
	back, err := PlanFromPayload(decoded.(*WeeklySchedulePayload))
	require.NoError(t, err)

	assert.Equal(t, plan, back)
	assert.NotNil(t, back.Day(1).Ranges)
	assert.Nil(t, back.Day(2).Ranges)
}

func TestPlanFromPayloadMissingDays(t *testing.T) {
	plan, err := PlanFromPayload(&WeeklySchedulePayload{Days: []DayPayload{{Weekday: 7, Enabled: true}}})
	require.NoError(t, err)
	assert.True(t, plan.Day(7).Enabled)
	assert.False(t, plan.Day(1).Enabled)

	empty, err := PlanFromPayload(nil)
	require.NoError(t, err)
	assert.False(t, empty.Enabled())
}

func TestPlanFromPayloadRejects(t *testing.T) {
	tests := map[string]*WeeklySchedulePayload{
		"weekday zero":      {Days: []DayPayload{{Weekday: 0}}},
		"weekday eight":     {Days: []DayPayload{{Weekday: 8}}},
		"duplicate day":     {Days: []DayPayload{{Weekday: 2}, {Weekday: 2}}},
		"negative start":    {Days: []DayPayload{{Weekday: 1, Ranges: []TimeRange{{StartMinutes: -1, EndMinutes: 10}}}}},
		"end past midnight": {Days: []DayPayload{{Weekday: 1, Ranges: []TimeRange{{StartMinutes: 0, EndMinutes: MinutesPerDay}}}}},
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, payload.Validate())
		})
	}
}

func TestTimeRangeContains(t *testing.T) {
	overnight := TimeRange{StartMinutes: 22 * 60, EndMinutes: 6 * 60}
	assert.True(t, overnight.CrossesMidnight())
	assert.True(t, overnight.Contains(23*60))
	assert.True(t, overnight.Contains(0))
	assert.False(t, overnight.Contains(6*60))
	assert.False(t, overnight.Contains(12*60))

	office := TimeRange{StartMinutes: 9 * 60, EndMinutes: 17 * 60}
	assert.True(t, office.Contains(9*60))
	assert.False(t, office.Contains(17*60))

	empty := TimeRange{StartMinutes: 600, EndMinutes: 600}
	assert.False(t, empty.Contains(600))
}

func TestAppSelectionValidate(t *testing.T) {
	ok := &AppSelectionPayload{AppTokens: []string{"YXBwMQ=="}, CategoryTokens: []string{"Y2F0"}}
	assert.NoError(t, ok.Validate())
	assert.False(t, ok.IsEmpty())

	assert.Error(t, (&AppSelectionPayload{AppTokens: []string{""}}).Validate())
	assert.Error(t, (&AppSelectionPayload{CategoryTokens: []string{"not base64!"}}).Validate())
	assert.True(t, (&AppSelectionPayload{}).IsEmpty())
}

func TestDecodePayloadUnknownStep(t *testing.T) {
	_, err := DecodePayload(Step("bedtime"), []byte(`{}`))
	assert.Error(t, err)

	_, err = DecodePayload(StepAppSelection, []byte(`{"appTokens": 3}`))
	assert.Error(t, err)
}

func TestSetupDocumentJSON(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	doc := NewSetupDocument(now)
	doc.Answers["alice"] = &AppSelectionPayload{AppTokens: []string{"YXBwMQ=="}}
	doc.Submitted["alice"] = true
	doc.Phase = PhaseAwaitingBApproval
	doc.ApprovedAnswers["bob"] = ApprovedConfig{}.With(&AppSelectionPayload{CategoryTokens: []string{"Y2F0"}})

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var back SetupDocument
	require.NoError(t, json.Unmarshal(raw, &back))

	assert.Equal(t, StepAppSelection, back.Step)
	assert.Equal(t, PhaseAwaitingBApproval, back.Phase)
	require.IsType(t, &AppSelectionPayload{}, back.Answers["alice"])
	assert.Equal(t, []string{"YXBwMQ=="}, back.Answers["alice"].(*AppSelectionPayload).AppTokens)
	assert.True(t, back.Submitted["alice"])
	assert.NotNil(t, back.Approvals)
	assert.True(t, back.ApprovedAnswers["bob"].Has(StepAppSelection))
	assert.False(t, back.ApprovedAnswers["bob"].Has(StepWeeklySchedule))
	assert.True(t, now.Equal(back.UpdatedAt))
	assert.Nil(t, back.CompletedAt)
}

func TestSetupDocumentWeeklyAnswers(t *testing.T) {
	raw := []byte(`{
		"step": "weeklySchedule",
		"stepIndex": 1,
		"phase": "awaitingAApproval",
		"answers": {"bob": {"days": [{"weekday": 2, "enabled": true, "ranges": [{"startMinutes": 60, "endMinutes": 120}]}]}}
	}`)

	var doc SetupDocument
	require.NoError(t, json.Unmarshal(raw, &doc))

	payload, ok := doc.Answers["bob"].(*WeeklySchedulePayload)
	require.True(t, ok)
	require.Len(t, payload.Days, 1)
	assert.Equal(t, 2, payload.Days[0].Weekday)
	assert.NotNil(t, doc.Submitted)
	assert.NotNil(t, doc.ApprovedAnswers)
}

func TestAgreedSelectionFallsBackToMemberA(t *testing.T) {
	pair := &Pair{MemberA: "alice", MemberB: "bob"}
	shared := &AppSelectionPayload{AppTokens: []string{"c2hhcmVk"}}
	doc := NewSetupDocument(time.Now())
	doc.ApprovedAnswers["alice"] = ApprovedConfig{AppSelection: shared}
	doc.ApprovedAnswers["bob"] = ApprovedConfig{WeeklySchedule: &WeeklySchedulePayload{}}

	assert.Same(t, shared, doc.AgreedSelection(pair, "bob"))
	assert.Same(t, shared, doc.AgreedSelection(pair, "alice"))

	plan, err := doc.AgreedPlan("bob")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.False(t, plan.Enabled())

	plan, err = doc.AgreedPlan("alice")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestDevicePolicyIsPaused(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	assert.True(t, (&DevicePolicy{PauseUntil: &until}).IsPaused(now))
	assert.False(t, (&DevicePolicy{PauseUntil: &until}).IsPaused(until))
	assert.False(t, (&DevicePolicy{}).IsPaused(now))

	var none *DevicePolicy
	assert.False(t, none.IsPaused(now))
}
