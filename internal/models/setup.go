package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Step is one of the ordered configuration topics.
type Step string

const (
	StepAppSelection   Step = "appSelection"
	StepWeeklySchedule Step = "weeklySchedule"
)

// Index returns the position of the step, or -1 for unknown steps.
func (s Step) Index() int {
	switch s {
	case StepAppSelection:
		return 0
	case StepWeeklySchedule:
		return 1
	}
	return -1
}

// ParseStep validates a step name received from a client
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if step.Index() < 0 {
		return "", fmt.Errorf("unknown step %q", s)
	}
	return step, nil
}

// Phase is the mutual-exclusion token of the setup state machine.
type Phase string

const (
	PhaseAwaitingASubmission Phase = "awaitingASubmission"
	PhaseAwaitingBApproval   Phase = "awaitingBApproval"
	PhaseAwaitingBSubmission Phase = "awaitingBSubmission"
	PhaseAwaitingAApproval   Phase = "awaitingAApproval"
	PhaseComplete            Phase = "complete"
)

// SubmissionPhase is the phase in which role may propose.
func SubmissionPhase(role Role) Phase {
	if role == RoleA {
		return PhaseAwaitingASubmission
	}
	return PhaseAwaitingBSubmission
}

// ApprovalPhase is the phase in which role may approve or reject.
func ApprovalPhase(role Role) Phase {
	if role == RoleA {
		return PhaseAwaitingAApproval
	}
	return PhaseAwaitingBApproval
}

// Turn returns the role expected to act in phase. Complete has no turn.
func (p Phase) Turn() (Role, bool) {
	switch p {
	case PhaseAwaitingASubmission, PhaseAwaitingAApproval:
		return RoleA, true
	case PhaseAwaitingBSubmission, PhaseAwaitingBApproval:
		return RoleB, true
	}
	return "", false
}

// SetupDocument is the consensus object stored at pairSpaces/{pairId}/setup/current
type SetupDocument struct {
	Step            Step                      `json:"step"`
	StepIndex       int                       `json:"stepIndex"`
	Phase           Phase                     `json:"phase"`
	Answers         map[string]Payload        `json:"answers"`
	Submitted       map[string]bool           `json:"submitted"`
	Approvals       map[string]bool           `json:"approvals"`
	ApprovedAnswers map[string]ApprovedConfig `json:"approvedAnswers"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
	CompletedAt     *time.Time                `json:"completedAt,omitempty"`
}

// NewSetupDocument returns the initial state of a setup cycle.
func NewSetupDocument(now time.Time) *SetupDocument {
	doc := &SetupDocument{ApprovedAnswers: map[string]ApprovedConfig{}}
	doc.resetStep(StepAppSelection)
	doc.Phase = PhaseAwaitingASubmission
	doc.UpdatedAt = now
	return doc
}

func (d *SetupDocument) resetStep(step Step) {
	d.Step = step
	d.StepIndex = step.Index()
	d.Answers = map[string]Payload{}
	d.Submitted = map[string]bool{}
	d.Approvals = map[string]bool{}
}

// AdvanceStep moves to step and clears the step-scoped maps.
func (d *SetupDocument) AdvanceStep(step Step) {
	d.resetStep(step)
}

// Reset returns the document to its initial state, dropping the agreed configuration.
func (d *SetupDocument) Reset(now time.Time) {
	*d = *NewSetupDocument(now)
}

// IsComplete reports whether both steps have been agreed.
func (d *SetupDocument) IsComplete() bool {
	return d.Phase == PhaseComplete
}

// AgreedSelection returns the app selection that applies to userID: the one
// approved about the user, falling back to the pair creator's shared selection.
func (d *SetupDocument) AgreedSelection(pair *Pair, userID string) *AppSelectionPayload {
	if cfg, ok := d.ApprovedAnswers[userID]; ok && cfg.AppSelection != nil {
		return cfg.AppSelection
	}
	if cfg, ok := d.ApprovedAnswers[pair.MemberA]; ok {
		return cfg.AppSelection
	}
	return nil
}

// AgreedPlan returns the weekly plan approved about userID.
func (d *SetupDocument) AgreedPlan(userID string) (*WeeklyBlockPlan, error) {
	cfg, ok := d.ApprovedAnswers[userID]
	if !ok || cfg.WeeklySchedule == nil {
		return nil, nil
	}
	plan, err := PlanFromPayload(cfg.WeeklySchedule)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

type setupDocumentWire struct {
	Step            Step                       `json:"step"`
	StepIndex       int                        `json:"stepIndex"`
	Phase           Phase                      `json:"phase"`
	Answers         map[string]json.RawMessage `json:"answers"`
	Submitted       map[string]bool            `json:"submitted"`
	Approvals       map[string]bool            `json:"approvals"`
	ApprovedAnswers map[string]ApprovedConfig  `json:"approvedAnswers"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
	CompletedAt     *time.Time                 `json:"completedAt,omitempty"`
}

// UnmarshalJSON decodes answers using the document's step as the discriminant.
func (d *SetupDocument) UnmarshalJSON(data []byte) error {
	var w setupDocumentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	answers := make(map[string]Payload, len(w.Answers))
	for uid, raw := range w.Answers {
		p, err := DecodePayload(w.Step, raw)
		if err != nil {
			return fmt.Errorf("answer of %s: %w", uid, err)
		}
		answers[uid] = p
	}
	*d = SetupDocument{
		Step:            w.Step,
		StepIndex:       w.StepIndex,
		Phase:           w.Phase,
		Answers:         answers,
		Submitted:       nonNilBools(w.Submitted),
		Approvals:       nonNilBools(w.Approvals),
		ApprovedAnswers: w.ApprovedAnswers,
		UpdatedAt:       w.UpdatedAt,
		CompletedAt:     w.CompletedAt,
	}
	if d.ApprovedAnswers == nil {
		d.ApprovedAnswers = map[string]ApprovedConfig{}
	}
	return nil
}

func nonNilBools(m map[string]bool) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return m
}
