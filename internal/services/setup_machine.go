package services

import (
	"time"

	"matelock-backend/internal/models"
)

// Setup operations, also used as metric labels.
const (
	opSubmit  = "submit"
	opApprove = "approve"
	opReject  = "reject"
	opRevise  = "revise"
)

// The functions below mutate a freshly read setup document in place. They
// return a domain error and leave doc untouched when a guard fails; the
// caller discards doc in that case.

// checkTurn verifies the step and the exact phase the caller expects.
func checkTurn(doc *models.SetupDocument, step models.Step, want models.Phase) error {
	if doc.Step != step {
		return ErrNotInStep
	}
	if doc.Phase != want {
		return ErrPhaseChanged
	}
	return nil
}

func applySubmit(doc *models.SetupDocument, role models.Role, userID string, step models.Step, payload models.Payload, now time.Time) error {
	if err := checkTurn(doc, step, models.SubmissionPhase(role)); err != nil {
		return err
	}

	doc.Answers[userID] = payload
	doc.Submitted[userID] = true
	doc.Phase = models.ApprovalPhase(role.Other())
	doc.UpdatedAt = now
	return nil
}

// proposal returns the payload the partner of role submitted on this step.
func proposal(doc *models.SetupDocument, pair *models.Pair, role models.Role) (string, models.Payload, error) {
	proposer := pair.Member(role.Other())
	payload, ok := doc.Answers[proposer]
	if !ok || payload == nil || !doc.Submitted[proposer] {
		return "", nil, ErrNoPartnerDataYet
	}
	return proposer, payload, nil
}

func applyApprove(doc *models.SetupDocument, pair *models.Pair, role models.Role, userID string, step models.Step, now time.Time) error {
	if err := checkTurn(doc, step, models.ApprovalPhase(role)); err != nil {
		return err
	}
	proposer, payload, err := proposal(doc, pair, role)
	if err != nil {
		return err
	}

	doc.ApprovedAnswers[proposer] = doc.ApprovedAnswers[proposer].With(payload)
	doc.Approvals[userID] = true
	doc.UpdatedAt = now

	switch {
	case step == models.StepAppSelection:
		// The selection is shared; its cycle ends after A's proposal.
		doc.AdvanceStep(models.StepWeeklySchedule)
		doc.Phase = models.PhaseAwaitingASubmission
	case role == models.RoleB:
		doc.Phase = models.PhaseAwaitingBSubmission
	default:
		doc.Phase = models.PhaseComplete
		completed := now
		doc.CompletedAt = &completed
	}
	return nil
}

func applyReject(doc *models.SetupDocument, pair *models.Pair, role models.Role, step models.Step, now time.Time) error {
	if err := checkTurn(doc, step, models.ApprovalPhase(role)); err != nil {
		return err
	}
	proposer, _, err := proposal(doc, pair, role)
	if err != nil {
		return err
	}

	// The draft stays in answers so the proposer can edit it.
	delete(doc.Submitted, proposer)
	doc.Approvals = map[string]bool{}
	doc.Phase = models.SubmissionPhase(role.Other())
	doc.UpdatedAt = now
	return nil
}

func applyRevise(doc *models.SetupDocument, now time.Time) {
	doc.Reset(now)
}
