package models

import "time"

// Role identifies which side of a pair a user is on.
// A is the creator of the pair and B the joiner; the labels never change.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// User is the profile document stored under users/{uid}
type User struct {
	ID        string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	PairID    string    `json:"pairId,omitempty"`
	PushToken *string   `json:"pushToken,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasPair reports whether the profile already points at a pair
func (u *User) HasPair() bool {
	return u != nil && u.PairID != ""
}

// Pair represents the relationship between two users
type Pair struct {
	ID          string     `json:"-"`
	MemberA     string     `json:"memberA"`
	MemberB     string     `json:"memberB,omitempty"`
	InviteCode  string     `json:"inviteCode,omitempty"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// IsFinalized reports whether the second member has joined.
func (p *Pair) IsFinalized() bool {
	return p.MemberB != "" || p.FinalizedAt != nil
}

// RoleOf returns the role of userID within the pair.
func (p *Pair) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case p.MemberA == userID:
		return RoleA, true
	case p.MemberB == userID:
		return RoleB, true
	}
	return "", false
}

// PartnerOf returns the other member of the pair.
func (p *Pair) PartnerOf(userID string) (string, bool) {
	switch userID {
	case "":
		return "", false
	case p.MemberA:
		return p.MemberB, p.MemberB != ""
	case p.MemberB:
		return p.MemberA, true
	}
	return "", false
}

// Member returns the user id holding role.
func (p *Pair) Member(role Role) string {
	if role == RoleA {
		return p.MemberA
	}
	return p.MemberB
}

// PairSpace is the shared record created alongside every pair.
type PairSpace struct {
	PairID    string    `json:"pairId"`
	CreatedAt time.Time `json:"createdAt"`
}

// BreakStatus is the lifecycle state of a break request
type BreakStatus string

const (
	BreakPending  BreakStatus = "pending"
	BreakApproved BreakStatus = "approved"
	BreakRejected BreakStatus = "rejected"
)

// BreakRequest is stored under pairSpaces/{pairId}/breakRequests/{uid}
type BreakRequest struct {
	UserID      string      `json:"-"`
	Status      BreakStatus `json:"status"`
	RequestedAt time.Time   `json:"requestedAt"`
	RequestedBy string      `json:"requestedBy"`
}

// DevicePolicy is stored under pairSpaces/{pairId}/devicePolicies/{uid}.
// It is only ever written by the partner of the owning user.
type DevicePolicy struct {
	UserID     string     `json:"-"`
	PauseUntil *time.Time `json:"pauseUntil,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	UpdatedBy  string     `json:"updatedBy"`
}

// IsPaused reports whether the pause is still running at now.
func (p *DevicePolicy) IsPaused(now time.Time) bool {
	return p != nil && p.PauseUntil != nil && now.Before(*p.PauseUntil)
}
