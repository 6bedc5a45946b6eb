package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Event types delivered to users.
const (
	EventPairJoined     = "pair_joined"
	EventSetupTurn      = "setup_turn"
	EventSetupComplete  = "setup_complete"
	EventSetupRevised   = "setup_revised"
	EventBreakRequested = "break_requested"
	EventBreakApproved  = "break_approved"
	EventBreakRejected  = "break_rejected"
	EventBreakCancelled = "break_cancelled"
)

// Event tells a user that something in their pair needs attention
type Event struct {
	Type       string `json:"type"`
	PairID     string `json:"pair_id,omitempty"`
	FromUserID string `json:"from_user_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Phase      string `json:"phase,omitempty"`
}

// Notifier delivers events to a user. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID string, event Event) error
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, Event) error { return nil }

// RoutingNotifier sends over the user's WebSocket when connected and falls
// back to a device push otherwise.
type RoutingNotifier struct {
	hub  *WSHub
	push Notifier
}

// NewRoutingNotifier creates a notifier. push may be nil when APNs is not
// configured.
func NewRoutingNotifier(hub *WSHub, push Notifier) *RoutingNotifier {
	if push == nil {
		push = NopNotifier{}
	}
	return &RoutingNotifier{hub: hub, push: push}
}

func (n *RoutingNotifier) Notify(ctx context.Context, userID string, event Event) error {
	if n.hub != nil && n.hub.IsOnline(userID) {
		err := n.hub.SendToUser(userID, WSMessage{Type: event.Type, Data: event})
		if err == nil {
			return nil
		}
		log.Debug().Err(err).Str("user_id", userID).Msg("WebSocket delivery failed, falling back to push")
	}
	return n.push.Notify(ctx, userID, event)
}
