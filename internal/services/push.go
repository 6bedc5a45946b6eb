package services

import (
	"context"
	"errors"
	"fmt"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsConfig holds the token-based credentials for Apple push
type APNsConfig struct {
	KeyFile    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsNotifier pushes events to the device token stored on the user profile
type APNsNotifier struct {
	client   apnsClient
	topic    string
	userRepo *repository.UserRepository
}

// NewAPNsNotifier creates a notifier from a .p8 signing key
func NewAPNsNotifier(cfg APNsConfig, userRepo *repository.UserRepository) (*APNsNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNsNotifier{client: client, topic: cfg.Topic, userRepo: userRepo}, nil
}

func (n *APNsNotifier) Notify(ctx context.Context, userID string, event Event) error {
	user, err := n.userRepo.GetByID(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return nil
	}

	title, body := alertText(event)
	notification := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       n.topic,
		Payload: payload.NewPayload().
			AlertTitle(title).
			AlertBody(body).
			Sound("default").
			Custom("type", event.Type).
			Custom("pair_id", event.PairID),
	}

	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}

	log.Debug().Str("user_id", userID).Str("event", event.Type).Str("apns_id", res.ApnsID).Msg("Push sent")
	return nil
}

func alertText(event Event) (string, string) {
	switch event.Type {
	case EventPairJoined:
		return "Mate connected", "Your mate joined. Time to agree on your setup."
	case EventSetupTurn:
		return "Your turn", "Your mate is waiting for you in setup."
	case EventSetupComplete:
		return "Setup complete", "You both agreed. Blocking is now active."
	case EventSetupRevised:
		return "Setup reopened", "Your mate started a new round of setup."
	case EventBreakRequested:
		return "Break requested", "Your mate is asking for a short break."
	case EventBreakApproved:
		return "Break approved", "Enjoy your break."
	case EventBreakRejected:
		return "Break declined", "Your mate declined the break."
	case EventBreakCancelled:
		return "Break cancelled", "Your mate withdrew their break request."
	}
	return "Matelock", "Something changed in your pair."
}
