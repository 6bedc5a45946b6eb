package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/metrics"
	"matelock-backend/internal/models"
	"matelock-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// DefaultPauseDuration is how long an approved break suspends enforcement.
const DefaultPauseDuration = 5 * time.Minute

// BreakService handles break requests and the pauses they grant.
//
// A request lives under the requester's id and a pause under the paused
// user's device policy, written by the partner. Approval performs the two
// writes one after the other; if the second fails the requester asks again.
type BreakService struct {
	pairs         *PairService
	breakRepo     *repository.BreakRepository
	store         docstore.Store
	notifier      Notifier
	pauseDuration time.Duration

	now func() time.Time
}

// NewBreakService creates a new break service
func NewBreakService(
	store docstore.Store,
	pairs *PairService,
	breakRepo *repository.BreakRepository,
	notifier Notifier,
	pauseDuration time.Duration,
) *BreakService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if pauseDuration <= 0 {
		pauseDuration = DefaultPauseDuration
	}
	return &BreakService{
		pairs:         pairs,
		breakRepo:     breakRepo,
		store:         store,
		notifier:      notifier,
		pauseDuration: pauseDuration,
		now:           time.Now,
	}
}

// RequestBreak creates or replaces the caller's pending request
func (s *BreakService) RequestBreak(ctx context.Context, userID string) (*models.BreakRequest, error) {
	pair, partnerID, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}

	req := &models.BreakRequest{
		UserID:      userID,
		Status:      models.BreakPending,
		RequestedAt: s.now(),
		RequestedBy: userID,
	}
	if err := s.breakRepo.UpsertRequest(ctx, pair.ID, req); err != nil {
		return nil, err
	}

	metrics.ObserveBreakEvent("requested")
	log.Info().Str("user_id", userID).Str("pair_id", pair.ID).Msg("Break requested")
	s.notify(ctx, partnerID, Event{Type: EventBreakRequested, PairID: pair.ID, FromUserID: userID})
	return req, nil
}

// CancelBreakRequest withdraws the caller's own request
func (s *BreakService) CancelBreakRequest(ctx context.Context, userID string) error {
	pair, partnerID, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.breakRepo.DeleteRequest(ctx, pair.ID, userID); err != nil {
		return err
	}

	metrics.ObserveBreakEvent("cancelled")
	s.notify(ctx, partnerID, Event{Type: EventBreakCancelled, PairID: pair.ID, FromUserID: userID})
	return nil
}

// ApproveBreakRequest marks the partner's request approved and then pauses
// the partner's enforcement.
func (s *BreakService) ApproveBreakRequest(ctx context.Context, approverID, requesterID string) (*models.DevicePolicy, error) {
	pair, err := s.decide(ctx, approverID, requesterID, models.BreakApproved)
	if err != nil {
		return nil, err
	}

	now := s.now()
	until := now.Add(s.pauseDuration)
	policy, err := s.breakRepo.SetPauseUntil(ctx, pair.ID, requesterID, &until, approverID, now)
	if err != nil {
		return nil, err
	}

	metrics.ObserveBreakEvent("approved")
	log.Info().
		Str("user_id", approverID).
		Str("requester_id", requesterID).
		Time("pause_until", until).
		Msg("Break approved")
	s.notify(ctx, requesterID, Event{Type: EventBreakApproved, PairID: pair.ID, FromUserID: approverID})
	return policy, nil
}

// RejectBreakRequest marks the partner's request rejected
func (s *BreakService) RejectBreakRequest(ctx context.Context, approverID, requesterID string) error {
	pair, err := s.decide(ctx, approverID, requesterID, models.BreakRejected)
	if err != nil {
		return err
	}

	metrics.ObserveBreakEvent("rejected")
	s.notify(ctx, requesterID, Event{Type: EventBreakRejected, PairID: pair.ID, FromUserID: approverID})
	return nil
}

// decide sets the status of requesterID's request on behalf of their partner.
func (s *BreakService) decide(ctx context.Context, approverID, requesterID string, status models.BreakStatus) (*models.Pair, error) {
	pair, partnerID, err := s.pairs.FinalizedPair(ctx, approverID)
	if err != nil {
		return nil, err
	}
	if requesterID != partnerID {
		return nil, ErrForbidden
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		req, err := s.breakRepo.GetRequest(ctx, tx, pair.ID, requesterID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if req.Status != models.BreakPending {
			return ErrBreakNotPending
		}
		return s.breakRepo.SetRequestStatus(tx, pair.ID, requesterID, status)
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// CancelBreak ends the caller's own pause early
func (s *BreakService) CancelBreak(ctx context.Context, userID string) (*models.DevicePolicy, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	policy, err := s.breakRepo.SetPauseUntil(ctx, pair.ID, userID, nil, userID, s.now())
	if err != nil {
		return nil, err
	}

	metrics.ObserveBreakEvent("pause_cancelled")
	log.Info().Str("user_id", userID).Msg("Pause ended early")
	return policy, nil
}

// GetPolicy returns the caller's device policy
func (s *BreakService) GetPolicy(ctx context.Context, userID string) (*models.DevicePolicy, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.breakRepo.GetPolicy(ctx, pair.ID, userID)
}

// ListRequests returns the requests of both members that currently exist
func (s *BreakService) ListRequests(ctx context.Context, userID string) ([]*models.BreakRequest, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}

	requests := make([]*models.BreakRequest, 0, 2)
	for _, memberID := range []string{pair.MemberA, pair.MemberB} {
		req, err := s.breakRepo.GetRequest(ctx, s.store, pair.ID, memberID)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list break requests: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// WatchPolicy subscribes to the caller's device policy
func (s *BreakService) WatchPolicy(ctx context.Context, userID string) (*docstore.Subscription, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.breakRepo.WatchPolicy(ctx, pair.ID, userID)
}

// WatchRequest subscribes to the break request of a pair member
func (s *BreakService) WatchRequest(ctx context.Context, userID, memberID string) (*docstore.Subscription, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := pair.RoleOf(memberID); !ok {
		return nil, ErrForbidden
	}
	return s.breakRepo.WatchRequest(ctx, pair.ID, memberID)
}

func (s *BreakService) notify(ctx context.Context, userID string, event Event) {
	if err := s.notifier.Notify(ctx, userID, event); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("event", event.Type).Msg("Failed to notify user")
	}
}
