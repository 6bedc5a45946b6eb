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

// Archiver keeps a copy of every agreed configuration
type Archiver interface {
	Archive(ctx context.Context, pair *models.Pair, doc *models.SetupDocument) error
}

// SetupService runs the phase-gated consensus over a pair's setup document.
// Every mutation re-reads the document inside a transaction and checks the
// caller's step and the exact phase expected for the caller's role; the phase
// is the token that admits one writer at a time.
type SetupService struct {
	store     docstore.Store
	pairs     *PairService
	setupRepo *repository.SetupRepository
	notifier  Notifier
	archiver  Archiver

	now func() time.Time
}

// NewSetupService creates a new setup service. archiver may be nil.
func NewSetupService(
	store docstore.Store,
	pairs *PairService,
	setupRepo *repository.SetupRepository,
	notifier Notifier,
	archiver Archiver,
) *SetupService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SetupService{
		store:     store,
		pairs:     pairs,
		setupRepo: setupRepo,
		notifier:  notifier,
		archiver:  archiver,
		now:       time.Now,
	}
}

// Get returns the current setup document of the user's pair
func (s *SetupService) Get(ctx context.Context, userID string) (*models.SetupDocument, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, err := s.setupRepo.GetByPairID(ctx, pair.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Subscribe watches the setup document of the user's pair. The caller must
// close the subscription.
func (s *SetupService) Subscribe(ctx context.Context, userID string) (*docstore.Subscription, *models.Pair, error) {
	pair, _, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.setupRepo.Watch(ctx, pair.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to watch setup: %w", err)
	}
	return sub, pair, nil
}

// Submit records the caller's proposal for step
func (s *SetupService) Submit(ctx context.Context, userID string, step models.Step, payload models.Payload) (*models.SetupDocument, error) {
	if payload == nil || payload.Step() != step {
		return nil, newInvalidPayload(fmt.Errorf("payload does not belong to step %s", step))
	}
	if err := payload.Validate(); err != nil {
		return nil, newInvalidPayload(err)
	}
	return s.mutate(ctx, opSubmit, userID, func(doc *models.SetupDocument, pair *models.Pair, role models.Role, now time.Time) error {
		return applySubmit(doc, role, userID, step, payload, now)
	})
}

// Approve accepts the partner's proposal for step
func (s *SetupService) Approve(ctx context.Context, userID string, step models.Step) (*models.SetupDocument, error) {
	return s.mutate(ctx, opApprove, userID, func(doc *models.SetupDocument, pair *models.Pair, role models.Role, now time.Time) error {
		return applyApprove(doc, pair, role, userID, step, now)
	})
}

// Reject sends the partner's proposal for step back to them
func (s *SetupService) Reject(ctx context.Context, userID string, step models.Step) (*models.SetupDocument, error) {
	return s.mutate(ctx, opReject, userID, func(doc *models.SetupDocument, pair *models.Pair, role models.Role, now time.Time) error {
		return applyReject(doc, pair, role, step, now)
	})
}

// ReviseAll restarts setup from the first step in any phase, dropping the
// agreed configuration. The pair itself is untouched.
func (s *SetupService) ReviseAll(ctx context.Context, userID string) (*models.SetupDocument, error) {
	return s.mutate(ctx, opRevise, userID, func(doc *models.SetupDocument, _ *models.Pair, _ models.Role, now time.Time) error {
		applyRevise(doc, now)
		return nil
	})
}

type setupMutation func(doc *models.SetupDocument, pair *models.Pair, role models.Role, now time.Time) error

func (s *SetupService) mutate(ctx context.Context, op, userID string, fn setupMutation) (*models.SetupDocument, error) {
	pair, partnerID, err := s.pairs.FinalizedPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, _ := pair.RoleOf(userID)

	var doc *models.SetupDocument
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		doc, err = s.setupRepo.Get(ctx, tx, pair.ID)
		switch {
		case errors.Is(err, docstore.ErrNotFound) && op == opRevise:
			doc = models.NewSetupDocument(s.now())
		case errors.Is(err, docstore.ErrNotFound):
			return ErrNotFound
		case err != nil:
			return err
		}

		if err := fn(doc, pair, role, s.now()); err != nil {
			return err
		}
		return s.setupRepo.Save(tx, pair.ID, doc)
	})
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) {
			metrics.ObserveSetupRejection(op, domainErr.Code)
			log.Debug().
				Str("user_id", userID).
				Str("pair_id", pair.ID).
				Str("operation", op).
				Str("code", domainErr.Code).
				Msg("Setup operation refused")
		}
		return nil, err
	}

	metrics.ObserveSetupTransition(op, string(doc.Phase))
	log.Info().
		Str("user_id", userID).
		Str("pair_id", pair.ID).
		Str("operation", op).
		Str("step", string(doc.Step)).
		Str("phase", string(doc.Phase)).
		Msg("Setup updated")

	s.afterCommit(ctx, op, pair, userID, partnerID, doc)
	return doc, nil
}

// afterCommit runs the side effects of a committed operation. Failures are
// logged and never reach the caller.
func (s *SetupService) afterCommit(ctx context.Context, op string, pair *models.Pair, userID, partnerID string, doc *models.SetupDocument) {
	event := Event{
		PairID:     pair.ID,
		FromUserID: userID,
		Step:       string(doc.Step),
		Phase:      string(doc.Phase),
	}

	switch {
	case op == opRevise:
		event.Type = EventSetupRevised
		s.notify(ctx, partnerID, event)
	case doc.IsComplete():
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, pair, doc); err != nil {
				log.Error().Err(err).Str("pair_id", pair.ID).Msg("Failed to archive agreed configuration")
			}
		}
		event.Type = EventSetupComplete
		s.notify(ctx, pair.MemberA, event)
		s.notify(ctx, pair.MemberB, event)
	default:
		role, ok := doc.Phase.Turn()
		if !ok {
			return
		}
		if next := pair.Member(role); next != userID {
			event.Type = EventSetupTurn
			s.notify(ctx, next, event)
		}
	}
}

func (s *SetupService) notify(ctx context.Context, userID string, event Event) {
	if err := s.notifier.Notify(ctx, userID, event); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("event", event.Type).Msg("Failed to notify user")
	}
}
