package enforcement

import (
	"context"
	"errors"
	"fmt"

	"matelock-backend/internal/models"
	"matelock-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ErrSubscriptionClosed is returned by Follow when a watch ends on its own.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Follow feeds r with the setup document of pair and the device policy of
// userID until ctx is done. A partner change means a new pair: cancel and
// call Follow again.
func Follow(
	ctx context.Context,
	r *Reflector,
	setups *repository.SetupRepository,
	breaks *repository.BreakRepository,
	pair *models.Pair,
	userID string,
) error {
	setupSub, err := setups.Watch(ctx, pair.ID)
	if err != nil {
		return fmt.Errorf("failed to watch setup: %w", err)
	}
	defer setupSub.Close()

	policySub, err := breaks.WatchPolicy(ctx, pair.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to watch device policy: %w", err)
	}
	defer policySub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-setupSub.C:
			if !ok {
				return closed(ctx)
			}
			var doc *models.SetupDocument
			if snap.Exists {
				if doc, err = repository.DecodeSetup(snap); err != nil {
					log.Error().Err(err).Str("pair_id", pair.ID).Msg("Failed to decode setup snapshot")
					continue
				}
			}
			err := r.Update(ctx, func(s *State) {
				next, err := StateFromSetup(*s, doc, pair, userID)
				if err != nil {
					log.Error().Err(err).Str("user_id", userID).Msg("Failed to read agreed configuration")
					return
				}
				*s = next
			})
			if err != nil {
				return err
			}

		case snap, ok := <-policySub.C:
			if !ok {
				return closed(ctx)
			}
			policy, err := repository.DecodePolicy(snap)
			if err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to decode device policy")
				continue
			}
			if err := r.SetPauseUntil(ctx, policy.PauseUntil); err != nil {
				return err
			}
		}
	}
}

// closed reports why a subscription channel ended.
func closed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrSubscriptionClosed
}
