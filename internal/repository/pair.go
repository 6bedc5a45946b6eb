package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
)

// PairRepository handles pair documents and their shared spaces
type PairRepository struct {
	store docstore.Store
}

// NewPairRepository creates a new pair repository
func NewPairRepository(store docstore.Store) *PairRepository {
	return &PairRepository{store: store}
}

// GetByID retrieves a pair by ID
func (r *PairRepository) GetByID(ctx context.Context, id string) (*models.Pair, error) {
	return r.Get(ctx, r.store, id)
}

// Get reads a pair through rd, which may be a transaction
func (r *PairRepository) Get(ctx context.Context, rd docstore.Reader, id string) (*models.Pair, error) {
	snap, err := rd.Get(ctx, PairPath(id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("pair not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}
	return decodePair(snap)
}

func decodePair(snap *docstore.Snapshot) (*models.Pair, error) {
	var pair models.Pair
	if err := snap.DataTo(&pair); err != nil {
		return nil, err
	}
	pair.ID = snap.ID()
	return &pair, nil
}

// FindByInviteCode returns the pair currently holding code. The lookup is not
// transactional; callers re-validate inside their transaction.
func (r *PairRepository) FindByInviteCode(ctx context.Context, code string) (*models.Pair, error) {
	snap, err := r.store.FindFirst(ctx, pairsCollection, "inviteCode", code)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("pair not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find pair by invite code: %w", err)
	}
	return decodePair(snap)
}

// InviteCodeExists checks if an open pair already uses code
func (r *PairRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByInviteCode(ctx, code)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check invite code existence: %w", err)
	}
	return true, nil
}

// Create writes a new pair and its empty shared space within tx
func (r *PairRepository) Create(tx docstore.Tx, pair *models.Pair) error {
	if err := tx.Set(PairPath(pair.ID), pair); err != nil {
		return fmt.Errorf("failed to create pair: %w", err)
	}
	space := &models.PairSpace{PairID: pair.ID, CreatedAt: pair.CreatedAt}
	if err := tx.Set(SpacePath(pair.ID), space); err != nil {
		return fmt.Errorf("failed to create pair space: %w", err)
	}
	return nil
}

// Finalize records the joiner and consumes the invite code within tx
func (r *PairRepository) Finalize(tx docstore.Tx, pairID, memberB string, at time.Time) error {
	err := tx.Update(PairPath(pairID), map[string]any{
		"memberB":     memberB,
		"finalizedAt": at,
		"inviteCode":  docstore.DeleteField,
	})
	if err != nil {
		return fmt.Errorf("failed to finalize pair: %w", err)
	}
	return nil
}
