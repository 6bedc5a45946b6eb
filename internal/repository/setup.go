package repository

import (
	"context"
	"errors"
	"fmt"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
)

// SetupRepository handles the consensus document of a pair
type SetupRepository struct {
	store docstore.Store
}

// NewSetupRepository creates a new setup repository
func NewSetupRepository(store docstore.Store) *SetupRepository {
	return &SetupRepository{store: store}
}

// GetByPairID retrieves the current setup document
func (r *SetupRepository) GetByPairID(ctx context.Context, pairID string) (*models.SetupDocument, error) {
	return r.Get(ctx, r.store, pairID)
}

// Get reads the setup document through rd, which may be a transaction
func (r *SetupRepository) Get(ctx context.Context, rd docstore.Reader, pairID string) (*models.SetupDocument, error) {
	snap, err := rd.Get(ctx, SetupPath(pairID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("setup not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get setup: %w", err)
	}
	return DecodeSetup(snap)
}

// DecodeSetup decodes a setup snapshot, e.g. one delivered by Watch
func DecodeSetup(snap *docstore.Snapshot) (*models.SetupDocument, error) {
	var doc models.SetupDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save replaces the setup document within tx
func (r *SetupRepository) Save(tx docstore.Tx, pairID string, doc *models.SetupDocument) error {
	if err := tx.Set(SetupPath(pairID), doc); err != nil {
		return fmt.Errorf("failed to save setup: %w", err)
	}
	return nil
}

// Watch subscribes to the setup document of a pair
func (r *SetupRepository) Watch(ctx context.Context, pairID string) (*docstore.Subscription, error) {
	return r.store.Watch(ctx, SetupPath(pairID))
}
