package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
)

// BreakRepository handles break requests and device policies of a pair
type BreakRepository struct {
	store docstore.Store
}

// NewBreakRepository creates a new break repository
func NewBreakRepository(store docstore.Store) *BreakRepository {
	return &BreakRepository{store: store}
}

// UpsertRequest writes the break request of userID
func (r *BreakRepository) UpsertRequest(ctx context.Context, pairID string, req *models.BreakRequest) error {
	if err := docstore.SetDocument(ctx, r.store, BreakRequestPath(pairID, req.UserID), req); err != nil {
		return fmt.Errorf("failed to upsert break request: %w", err)
	}
	return nil
}

// DeleteRequest removes the break request of userID
func (r *BreakRepository) DeleteRequest(ctx context.Context, pairID, userID string) error {
	if err := docstore.DeleteDocument(ctx, r.store, BreakRequestPath(pairID, userID)); err != nil {
		return fmt.Errorf("failed to delete break request: %w", err)
	}
	return nil
}

// GetRequest retrieves the break request of userID
func (r *BreakRepository) GetRequest(ctx context.Context, rd docstore.Reader, pairID, userID string) (*models.BreakRequest, error) {
	snap, err := rd.Get(ctx, BreakRequestPath(pairID, userID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("break request not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get break request: %w", err)
	}
	return DecodeBreakRequest(snap)
}

// DecodeBreakRequest decodes a break request snapshot
func DecodeBreakRequest(snap *docstore.Snapshot) (*models.BreakRequest, error) {
	var req models.BreakRequest
	if err := snap.DataTo(&req); err != nil {
		return nil, err
	}
	req.UserID = snap.ID()
	return &req, nil
}

// SetRequestStatus changes the status of an existing request within tx
func (r *BreakRepository) SetRequestStatus(tx docstore.Tx, pairID, userID string, status models.BreakStatus) error {
	if err := tx.Update(BreakRequestPath(pairID, userID), map[string]any{"status": status}); err != nil {
		return fmt.Errorf("failed to update break request: %w", err)
	}
	return nil
}

// GetPolicy retrieves the device policy of userID. A missing policy reads as
// an empty one.
func (r *BreakRepository) GetPolicy(ctx context.Context, pairID, userID string) (*models.DevicePolicy, error) {
	snap, err := r.store.Get(ctx, DevicePolicyPath(pairID, userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return &models.DevicePolicy{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device policy: %w", err)
	}
	return DecodePolicy(snap)
}

// DecodePolicy decodes a device policy snapshot
func DecodePolicy(snap *docstore.Snapshot) (*models.DevicePolicy, error) {
	policy := &models.DevicePolicy{UserID: snap.ID()}
	if !snap.Exists {
		return policy, nil
	}
	if err := snap.DataTo(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// SetPauseUntil overwrites the pause of userID. A nil until clears it.
func (r *BreakRepository) SetPauseUntil(ctx context.Context, pairID, userID string, until *time.Time, by string, at time.Time) (*models.DevicePolicy, error) {
	policy := &models.DevicePolicy{
		UserID:     userID,
		PauseUntil: until,
		UpdatedAt:  at,
		UpdatedBy:  by,
	}
	if err := docstore.SetDocument(ctx, r.store, DevicePolicyPath(pairID, userID), policy); err != nil {
		return nil, fmt.Errorf("failed to write device policy: %w", err)
	}
	return policy, nil
}

// WatchRequest subscribes to the break request of userID
func (r *BreakRepository) WatchRequest(ctx context.Context, pairID, userID string) (*docstore.Subscription, error) {
	return r.store.Watch(ctx, BreakRequestPath(pairID, userID))
}

// WatchPolicy subscribes to the device policy of userID
func (r *BreakRepository) WatchPolicy(ctx context.Context, pairID, userID string) (*docstore.Subscription, error) {
	return r.store.Watch(ctx, DevicePolicyPath(pairID, userID))
}
