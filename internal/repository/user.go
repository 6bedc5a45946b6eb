package repository

import (
	"context"
	"errors"
	"fmt"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
)

// UserRepository handles user profile documents
type UserRepository struct {
	store docstore.Store
}

// NewUserRepository creates a new user repository
func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// Create writes a new user profile
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := docstore.SetDocument(ctx, r.store, UserPath(user.ID), user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.Get(ctx, r.store, id)
}

// Get reads a user through rd, which may be a transaction
func (r *UserRepository) Get(ctx context.Context, rd docstore.Reader, id string) (*models.User, error) {
	snap, err := rd.Get(ctx, UserPath(id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return nil, err
	}
	user.ID = id
	return &user, nil
}

// GetOrEmpty reads a user inside tx; a missing profile reads as an empty one
// so users issued by an external identity provider can still pair.
func (r *UserRepository) GetOrEmpty(ctx context.Context, tx docstore.Tx, id string) (*models.User, bool, error) {
	user, err := r.Get(ctx, tx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return &models.User{ID: id}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// SetPairID points the user's profile at pairID within tx
func (r *UserRepository) SetPairID(tx docstore.Tx, user *models.User, exists bool, pairID string) error {
	if !exists {
		created := *user
		created.PairID = pairID
		return tx.Set(UserPath(user.ID), &created)
	}
	return tx.Update(UserPath(user.ID), map[string]any{"pairId": pairID})
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	var value any = docstore.DeleteField
	if pushToken != nil {
		value = *pushToken
	}
	err := docstore.UpdateDocument(ctx, r.store, UserPath(userID), map[string]any{"pushToken": value})
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}
