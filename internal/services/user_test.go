package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	f := newFixture(t)

	token, err := f.users.GenerateJWT("alice", "Alice")
	require.NoError(t, err)

	id, err := f.users.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "alice", Name: "Alice"}, id)

	id, err = f.users.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
}

func TestAuthenticateRejects(t *testing.T) {
	f := newFixture(t)

	other := NewUserService(f.userRepo, "other-secret")
	foreign, err := other.GenerateJWT("alice", "Alice")
	require.NoError(t, err)

	expired := NewUserService(f.userRepo, "test-secret")
	expired.now = func() time.Time { return f.clock.AddDate(-2, 0, 0) }
	stale, err := expired.GenerateJWT("alice", "Alice")
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "x"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not-a-token",
		"wrong secret":   foreign,
		"expired":        stale,
		"missing claim":  noUser,
		"unsigned token": none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.users.Authenticate(token)
			require.ErrorIs(t, err, ErrNotAuthenticated)
		})
	}
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.newID = func() string { return "alice" }

	user, token, err := f.users.CreateUser(ctx, "  Alice ", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, "Alice", user.Name)

	id, err := f.users.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)

	profile, err := f.users.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.True(t, f.clock.Equal(profile.CreatedAt))

	_, _, err = f.users.CreateUser(ctx, " ", "")
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = f.users.GetProfile(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePushToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.newID = func() string { return "alice" }
	_, _, err := f.users.CreateUser(ctx, "Alice", "")
	require.NoError(t, err)

	device := "abc123"
	require.NoError(t, f.users.UpdatePushToken(ctx, "alice", &device))
	profile, err := f.users.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, profile.PushToken)
	assert.Equal(t, device, *profile.PushToken)

	blank := "  "
	require.NoError(t, f.users.UpdatePushToken(ctx, "alice", &blank))
	profile, err = f.users.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, profile.PushToken)

	err = f.users.UpdatePushToken(ctx, "nobody", &device)
	require.ErrorIs(t, err, ErrNotFound)
}
