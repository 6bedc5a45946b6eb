package services

import (
	"context"
	"testing"
	"time"

	"matelock-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakApproveGrantsPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	req, err := f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.BreakPending, req.Status)
	assert.Equal(t, map[string][]string{"alice": {EventBreakRequested}}, eventTypes(f.notifier.take()))

	requests, err := f.breaks.ListRequests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "bob", requests[0].UserID)

	policy, err := f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, policy.PauseUntil)
	assert.Equal(t, f.clock.Add(DefaultPauseDuration), *policy.PauseUntil)
	assert.Equal(t, "alice", policy.UpdatedBy)
	assert.Equal(t, map[string][]string{"bob": {EventBreakApproved}}, eventTypes(f.notifier.take()))

	stored, err := f.breaks.GetPolicy(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, stored.IsPaused(f.clock.Add(4*time.Minute)))
	assert.False(t, stored.IsPaused(f.clock.Add(5*time.Minute)))

	requests, err = f.breaks.ListRequests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.BreakApproved, requests[0].Status)

	// Alice's own device is not paused.
	own, err := f.breaks.GetPolicy(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, own.PauseUntil)
}

func TestBreakSelfApprovalForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	_, err := f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)

	_, err = f.breaks.ApproveBreakRequest(ctx, "bob", "bob")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.breaks.ApproveBreakRequest(ctx, "alice", "mallory")
	require.ErrorIs(t, err, ErrForbidden)

	policy, err := f.breaks.GetPolicy(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, policy.PauseUntil)
}

func TestBreakDecisionNeedsRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	_, err := f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrNotFound)

	err = f.breaks.RejectBreakRequest(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBreakReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	_, err := f.breaks.RequestBreak(ctx, "alice")
	require.NoError(t, err)
	f.notifier.take()

	require.NoError(t, f.breaks.RejectBreakRequest(ctx, "bob", "alice"))
	assert.Equal(t, map[string][]string{"alice": {EventBreakRejected}}, eventTypes(f.notifier.take()))

	requests, err := f.breaks.ListRequests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.BreakRejected, requests[0].Status)

	policy, err := f.breaks.GetPolicy(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, policy.IsPaused(f.clock))
}

func TestBreakDecisionOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	_, err := f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, f.breaks.RejectBreakRequest(ctx, "alice", "bob"))

	_, err = f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrBreakNotPending, "approve after reject")
	policy, err := f.breaks.GetPolicy(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, policy.PauseUntil)

	// A fresh request can be decided again.
	_, err = f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)
	first, err := f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	f.breaks.now = func() time.Time { return f.clock.Add(3 * time.Minute) }
	_, err = f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrBreakNotPending, "second approve")
	err = f.breaks.RejectBreakRequest(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrBreakNotPending, "reject after approve")

	policy, err = f.breaks.GetPolicy(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, policy.PauseUntil)
	assert.True(t, first.PauseUntil.Equal(*policy.PauseUntil))

	requests, err := f.breaks.ListRequests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.BreakApproved, requests[0].Status)
}

func TestBreakCancelRequestAndPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	_, err := f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, f.breaks.CancelBreakRequest(ctx, "bob"))

	requests, err := f.breaks.ListRequests(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, requests)

	_, err = f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)
	_, err = f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	policy, err := f.breaks.CancelBreak(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, policy.PauseUntil)
	assert.Equal(t, "bob", policy.UpdatedBy)

	stored, err := f.breaks.GetPolicy(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, stored.IsPaused(f.clock))
}

func TestBreakRequiresFinalizedPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.breaks.RequestBreak(ctx, "alice")
	require.ErrorIs(t, err, ErrNotPaired)

	_, err = f.pairs.CreatePair(ctx, "alice")
	require.NoError(t, err)
	_, err = f.breaks.RequestBreak(ctx, "alice")
	require.ErrorIs(t, err, ErrNotPaired)
}

func TestBreakWatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pair(t)

	_, err := f.breaks.WatchRequest(ctx, "alice", "mallory")
	require.ErrorIs(t, err, ErrForbidden)

	sub, err := f.breaks.WatchPolicy(ctx, "bob")
	require.NoError(t, err)
	defer sub.Close()
	first := <-sub.C
	assert.False(t, first.Exists)

	_, err = f.breaks.RequestBreak(ctx, "bob")
	require.NoError(t, err)
	_, err = f.breaks.ApproveBreakRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	select {
	case snap := <-sub.C:
		assert.True(t, snap.Exists)
	case <-time.After(2 * time.Second):
		t.Fatal("pause not delivered")
	}
}

func TestNewBreakServiceDefaults(t *testing.T) {
	s := NewBreakService(nil, nil, nil, nil, 0)
	assert.Equal(t, DefaultPauseDuration, s.pauseDuration)

	s = NewBreakService(nil, nil, nil, nil, 10*time.Minute)
	assert.Equal(t, 10*time.Minute, s.pauseDuration)
}
