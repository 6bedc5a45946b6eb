package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
	"matelock-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateInviteCode()
		require.NoError(t, err)
		require.Len(t, code, inviteCodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(inviteCodeChars, c), "unexpected character %q", c)
		}
	}
}

func TestNormalizeInviteCode(t *testing.T) {
	assert.Equal(t, "ABC234", NormalizeInviteCode("  abc234\n"))
}

func TestGenerateUniqueCodeSkipsTakenCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, docstore.SetDocument(ctx, f.store, repository.PairPath("old"),
		&models.Pair{MemberA: "carol", InviteCode: "TAKEN2"}))

	codes := []string{"TAKEN2", "FRESH3"}
	f.pairs.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	code, err := f.pairs.GenerateUniqueCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "FRESH3", code)
}

func TestGenerateUniqueCodeGivesUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, docstore.SetDocument(ctx, f.store, repository.PairPath("old"),
		&models.Pair{MemberA: "carol", InviteCode: "TAKEN2"}))

	calls := 0
	f.pairs.newCode = func() (string, error) {
		calls++
		return "TAKEN2", nil
	}

	_, err := f.pairs.GenerateUniqueCode(ctx)
	require.Error(t, err)
	assert.Equal(t, inviteCodeMaxAttempts, calls)
}

func TestCreatePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pair, err := f.pairs.CreatePair(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", pair.MemberA)
	assert.Empty(t, pair.MemberB)
	assert.Len(t, pair.InviteCode, inviteCodeLength)
	assert.False(t, pair.IsFinalized())

	current, err := f.pairs.CurrentPair(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pair.ID, current.ID)
	assert.Equal(t, pair.InviteCode, current.InviteCode)

	_, err = f.store.Get(ctx, repository.SpacePath(pair.ID))
	require.NoError(t, err)

	_, _, err = f.pairs.FinalizedPair(ctx, "alice")
	require.ErrorIs(t, err, ErrNotPaired)

	_, err = f.pairs.CreatePair(ctx, "alice")
	require.ErrorIs(t, err, ErrAlreadyPaired)
}

func TestCreatePairRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.pairs.CreatePair(context.Background(), "")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestJoinPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	open, err := f.pairs.CreatePair(ctx, "alice")
	require.NoError(t, err)

	pair, err := f.pairs.JoinPair(ctx, "bob", " "+strings.ToLower(open.InviteCode)+" ")
	require.NoError(t, err)
	assert.Equal(t, open.ID, pair.ID)
	assert.Equal(t, "bob", pair.MemberB)
	require.NotNil(t, pair.FinalizedAt)
	assert.True(t, f.clock.Equal(*pair.FinalizedAt))

	stored, partnerID, err := f.pairs.FinalizedPair(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", partnerID)
	assert.Empty(t, stored.InviteCode)

	partnerID, err = f.pairs.PartnerID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", partnerID)

	doc, err := f.setupRepo.GetByPairID(ctx, pair.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepAppSelection, doc.Step)
	assert.Equal(t, models.PhaseAwaitingASubmission, doc.Phase)

	events := f.notifier.take()
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, EventPairJoined, events[0].Event.Type)
	assert.Equal(t, "bob", events[0].Event.FromUserID)
}

func TestJoinPairErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	open, err := f.pairs.CreatePair(ctx, "alice")
	require.NoError(t, err)

	_, err = f.pairs.JoinPair(ctx, "alice", open.InviteCode)
	require.ErrorIs(t, err, ErrAlreadyPaired, "own code")

	_, err = f.pairs.JoinPair(ctx, "bob", "   ")
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.pairs.JoinPair(ctx, "bob", "ZZZZZZ")
	require.ErrorIs(t, err, ErrCodeNotFound)

	_, err = f.pairs.JoinPair(ctx, "", open.InviteCode)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = f.pairs.JoinPair(ctx, "bob", open.InviteCode)
	require.NoError(t, err)

	// The code is consumed by the first joiner.
	_, err = f.pairs.JoinPair(ctx, "carol", open.InviteCode)
	require.ErrorIs(t, err, ErrCodeNotFound)

	other, err := f.pairs.CreatePair(ctx, "dave")
	require.NoError(t, err)
	_, err = f.pairs.JoinPair(ctx, "bob", other.InviteCode)
	require.ErrorIs(t, err, ErrAlreadyPaired)
}

func TestJoinPairFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, docstore.SetDocument(ctx, f.store, repository.PairPath("stale"), &models.Pair{
		MemberA:     "alice",
		MemberB:     "bob",
		InviteCode:  "STALE2",
		FinalizedAt: &now,
	}))

	_, err := f.pairs.JoinPair(ctx, "carol", "STALE2")
	require.ErrorIs(t, err, ErrPairFull)
}

func TestJoinPairOwnCodeWithoutProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// A creator whose profile never recorded the pair.
	require.NoError(t, docstore.SetDocument(ctx, f.store, repository.PairPath("lone"), &models.Pair{
		MemberA:    "alice",
		InviteCode: "LONE23",
		CreatedAt:  time.Now(),
	}))

	_, err := f.pairs.JoinPair(ctx, "alice", "lone23")
	require.ErrorIs(t, err, ErrInvalidCode)

	pair, err := f.pairRepo.GetByID(ctx, "lone")
	require.NoError(t, err)
	assert.False(t, pair.IsFinalized())
	assert.Equal(t, "LONE23", pair.InviteCode)
}

func TestJoinPairOnlyOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	open, err := f.pairs.CreatePair(ctx, "alice")
	require.NoError(t, err)

	joiners := []string{"bob", "carol", "dave", "erin"}
	results := make(chan error, len(joiners))
	for _, uid := range joiners {
		go func(uid string) {
			_, err := f.pairs.JoinPair(ctx, uid, open.InviteCode)
			results <- err
		}(uid)
	}

	wins := 0
	for range joiners {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrPairFull):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	pair, err := f.pairs.CurrentPair(ctx, "alice")
	require.NoError(t, err)
	assert.Contains(t, joiners, pair.MemberB)
}

func TestGetPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pair := f.pair(t)

	got, err := f.pairs.GetPair(ctx, "bob", pair.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.MemberA)

	_, err = f.pairs.GetPair(ctx, "mallory", pair.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.pairs.GetPair(ctx, "bob", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.pairs.CurrentPair(ctx, "mallory")
	require.ErrorIs(t, err, ErrNotPaired)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "pair_full", errorCode(ErrPairFull))
	assert.Equal(t, "contention", errorCode(docstore.ErrTooMuchContention))
	assert.Equal(t, "error", errorCode(errors.New("boom")))
}
