package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
	"matelock-backend/internal/repository"

	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	UserID string
	Event  Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Event: event})
	return nil
}

// take returns the events recorded so far and forgets them.
func (n *recordingNotifier) take() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events
	n.events = nil
	return out
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*models.SetupDocument
}

func (a *fakeArchiver) Archive(_ context.Context, _ *models.Pair, doc *models.SetupDocument) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, doc)
	return nil
}

type fixture struct {
	store    *docstore.Memory
	notifier *recordingNotifier
	archiver *fakeArchiver
	clock    time.Time

	userRepo  *repository.UserRepository
	pairRepo  *repository.PairRepository
	setupRepo *repository.SetupRepository
	breakRepo *repository.BreakRepository

	users  *UserService
	pairs  *PairService
	setup  *SetupService
	breaks *BreakService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    docstore.NewMemory(nil),
		notifier: &recordingNotifier{},
		archiver: &fakeArchiver{},
		clock:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	f.userRepo = repository.NewUserRepository(f.store)
	f.pairRepo = repository.NewPairRepository(f.store)
	f.setupRepo = repository.NewSetupRepository(f.store)
	f.breakRepo = repository.NewBreakRepository(f.store)

	now := func() time.Time { return f.clock }

	f.users = NewUserService(f.userRepo, "test-secret")
	f.users.now = now
	f.pairs = NewPairService(f.store, f.pairRepo, f.userRepo, f.setupRepo, f.notifier)
	f.pairs.now = now
	f.setup = NewSetupService(f.store, f.pairs, f.setupRepo, f.notifier, f.archiver)
	f.setup.now = now
	f.breaks = NewBreakService(f.store, f.pairs, f.breakRepo, f.notifier, 0)
	f.breaks.now = now
	return f
}

// pair creates a finalized pair of alice (A) and bob (B).
func (f *fixture) pair(t *testing.T) *models.Pair {
	t.Helper()
	ctx := context.Background()
	open, err := f.pairs.CreatePair(ctx, "alice")
	require.NoError(t, err)
	pair, err := f.pairs.JoinPair(ctx, "bob", open.InviteCode)
	require.NoError(t, err)
	f.notifier.take()
	return pair
}

func appSelection(tokens ...string) *models.AppSelectionPayload {
	return &models.AppSelectionPayload{AppTokens: tokens, CategoryTokens: []string{}}
}

func weekdayEvenings() *models.WeeklySchedulePayload {
	var plan models.WeeklyBlockPlan
	for i := 1; i < 6; i++ {
		plan.Days[i] = models.DaySchedule{
			Enabled: true,
			Ranges:  []models.TimeRange{{StartMinutes: 20 * 60, EndMinutes: 23 * 60}},
		}
	}
	return plan.Payload()
}
