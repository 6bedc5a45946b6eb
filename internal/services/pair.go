package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/metrics"
	"matelock-backend/internal/models"
	"matelock-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	inviteCodeLength = 6
	// No I, O, 0 or 1: codes are read aloud and typed by hand.
	inviteCodeChars       = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeMaxAttempts = 10
)

// PairService handles pairing by invite code
type PairService struct {
	store     docstore.Store
	pairRepo  *repository.PairRepository
	userRepo  *repository.UserRepository
	setupRepo *repository.SetupRepository
	notifier  Notifier

	now     func() time.Time
	newID   func() string
	newCode func() (string, error)
}

// NewPairService creates a new pair service
func NewPairService(
	store docstore.Store,
	pairRepo *repository.PairRepository,
	userRepo *repository.UserRepository,
	setupRepo *repository.SetupRepository,
	notifier Notifier,
) *PairService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &PairService{
		store:     store,
		pairRepo:  pairRepo,
		userRepo:  userRepo,
		setupRepo: setupRepo,
		notifier:  notifier,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		newCode:   generateInviteCode,
	}
}

// generateInviteCode draws a random code from inviteCodeChars
func generateInviteCode() (string, error) {
	code := make([]byte, inviteCodeLength)
	limit := big.NewInt(int64(len(inviteCodeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		code[i] = inviteCodeChars[n.Int64()]
	}
	return string(code), nil
}

// NormalizeInviteCode trims and upper-cases a code typed by a user
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateUniqueCode generates a code no open pair is currently using. The
// probe is best effort: two concurrent creators may still draw the same code.
func (s *PairService) GenerateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < inviteCodeMaxAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		exists, err := s.pairRepo.InviteCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", inviteCodeMaxAttempts)
}

// CreatePair opens a new pair with userID as member A and returns it with
// its invite code.
func (s *PairService) CreatePair(ctx context.Context, userID string) (*models.Pair, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	code, err := s.GenerateUniqueCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	var pair *models.Pair
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		user, exists, err := s.userRepo.GetOrEmpty(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.HasPair() {
			return ErrAlreadyPaired
		}

		pair = &models.Pair{
			ID:         s.newID(),
			MemberA:    userID,
			InviteCode: code,
			CreatedAt:  s.now(),
		}
		if err := s.pairRepo.Create(tx, pair); err != nil {
			return err
		}
		return s.userRepo.SetPairID(tx, user, exists, pair.ID)
	})
	if err != nil {
		metrics.ObservePairing("create", errorCode(err))
		return nil, err
	}

	metrics.ObservePairing("create", "ok")
	log.Info().Str("user_id", userID).Str("pair_id", pair.ID).Msg("Pair created")
	return pair, nil
}

// JoinPair finalizes the pair holding code with userID as member B and seeds
// its setup document.
func (s *PairService) JoinPair(ctx context.Context, userID, code string) (*models.Pair, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	code = NormalizeInviteCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	pair, err := s.join(ctx, userID, code)
	if err != nil {
		metrics.ObservePairing("join", errorCode(err))
		return nil, err
	}
	metrics.ObservePairing("join", "ok")

	log.Info().
		Str("user_id", userID).
		Str("pair_id", pair.ID).
		Str("partner_id", pair.MemberA).
		Msg("Pair finalized")

	s.notify(ctx, pair.MemberA, Event{Type: EventPairJoined, PairID: pair.ID, FromUserID: userID})
	return pair, nil
}

func (s *PairService) join(ctx context.Context, userID, code string) (*models.Pair, error) {
	open, err := s.pairRepo.FindByInviteCode(ctx, code)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}

	var pair *models.Pair
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		user, exists, err := s.userRepo.GetOrEmpty(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.HasPair() {
			return ErrAlreadyPaired
		}

		pair, err = s.pairRepo.Get(ctx, tx, open.ID)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrCodeNotFound
		}
		if err != nil {
			return err
		}
		if pair.IsFinalized() {
			return ErrPairFull
		}
		if pair.InviteCode != code {
			return ErrCodeNotFound
		}
		// Only reachable when the creator's profile lost its pairId.
		if pair.MemberA == userID {
			return ErrInvalidCode
		}

		now := s.now()
		if err := s.pairRepo.Finalize(tx, pair.ID, userID, now); err != nil {
			return err
		}
		if err := s.userRepo.SetPairID(tx, user, exists, pair.ID); err != nil {
			return err
		}
		if err := s.setupRepo.Save(tx, pair.ID, models.NewSetupDocument(now)); err != nil {
			return err
		}

		pair.MemberB = userID
		pair.FinalizedAt = &now
		pair.InviteCode = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// GetPair retrieves a pair the user belongs to
func (s *PairService) GetPair(ctx context.Context, userID, pairID string) (*models.Pair, error) {
	pair, err := s.pairRepo.GetByID(ctx, pairID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, ok := pair.RoleOf(userID); !ok {
		return nil, ErrForbidden
	}
	return pair, nil
}

// CurrentPair returns the pair the user's profile points at, finalized or not.
func (s *PairService) CurrentPair(ctx context.Context, userID string) (*models.Pair, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, err
	}
	if !user.HasPair() {
		return nil, ErrNotPaired
	}
	pair, err := s.pairRepo.GetByID(ctx, user.PairID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// FinalizedPair returns the user's pair together with the partner id. Users
// whose pair has no second member yet get ErrNotPaired.
func (s *PairService) FinalizedPair(ctx context.Context, userID string) (*models.Pair, string, error) {
	pair, err := s.CurrentPair(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	partnerID, ok := pair.PartnerOf(userID)
	if !ok {
		return nil, "", ErrNotPaired
	}
	return pair, partnerID, nil
}

// PartnerID resolves the other member of the user's finalized pair
func (s *PairService) PartnerID(ctx context.Context, userID string) (string, error) {
	_, partnerID, err := s.FinalizedPair(ctx, userID)
	return partnerID, err
}

func (s *PairService) notify(ctx context.Context, userID string, event Event) {
	if err := s.notifier.Notify(ctx, userID, event); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("event", event.Type).Msg("Failed to notify user")
	}
}

// errorCode labels metrics with the domain code of err.
func errorCode(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	if errors.Is(err, docstore.ErrTooMuchContention) {
		return "contention"
	}
	return "error"
}
