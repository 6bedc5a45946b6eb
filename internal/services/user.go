package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/models"
	"matelock-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtExpDays = 365

// Identity is what an authenticated request carries
type Identity struct {
	UserID string
	Name   string
}

// Authenticator turns a bearer token into an identity
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// UserService handles user profiles and issues their tokens
type UserService struct {
	userRepo  *repository.UserRepository
	jwtSecret string

	now   func() time.Time
	newID func() string
}

// NewUserService creates a new user service
func NewUserService(userRepo *repository.UserRepository, jwtSecret string) *UserService {
	return &UserService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID, name string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"exp":     now.AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the identity it carries
func (s *UserService) ValidateJWT(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("user_id not found in token")
	}
	name, _ := claims["name"].(string)

	return Identity{UserID: userID, Name: name}, nil
}

// Authenticate implements Authenticator
func (s *UserService) Authenticate(token string) (Identity, error) {
	id, err := s.ValidateJWT(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return id, nil
}

// CreateUser registers a profile and returns it with a fresh token
func (s *UserService) CreateUser(ctx context.Context, name, email string) (*models.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", newInvalidPayload(fmt.Errorf("name is required"))
	}

	user := &models.User{
		ID:        s.newID(),
		Name:      name,
		Email:     strings.TrimSpace(email),
		CreatedAt: s.now(),
	}

	token, err := s.GenerateJWT(user.ID, user.Name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// GetProfile returns the user's profile document
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// UpdatePushToken stores or clears the APNs device token of the user
func (s *UserService) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	if pushToken != nil && strings.TrimSpace(*pushToken) == "" {
		pushToken = nil
	}
	err := s.userRepo.UpdatePushToken(ctx, userID, pushToken)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
