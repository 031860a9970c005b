package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = core.Unauthenticated("invalid_credentials", "Invalid username or password")
	// ErrInvalidToken is returned when a session token cannot be verified.
	ErrInvalidToken = core.Unauthenticated("invalid_token", "Invalid or expired token")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = core.Conflict("duplicate_username", "Username already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = core.Validation("invalid_username", "Username must be 3 to 32 characters")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = core.Validation("invalid_password", "Password must be at least 3 characters")
)

// Service provides registration, login and token verification.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
	cost      int
}

// NewService creates a new authentication service. cost is the bcrypt cost;
// zero selects DefaultCost.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig, cost int) *Service {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
		cost:      cost,
	}
}

// Register creates a user with a fresh uid. The nickname defaults to the username.
func (s *Service) Register(ctx context.Context, username, password, nickname string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 3 {
		return nil, ErrInvalidPassword
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = username
	}

	hashedPassword, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}

	user := &store.User{
		UID:          uuid.NewString(),
		Username:     username,
		PasswordHash: hashedPassword,
		Nickname:     nickname,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login validates credentials and returns the user with a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*store.User, string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.UID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// Resume verifies a session token and returns its user with a renewed token.
func (s *Service) Resume(ctx context.Context, token string) (*store.User, string, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, "", ErrInvalidToken
	}
	user, err := s.store.GetUser(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidToken
		}
		return nil, "", err
	}

	renewed, err := GenerateToken(s.jwtConfig, user.UID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, renewed, nil
}

// HashSecret hashes a group join secret with the configured cost.
func (s *Service) HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	return HashPassword(secret, s.cost)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
