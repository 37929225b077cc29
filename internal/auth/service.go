package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrSessionRevoked is returned for tokens of a login that was logged out.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrInvalidToken is returned for tokens that fail validation.
	ErrInvalidToken = errors.New("invalid token")
)

// LogoutNotifier is told when a login session ends so its connections can close.
type LogoutNotifier interface {
	SessionLoggedOut(ctx context.Context, sessionID string)
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
	revoked   geche.Geche[string, time.Time]
	notifier  LogoutNotifier
	log       *zerolog.Logger
}

// NewService creates a new authentication service. Revoked sessions are
// remembered for the token lifetime; the cleanup goroutine stops with ctx.
func NewService(ctx context.Context, userStore store.UserStore, jwtConfig *JWTConfig, notifier LogoutNotifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
		revoked:   geche.NewMapTTLCache[string, time.Time](ctx, jwtConfig.TTL, time.Minute),
		notifier:  notifier,
		log:       logger,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	user, err := s.CreateUser(ctx, username, password)
	if err != nil {
		return "", err
	}

	return s.issue(user)
}

// CreateUser stores a new account without logging it in.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*store.User, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	// Check if user already exists
	_, err = s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

// Login validates credentials and returns a JWT token for a new login session.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	return s.issue(user)
}

// Logout revokes the login session of claims and closes its open connections.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims.SessionID == "" {
		return ErrInvalidToken
	}
	s.revoked.Set(claims.SessionID, time.Now())
	s.log.Info().Int64("user_id", claims.UserID).Str("session_id", claims.SessionID).Msg("session logged out")

	if s.notifier != nil {
		s.notifier.SessionLoggedOut(ctx, claims.SessionID)
	}
	return nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := s.revoked.Get(claims.SessionID); err == nil {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

// Authenticate validates the token and loads its active user.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*store.User, *Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if !user.Active {
		return nil, nil, ErrInvalidToken
	}
	return user, claims, nil
}

func (s *Service) issue(user *store.User) (string, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
