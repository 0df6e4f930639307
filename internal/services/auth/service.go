package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/battleship-go/internal/dependencies/clock"
	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidUsername    = errors.New("username must be 3-32 letters, digits, '.', '_' or '-'")
	ErrInvalidPassword    = errors.New("password must be at least 4 characters")
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 4
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Session represents an authenticated session
type Session struct {
	Token     string
	Username  model.Identity
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Service handles registration, login and session tokens
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionDuration time.Duration
	bcryptCost      int
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration time.Duration
	BcryptCost      int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 7 * 24 * time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// New creates a new auth service
func New(storage storage.Storage, clock clock.Clock, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = def.SessionDuration
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	return &Service{
		storage:         storage,
		clock:           clock,
		logger:          logger.With(slog.String("component", "auth")),
		sessions:        make(map[string]*Session),
		sessionDuration: cfg.SessionDuration,
		bcryptCost:      cfg.BcryptCost,
	}
}

// ValidateCredentials checks the shape of a username and password
func ValidateCredentials(username, password string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength || !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// Register creates an account and logs it in
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     model.Identity(username),
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserExists) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", slog.String("identity", username))
	return s.createSession(user.Username), nil
}

// Login checks credentials and creates a session
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.storage.GetUser(ctx, model.Identity(username))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.createSession(user.Username), nil
}

// ValidateSession checks if a session token is valid and returns the session
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidSession
	}

	if s.clock.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrInvalidSession
	}

	return session, nil
}

// AuthenticateChannel resolves the identity behind a bearer token presented
// when opening a game connection
func (s *Service) AuthenticateChannel(token string) (model.Identity, error) {
	if token == "" {
		return "", model.ErrUnauthenticated
	}
	session, err := s.ValidateSession(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}
	return session.Username, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// createSession creates a new session for a user
func (s *Service) createSession(username model.Identity) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:     generateToken("sess_"),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// generateToken generates a random opaque token with a prefix
func generateToken(prefix string) string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return prefix + base64.RawURLEncoding.EncodeToString(b)
}

// CleanExpiredSessions removes expired sessions and returns how many were dropped
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// RunCleanup calls CleanExpiredSessions every interval until ctx is done
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanExpiredSessions(); n > 0 {
				s.logger.Debug("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}
