package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no session")
	ErrInvalidSession     = errors.New("invalid session")
	ErrWeakPassword       = errors.New("weak password")
)

const (
	DefaultSessionTTL = 7 * 24 * time.Hour

	minPasswordLength = 12
	maxPasswordLength = 72
)

type Service struct {
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
	cost     int
	nowFunc  func() time.Time
	newID    func() string
}

type ServiceConfig struct {
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func NewService(users UserStore, sessions SessionStore, cfg ServiceConfig) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.SessionTTL < 0 {
		return nil, fmt.Errorf("session TTL must be > 0")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	return &Service{
		users:    users,
		sessions: sessions,
		ttl:      cfg.SessionTTL,
		cost:     cfg.BcryptCost,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (s *Service) VerifyPassword(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// Login checks credentials and opens a new session for the user.
func (s *Service) Login(ctx context.Context, email, password string) (Session, User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, User{}, ErrInvalidCredentials
		}
		return Session{}, User{}, err
	}
	if !s.VerifyPassword(password, u.PasswordHash) {
		return Session{}, User{}, ErrInvalidCredentials
	}

	sess, err := s.CreateSession(ctx, u)
	if err != nil {
		return Session{}, User{}, err
	}
	return sess, u, nil
}

func (s *Service) CreateSession(ctx context.Context, u User) (Session, error) {
	now := s.nowFunc().UTC()
	sess := Session{
		ID:        s.newID(),
		UserID:    u.ID,
		UserEmail: u.Email,
		UserRole:  u.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// VerifySession resolves a session id to its principal. It never extends
// the session's expiry.
func (s *Service) VerifySession(ctx context.Context, sessionID string) (Principal, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Principal{}, ErrNoSession
	}
	return s.sessions.FindActive(ctx, sessionID, s.nowFunc().UTC())
}

// Logout soft-revokes the session. The row and its expiry stay in place.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrNoSession
	}
	return s.sessions.MarkLoggedOut(ctx, sessionID, s.nowFunc().UTC())
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrNoSession
	}
	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.nowFunc().UTC())
}

func (s *Service) ListSessions(ctx context.Context) ([]SessionView, error) {
	sessions, err := s.sessions.ListActive(ctx, s.nowFunc().UTC())
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionView{
			ID:        sess.ID,
			UserID:    sess.UserID,
			Email:     sess.UserEmail,
			Role:      sess.UserRole,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		})
	}
	return out, nil
}

func (s *Service) ChangePassword(ctx context.Context, sessionID, currentPassword, newPassword string) error {
	if err := validatePasswordPolicy(newPassword); err != nil {
		return err
	}

	p, err := s.VerifySession(ctx, sessionID)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if !s.VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Put(ctx, user); err != nil {
		return fmt.Errorf("store updated password: %w", err)
	}
	return nil
}

// EnsureBootstrapUser creates the initial admin account when no user with
// that email exists. It reports whether a user was created.
func (s *Service) EnsureBootstrapUser(ctx context.Context, email, name, password string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("check bootstrap user: %w", err)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return false, err
	}
	if err := s.users.Put(ctx, User{
		ID:           s.newID(),
		Email:        normalizeEmail(email),
		Name:         name,
		PasswordHash: hash,
		Role:         RoleAdmin,
	}); err != nil {
		return false, fmt.Errorf("create bootstrap user: %w", err)
	}
	return true, nil
}

func validatePasswordPolicy(password string) error {
	if strings.TrimSpace(password) != password {
		return ErrWeakPassword
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrWeakPassword
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}
