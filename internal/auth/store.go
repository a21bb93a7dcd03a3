package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Put(ctx context.Context, user User) error
}

type SessionStore interface {
	Create(ctx context.Context, sess Session) error
	// FindActive returns the principal for a session that exists, has not
	// expired at now and has not been logged out.
	FindActive(ctx context.Context, sessionID string, now time.Time) (Principal, error)
	MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) error
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]Session, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]User)}
}

func (s *InMemoryUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = normalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *InMemoryUserStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) Put(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = normalizeEmail(user.Email)
	s.users[user.ID] = user
	return nil
}

// InMemorySessionStore mirrors the Postgres store's semantics. It resolves
// user names through users, like the SQL join does.
type InMemorySessionStore struct {
	users UserStore

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemorySessionStore(users UserStore) *InMemorySessionStore {
	return &InMemorySessionStore{users: users, sessions: make(map[string]Session)}
}

func (s *InMemorySessionStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemorySessionStore) FindActive(ctx context.Context, sessionID string, now time.Time) (Principal, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || !sess.ExpiresAt.After(now) || sess.LoggedOutAt != nil {
		return Principal{}, ErrInvalidSession
	}

	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return Principal{}, ErrInvalidSession
	}
	return Principal{
		UserID:    sess.UserID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      sess.UserRole,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

func (s *InMemorySessionStore) MarkLoggedOut(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrInvalidSession
	}
	sess.LoggedOutAt = &at
	s.sessions[sessionID] = sess
	return nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrInvalidSession
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemorySessionStore) ListActive(_ context.Context, now time.Time) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.ExpiresAt.After(now) && sess.LoggedOutAt == nil {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Get returns the raw row, including logged-out ones.
func (s *InMemorySessionStore) Get(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}
