package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresSessionStore{db: db}, nil
}

func (s *PostgresSessionStore) Create(ctx context.Context, sess Session) error {
	const q = `
INSERT INTO sessions (session_id, user_id, user_email, user_role, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, q, sess.ID, sess.UserID, sess.UserEmail, sess.UserRole, sess.CreatedAt, sess.ExpiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) FindActive(ctx context.Context, sessionID string, now time.Time) (Principal, error) {
	const q = `
SELECT s.session_id, s.user_id, u.email, u.name, s.user_role, s.expires_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.session_id = $1
  AND s.expires_at > $2
  AND s.logged_out_at IS NULL`
	var p Principal
	err := s.db.QueryRowContext(ctx, q, sessionID, now).
		Scan(&p.SessionID, &p.UserID, &p.Email, &p.Name, &p.Role, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrInvalidSession
		}
		return Principal{}, fmt.Errorf("query session: %w", err)
	}
	return p, nil
}

func (s *PostgresSessionStore) MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) error {
	const q = `UPDATE sessions SET logged_out_at = $2 WHERE session_id = $1 AND logged_out_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, sessionID, at)
	if err != nil {
		return fmt.Errorf("mark session logged out: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresSessionStore) Delete(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM sessions WHERE session_id = $1`
	res, err := s.db.ExecContext(ctx, q, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read delete affected rows: %w", err)
	}
	return n, nil
}

func (s *PostgresSessionStore) ListActive(ctx context.Context, now time.Time) ([]Session, error) {
	const q = `
SELECT session_id, user_id, user_email, user_role, created_at, expires_at
FROM sessions
WHERE expires_at > $1 AND logged_out_at IS NULL
ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.UserEmail, &sess.UserRole, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n == 0 {
		return ErrInvalidSession
	}
	return nil
}
