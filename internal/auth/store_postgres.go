package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresUserStore{db: db}, nil
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, ErrUserNotFound
	}
	const q = `SELECT id, email, name, password_hash, role FROM users WHERE email = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, email))
}

func (s *PostgresUserStore) GetByID(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrUserNotFound
	}
	const q = `SELECT id, email, name, password_hash, role FROM users WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresUserStore) scanOne(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *PostgresUserStore) Put(ctx context.Context, user User) error {
	user.Email = normalizeEmail(user.Email)
	if user.ID == "" || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("id, email, and password hash are required")
	}
	if user.Role == "" {
		user.Role = RoleAdmin
	}

	const q = `
INSERT INTO users (id, email, name, password_hash, role, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
	name = EXCLUDED.name,
	password_hash = EXCLUDED.password_hash,
	role = EXCLUDED.role,
	updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, q, user.ID, user.Email, user.Name, user.PasswordHash, user.Role); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
