package auth

import "time"

const RoleAdmin = "admin"

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// Session is a sessions row. UserEmail and UserRole are a snapshot taken
// when the session was created.
type Session struct {
	ID          string
	UserID      string
	UserEmail   string
	UserRole    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LoggedOutAt *time.Time
}

// Principal is the authenticated view returned by VerifySession.
type Principal struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	SessionID string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type SessionView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
