package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/auth"
	"estatedesk/backoffice/internal/validation"
)

func isSessionError(err error) bool {
	return errors.Is(err, auth.ErrNoSession) || errors.Is(err, auth.ErrInvalidSession)
}

func (h *handlers) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/api/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", h.verify).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/change-password", h.requireSession(h.changePassword)).Methods(http.MethodPost)
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	session, user, err := h.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.audit(r, audit.Event{Actor: req.Email, Action: "auth.login", Outcome: audit.OutcomeFailure, Detail: "invalid credentials"})
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.fail(w, r, err)
		return
	}
	setSessionCookie(w, session.ID, session.ExpiresAt, h.deps.CookieSecure)
	h.audit(r, audit.Event{Actor: user.Email, Action: "auth.login", Resource: "session", ResourceID: session.ID})

	writeData(w, http.StatusOK, "Login successful", map[string]any{
		"user":       userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role},
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// logout soft-revokes the session and always clears the cookie.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	sid := sessionIDFromRequest(r)
	if sid != "" {
		p, _ := h.deps.Auth.VerifySession(r.Context(), sid)
		if err := h.deps.Auth.Logout(r.Context(), sid); err != nil && !isSessionError(err) {
			h.fail(w, r, err)
			return
		}
		h.audit(r, audit.Event{Actor: p.Email, Action: "auth.logout", Resource: "session", ResourceID: sid})
	}
	clearSessionCookie(w, h.deps.CookieSecure)
	writeData(w, http.StatusOK, "Logged out", nil)
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Auth.VerifySession(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		if isSessionError(err) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "valid": false, "message": "Not authenticated"})
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"valid":   true,
		"user":    p,
	})
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	err := h.deps.Auth.ChangePassword(r.Context(), sessionIDFromRequest(r), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrWeakPassword):
		h.audit(r, audit.Event{Action: "auth.change_password", Outcome: audit.OutcomeFailure, Detail: "weak password"})
		writeFieldErrors(w, "Validation failed", map[string]string{
			"new_password": "Must be 12-72 characters with upper and lower case letters, a digit and a symbol",
		})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.audit(r, audit.Event{Action: "auth.change_password", Outcome: audit.OutcomeFailure, Detail: "wrong current password"})
		writeFieldErrors(w, "Validation failed", map[string]string{"current_password": "Current password is incorrect"})
		return
	case isSessionError(err):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	default:
		h.fail(w, r, err)
		return
	}
	h.audit(r, audit.Event{Action: "auth.change_password"})
	writeData(w, http.StatusOK, "Password changed", nil)
}
