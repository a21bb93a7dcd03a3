package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/auth"
	"estatedesk/backoffice/internal/migrations"
)

func (h *handlers) registerSystemRoutes(r *mux.Router) {
	r.HandleFunc("/api/system/sessions", h.requireAdmin(h.listSessions)).Methods(http.MethodGet)
	r.HandleFunc("/api/system/sessions/cleanup", h.requireAdmin(h.cleanupSessions)).Methods(http.MethodPost)
	r.HandleFunc("/api/system/sessions/{sessionId}", h.requireAdmin(h.deleteSession)).Methods(http.MethodDelete)
	if h.deps.Migrations != nil {
		r.HandleFunc("/api/system/migrations", h.requireAdmin(h.migrationStatus)).Methods(http.MethodGet)
		r.HandleFunc("/api/system/migrations/{name}/apply", h.requireAdmin(h.markMigrationApplied)).Methods(http.MethodPost)
	}
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	views, err := h.deps.Auth.ListSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", views)
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(mux.Vars(r)["sessionId"])
	if err := h.deps.Auth.DeleteSession(r.Context(), sid); err != nil {
		if errors.Is(err, auth.ErrInvalidSession) || errors.Is(err, auth.ErrNoSession) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.fail(w, r, err)
		return
	}
	if p, ok := principalFrom(r.Context()); ok && p.SessionID == sid {
		clearSessionCookie(w, h.deps.CookieSecure)
	}
	h.audit(r, audit.Event{Action: "session.delete", Resource: "session", ResourceID: sid})
	writeData(w, http.StatusOK, "Session deleted", nil)
}

func (h *handlers) cleanupSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Auth.CleanupExpiredSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, audit.Event{Action: "session.cleanup", Resource: "session"})
	writeData(w, http.StatusOK, "Expired sessions removed", map[string]int64{"deleted": n})
}

func (h *handlers) migrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Migrations.Status(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", status)
}

// markMigrationApplied records a shipped migration as applied without running
// it, for schemas that were changed by hand.
func (h *handlers) markMigrationApplied(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(mux.Vars(r)["name"])
	if err := h.deps.Migrations.MarkApplied(r.Context(), name, h.nowFunc()); err != nil {
		h.audit(r, audit.Event{Action: "migration.apply", Resource: "migration", ResourceID: name, Outcome: audit.OutcomeFailure, Detail: err.Error()})
		switch {
		case errors.Is(err, migrations.ErrInvalidName):
			writeFieldErrors(w, "Validation failed", map[string]string{"name": "Must be a migration file name"})
		case errors.Is(err, migrations.ErrUnknown):
			writeError(w, http.StatusNotFound, "Migration not found")
		default:
			h.fail(w, r, err)
		}
		return
	}
	h.audit(r, audit.Event{Action: "migration.apply", Resource: "migration", ResourceID: name})
	writeData(w, http.StatusOK, "Migration marked as applied", map[string]string{"name": name})
}
