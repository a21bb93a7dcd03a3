package httpserver

import (
	"net/http"
	"strconv"

	"estatedesk/backoffice/internal/audit"
)

// audit records e with the request's actor, id and client address filled in.
// Failures are logged and never reach the client.
func (h *handlers) audit(r *http.Request, e audit.Event) {
	if h.deps.Audit == nil {
		return
	}
	if e.Actor == "" {
		if p, ok := principalFrom(r.Context()); ok {
			e.Actor = p.Email
		}
	}
	if e.Outcome == "" {
		e.Outcome = audit.OutcomeSuccess
	}
	e.RequestID = requestIDFromContext(r.Context())
	e.IP = clientIP(r)
	if err := h.deps.Audit.Log(e); err != nil {
		h.log.Warn("audit write failed", "action", e.Action, "request_id", e.RequestID, "error", err)
	}
}

func (h *handlers) auditChange(r *http.Request, action, resource string, id int64) {
	h.audit(r, audit.Event{Action: action, Resource: resource, ResourceID: strconv.FormatInt(id, 10)})
}

func (h *handlers) auditDenied(r *http.Request, reason string) {
	h.audit(r, audit.Event{
		Action:     "access.denied",
		Resource:   "route",
		ResourceID: r.Method + " " + r.URL.Path,
		Outcome:    audit.OutcomeDenied,
		Detail:     reason,
	})
}
