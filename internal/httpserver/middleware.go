package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"estatedesk/backoffice/internal/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.status = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

type requestIDKey struct{}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		)
	})
}

func recoveryMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				log.Error("panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(p),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type principalKey struct{}

func principalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

func (h *handlers) loadPrincipal(r *http.Request) (auth.Principal, error) {
	return h.deps.Auth.VerifySession(r.Context(), sessionIDFromRequest(r))
}

// optionalSession attaches the caller's principal when a valid session cookie
// is present and otherwise serves the request anonymously.
func (h *handlers) optionalSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Auth != nil && sessionIDFromRequest(r) != "" {
			if p, err := h.loadPrincipal(r); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), principalKey{}, p))
			}
		}
		next(w, r)
	}
}

// requireSession rejects requests without a valid session with 401.
func (h *handlers) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return h.authorize(next, false)
}

// requireAdmin is requireSession plus the admin role check. Refused
// attempts are audited.
func (h *handlers) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.authorize(next, true)
}

func (h *handlers) authorize(next http.HandlerFunc, admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "Authentication unavailable")
			return
		}
		p, err := h.loadPrincipal(r)
		if err != nil {
			if isSessionError(err) {
				if admin {
					h.auditDenied(r, "no valid session")
				}
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			h.fail(w, r, err)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), principalKey{}, p))
		if admin && !p.IsAdmin() {
			h.auditDenied(r, "role "+p.Role)
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r)
	}
}

func isAdminRequest(r *http.Request) bool {
	p, ok := principalFrom(r.Context())
	return ok && p.IsAdmin()
}
