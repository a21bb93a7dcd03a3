package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"estatedesk/backoffice/internal/developer"
	"estatedesk/backoffice/internal/lead"
	"estatedesk/backoffice/internal/offer"
	"estatedesk/backoffice/internal/project"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/testimonial"
	"estatedesk/backoffice/internal/validation"
)

// envelope is the body of every /api response.
type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeFieldErrors(w http.ResponseWriter, message string, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Message: message,
		Error:   &errorBody{Fields: fields},
	})
}

var notFoundMessages = []struct {
	err error
	msg string
}{
	{developer.ErrNotFound, "Developer not found"},
	{project.ErrNotFound, "Project not found"},
	{offer.ErrNotFound, "Offer not found"},
	{lead.ErrNotFound, "Lead not found"},
	{testimonial.ErrNotFound, "Testimonial not found"},
}

// uploadFields names the form field each upload kind arrives under where the
// two differ.
var uploadFields = map[storage.Kind]string{
	storage.KindProjectLogo: "logo",
	storage.KindOGImage:     "og_image",
	storage.KindAward:       "image",
	storage.KindTestimonial: "photo",
}

func uploadField(kind storage.Kind) string {
	if f, ok := uploadFields[kind]; ok {
		return f
	}
	return string(kind)
}

// fail maps a service error to a response. Unknown errors are logged and
// reported as a generic 500.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs validation.Errors
		ferr  *storage.ValidationError
	)
	switch {
	case errors.As(err, &verrs):
		writeFieldErrors(w, "Validation failed", verrs)
		return
	case errors.As(err, &ferr):
		writeFieldErrors(w, "Invalid file", map[string]string{uploadField(ferr.Kind): ferr.Message})
		return
	case errors.Is(err, developer.ErrInUse):
		writeError(w, http.StatusConflict, "Developer still has projects")
		return
	case errors.Is(err, lead.ErrInvalidStatus):
		writeFieldErrors(w, "Validation failed", map[string]string{"status": "Must be one of: new, contacted, qualified, closed"})
		return
	}
	for _, nf := range notFoundMessages {
		if errors.Is(err, nf.err) {
			writeError(w, http.StatusNotFound, nf.msg)
			return
		}
	}
	h.log.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestIDFromContext(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
