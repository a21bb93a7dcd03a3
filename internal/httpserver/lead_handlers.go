package httpserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/lead"
	"estatedesk/backoffice/internal/validation"
)

func (h *handlers) registerLeadRoutes(r *mux.Router) {
	r.HandleFunc("/api/leads", h.createLead).Methods(http.MethodPost)
	r.HandleFunc("/api/leads", h.requireAdmin(h.listLeads)).Methods(http.MethodGet)
	r.HandleFunc("/api/leads/{id:[0-9]+}", h.requireAdmin(h.getLead)).Methods(http.MethodGet)
	r.HandleFunc("/api/leads/{id:[0-9]+}", h.requireAdmin(h.updateLeadStatus)).Methods(http.MethodPatch)
	r.HandleFunc("/api/leads/{id:[0-9]+}", h.requireAdmin(h.deleteLead)).Methods(http.MethodDelete)
}

// createLead takes enquiries from the public site. No session is needed.
func (h *handlers) createLead(w http.ResponseWriter, r *http.Request) {
	var in lead.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	l, err := h.deps.Leads.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("lead received", "lead_id", l.ID, "source", l.Source)
	writeData(w, http.StatusCreated, "Thank you, we will contact you soon", map[string]int64{"id": l.ID})
}

func (h *handlers) listLeads(w http.ResponseWriter, r *http.Request) {
	errs := validation.Errors{}
	f := lead.ListFilter{
		ProjectID: queryInt64(r, "project_id", errs),
		Status:    strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Page:      queryPage(r, errs),
	}
	if len(errs) > 0 {
		writeFieldErrors(w, "Invalid query", errs)
		return
	}
	list, err := h.deps.Leads.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *handlers) getLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	l, err := h.deps.Leads.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", l)
}

func (h *handlers) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	l, err := h.deps.Leads.UpdateStatus(r.Context(), id, strings.ToLower(strings.TrimSpace(body.Status)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditChange(r, "lead.status", "lead", id)
	writeData(w, http.StatusOK, "Lead updated", l)
}

func (h *handlers) deleteLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Leads.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditChange(r, "lead.delete", "lead", id)
	writeData(w, http.StatusOK, "Lead deleted", nil)
}
