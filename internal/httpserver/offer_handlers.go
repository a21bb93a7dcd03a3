package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/offer"
	"estatedesk/backoffice/internal/validation"
)

func (h *handlers) registerOfferRoutes(r *mux.Router) {
	r.HandleFunc("/api/offers", h.optionalSession(h.listOffers)).Methods(http.MethodGet)
	r.HandleFunc("/api/offers", h.requireAdmin(h.createOffer)).Methods(http.MethodPost)
	r.HandleFunc("/api/offers/{id:[0-9]+}", h.optionalSession(h.getOffer)).Methods(http.MethodGet)
	r.HandleFunc("/api/offers/{id:[0-9]+}", h.requireAdmin(h.updateOffer)).Methods(http.MethodPut)
	r.HandleFunc("/api/offers/{id:[0-9]+}", h.requireAdmin(h.deleteOffer)).Methods(http.MethodDelete)
}

// listOffers shows visitors only the offers running right now. Admins see
// everything unless they ask for ?active=true.
func (h *handlers) listOffers(w http.ResponseWriter, r *http.Request) {
	errs := validation.Errors{}
	f := offer.ListFilter{
		ProjectID:  queryInt64(r, "project_id", errs),
		ActiveOnly: !isAdminRequest(r) || queryBool(r, "active"),
		Page:       queryPage(r, errs),
	}
	if len(errs) > 0 {
		writeFieldErrors(w, "Invalid query", errs)
		return
	}
	list, err := h.deps.Offers.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *handlers) getOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.deps.Offers.Get(r.Context(), id)
	if err == nil && !isAdminRequest(r) && !o.LiveAt(h.nowFunc()) {
		err = offer.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", o)
}

func (h *handlers) createOffer(w http.ResponseWriter, r *http.Request) {
	var in offer.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	o, err := h.deps.Offers.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditChange(r, "offer.create", "offer", o.ID)
	writeData(w, http.StatusCreated, "Offer created", o)
}

func (h *handlers) updateOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in offer.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	o, err := h.deps.Offers.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditChange(r, "offer.update", "offer", id)
	writeData(w, http.StatusOK, "Offer updated", o)
}

func (h *handlers) deleteOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Offers.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditChange(r, "offer.delete", "offer", id)
	writeData(w, http.StatusOK, "Offer deleted", nil)
}
