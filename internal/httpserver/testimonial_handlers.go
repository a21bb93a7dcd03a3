package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/testimonial"
	"estatedesk/backoffice/internal/validation"
)

func (h *handlers) registerTestimonialRoutes(r *mux.Router) {
	r.HandleFunc("/api/testimonials", h.optionalSession(h.listTestimonials)).Methods(http.MethodGet)
	r.HandleFunc("/api/testimonials", h.requireAdmin(h.createTestimonial)).Methods(http.MethodPost)
	r.HandleFunc("/api/testimonials/{id:[0-9]+}", h.optionalSession(h.getTestimonial)).Methods(http.MethodGet)
	r.HandleFunc("/api/testimonials/{id:[0-9]+}", h.requireAdmin(h.updateTestimonial)).Methods(http.MethodPut)
	r.HandleFunc("/api/testimonials/{id:[0-9]+}", h.requireAdmin(h.deleteTestimonial)).Methods(http.MethodDelete)
}

func (h *handlers) listTestimonials(w http.ResponseWriter, r *http.Request) {
	errs := validation.Errors{}
	f := testimonial.ListFilter{
		PublishedOnly: !isAdminRequest(r) || queryBool(r, "published"),
		Page:          queryPage(r, errs),
	}
	if len(errs) > 0 {
		writeFieldErrors(w, "Invalid query", errs)
		return
	}
	list, err := h.deps.Testimonials.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *handlers) getTestimonial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.deps.Testimonials.Get(r.Context(), id)
	if err == nil && !t.IsPublished && !isAdminRequest(r) {
		err = testimonial.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", t)
}

func testimonialInput(f *form) testimonial.Input {
	return testimonial.Input{
		CustomerName: f.str("customer_name"),
		Designation:  f.str("designation"),
		Content:      f.str("content"),
		Rating:       f.intValue("rating"),
		ProjectID:    f.optInt64("project_id"),
		IsPublished:  f.optBool("is_published"),
	}
}

func (h *handlers) createTestimonial(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in := testimonialInput(f)
	photo := f.file("photo", storage.KindTestimonial)
	if !f.valid(w) {
		return
	}

	t, err := h.deps.Testimonials.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if photo != nil {
		t.PhotoPath, err = h.storeTestimonialPhoto(r, t, photo)
		if err != nil {
			if _, delErr := h.deps.Testimonials.Delete(r.Context(), t.ID); delErr != nil {
				h.log.Warn("rollback testimonial create failed", "testimonial_id", t.ID, "error", delErr)
			}
			h.purgeTestimonialFiles(t.ID)
			h.fail(w, r, err)
			return
		}
	}

	h.auditChange(r, "testimonial.create", "testimonial", t.ID)
	writeData(w, http.StatusCreated, "Testimonial created", t)
}

func (h *handlers) storeTestimonialPhoto(r *http.Request, t testimonial.Testimonial, photo storage.File) (string, error) {
	p, err := h.deps.Files.Replace(t.PhotoPath, photo, storage.KindTestimonial, t.ID)
	if err != nil {
		return "", err
	}
	h.deps.Metrics.observeUploads(storage.KindTestimonial, photo)
	if err := h.deps.Testimonials.SetPhoto(r.Context(), t.ID, p); err != nil {
		h.deleteFile(p)
		return "", err
	}
	return p, nil
}

func (h *handlers) updateTestimonial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in := testimonialInput(f)
	photo := f.file("photo", storage.KindTestimonial)
	removePhoto := f.boolValue("remove_photo")
	if !f.valid(w) {
		return
	}

	t, err := h.deps.Testimonials.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	switch {
	case photo != nil:
		if t.PhotoPath, err = h.storeTestimonialPhoto(r, t, photo); err != nil {
			h.fail(w, r, err)
			return
		}
	case removePhoto && t.PhotoPath != "":
		if err := h.deps.Testimonials.SetPhoto(r.Context(), id, ""); err != nil {
			h.fail(w, r, err)
			return
		}
		h.deleteFile(t.PhotoPath)
		t.PhotoPath = ""
	}

	h.auditChange(r, "testimonial.update", "testimonial", id)
	writeData(w, http.StatusOK, "Testimonial updated", t)
}

func (h *handlers) deleteTestimonial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.deps.Testimonials.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if t.PhotoPath != "" {
		h.deleteFile(t.PhotoPath)
	}
	h.purgeTestimonialFiles(id)

	h.auditChange(r, "testimonial.delete", "testimonial", id)
	writeData(w, http.StatusOK, "Testimonial deleted", nil)
}

func (h *handlers) purgeTestimonialFiles(id int64) {
	if err := h.deps.Files.DeleteFolder(storage.KindTestimonial, id); err != nil {
		h.log.Warn("delete testimonial files failed", "testimonial_id", id, "error", err)
	}
}
