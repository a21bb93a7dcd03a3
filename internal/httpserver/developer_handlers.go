package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/developer"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/validation"
)

func (h *handlers) registerDeveloperRoutes(r *mux.Router) {
	r.HandleFunc("/api/developers", h.optionalSession(h.listDevelopers)).Methods(http.MethodGet)
	r.HandleFunc("/api/developers", h.requireAdmin(h.createDeveloper)).Methods(http.MethodPost)
	r.HandleFunc("/api/developers/{id:[0-9]+}", h.optionalSession(h.getDeveloper)).Methods(http.MethodGet)
	r.HandleFunc("/api/developers/{id:[0-9]+}", h.requireAdmin(h.updateDeveloper)).Methods(http.MethodPut)
	r.HandleFunc("/api/developers/{id:[0-9]+}", h.requireAdmin(h.deleteDeveloper)).Methods(http.MethodDelete)
	r.HandleFunc("/api/developers/{id:[0-9]+}/awards", h.requireAdmin(h.addAward)).Methods(http.MethodPost)
	r.HandleFunc("/api/developers/{id:[0-9]+}/awards/{awardId:[0-9]+}", h.requireAdmin(h.deleteAward)).Methods(http.MethodDelete)
}

func (h *handlers) listDevelopers(w http.ResponseWriter, r *http.Request) {
	errs := validation.Errors{}
	f := developer.ListFilter{
		ActiveOnly: !isAdminRequest(r) || queryBool(r, "active"),
		Page:       queryPage(r, errs),
	}
	if len(errs) > 0 {
		writeFieldErrors(w, "Invalid query", errs)
		return
	}
	list, err := h.deps.Developers.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *handlers) getDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.deps.Developers.Get(r.Context(), id)
	if err == nil && !d.IsActive && !isAdminRequest(r) {
		err = developer.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", d)
}

func developerInput(f *form) developer.Input {
	return developer.Input{
		Name:            f.str("name"),
		Description:     f.str("description"),
		Website:         f.str("website"),
		EstablishedYear: f.optInt("established_year"),
		IsActive:        f.optBool("is_active"),
	}
}

func (h *handlers) createDeveloper(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in := developerInput(f)
	logo := f.file("logo", storage.KindLogo)
	cover := f.file("cover", storage.KindCover)
	if !f.valid(w) {
		return
	}

	d, err := h.deps.Developers.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	img, err := h.storeDeveloperImages(d, logo, cover)
	if err == nil {
		err = h.deps.Developers.SetImages(r.Context(), d.ID, img)
	}
	if err != nil {
		if _, delErr := h.deps.Developers.Delete(r.Context(), d.ID); delErr != nil {
			h.log.Warn("rollback developer create failed", "developer_id", d.ID, "error", delErr)
		}
		h.purgeDeveloperFiles(d.ID)
		h.fail(w, r, err)
		return
	}
	d.LogoPath, d.CoverPath = img.LogoPath, img.CoverPath

	h.auditChange(r, "developer.create", "developer", d.ID)
	writeData(w, http.StatusCreated, "Developer created", d)
}

// storeDeveloperImages saves new uploads over d's current images. Nil files
// keep the current path.
func (h *handlers) storeDeveloperImages(d developer.Developer, logo, cover storage.File) (developer.Images, error) {
	img := developer.Images{LogoPath: d.LogoPath, CoverPath: d.CoverPath}
	if logo != nil {
		p, err := h.deps.Files.Replace(img.LogoPath, logo, storage.KindLogo, d.ID)
		if err != nil {
			return img, err
		}
		h.deps.Metrics.observeUploads(storage.KindLogo, logo)
		img.LogoPath = p
	}
	if cover != nil {
		p, err := h.deps.Files.Replace(img.CoverPath, cover, storage.KindCover, d.ID)
		if err != nil {
			return img, err
		}
		h.deps.Metrics.observeUploads(storage.KindCover, cover)
		img.CoverPath = p
	}
	return img, nil
}

func (h *handlers) updateDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in := developerInput(f)
	logo := f.file("logo", storage.KindLogo)
	cover := f.file("cover", storage.KindCover)
	removeLogo := f.boolValue("remove_logo")
	removeCover := f.boolValue("remove_cover")
	if !f.valid(w) {
		return
	}

	d, err := h.deps.Developers.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if removeLogo && logo == nil && d.LogoPath != "" {
		h.deleteFile(d.LogoPath)
		d.LogoPath = ""
	}
	if removeCover && cover == nil && d.CoverPath != "" {
		h.deleteFile(d.CoverPath)
		d.CoverPath = ""
	}
	img, err := h.storeDeveloperImages(d, logo, cover)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Developers.SetImages(r.Context(), id, img); err != nil {
		h.fail(w, r, err)
		return
	}
	d.LogoPath, d.CoverPath = img.LogoPath, img.CoverPath

	h.auditChange(r, "developer.update", "developer", id)
	writeData(w, http.StatusOK, "Developer updated", d)
}

func (h *handlers) deleteDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.deps.Developers.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.purgeDeveloperFiles(d.ID)

	h.auditChange(r, "developer.delete", "developer", id)
	writeData(w, http.StatusOK, "Developer deleted", nil)
}

// purgeDeveloperFiles removes every upload stored for the developer. Errors
// are logged; the database row is already gone.
func (h *handlers) purgeDeveloperFiles(id int64) {
	for _, kind := range []storage.Kind{storage.KindLogo, storage.KindCover, storage.KindAward} {
		if err := h.deps.Files.DeleteFolder(kind, id); err != nil {
			h.log.Warn("delete developer files failed", "developer_id", id, "kind", kind, "error", err)
		}
	}
}

func (h *handlers) deleteFile(rel string) {
	if err := h.deps.Files.DeleteSingle(rel); err != nil {
		h.log.Warn("delete file failed", "path", rel, "error", err)
	}
}

func (h *handlers) addAward(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in := developer.AwardInput{Title: f.str("title"), Year: f.optInt("year")}
	image := f.file("image", storage.KindAward)
	if !f.valid(w) {
		return
	}
	if err := validation.Struct(in); err != nil {
		h.fail(w, r, err)
		return
	}

	var imagePath string
	if image != nil {
		p, err := h.deps.Files.SaveSingle(image, storage.KindAward, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.deps.Metrics.observeUploads(storage.KindAward, image)
		imagePath = p
	}
	a, err := h.deps.Developers.AddAward(r.Context(), id, in, imagePath)
	if err != nil {
		if imagePath != "" {
			h.deleteFile(imagePath)
		}
		h.fail(w, r, err)
		return
	}

	h.audit(r, audit.Event{Action: "developer.award.create", Resource: "developer_award", ResourceID: strconv.FormatInt(a.ID, 10)})
	writeData(w, http.StatusCreated, "Award added", a)
}

func (h *handlers) deleteAward(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	awardID, ok := pathID(w, r, "awardId")
	if !ok {
		return
	}
	a, err := h.deps.Developers.DeleteAward(r.Context(), id, awardID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if a.ImagePath != "" {
		h.deleteFile(a.ImagePath)
	}

	h.audit(r, audit.Event{Action: "developer.award.delete", Resource: "developer_award", ResourceID: strconv.FormatInt(awardID, 10)})
	writeData(w, http.StatusOK, "Award deleted", nil)
}
