package httpserver

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/project"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/validation"
)

func (h *handlers) registerProjectRoutes(r *mux.Router) {
	r.HandleFunc("/api/projects", h.optionalSession(h.listProjects)).Methods(http.MethodGet)
	r.HandleFunc("/api/projects", h.requireAdmin(h.createProject)).Methods(http.MethodPost)
	r.HandleFunc("/api/projects/{id:[0-9]+}", h.optionalSession(h.getProject)).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id:[0-9]+}", h.requireAdmin(h.updateProject)).Methods(http.MethodPut)
	r.HandleFunc("/api/projects/{id:[0-9]+}", h.requireAdmin(h.deleteProject)).Methods(http.MethodDelete)
}

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	errs := validation.Errors{}
	q := r.URL.Query()
	f := project.ListFilter{
		DeveloperID:  queryInt64(r, "developer_id", errs),
		City:         q.Get("city"),
		Status:       q.Get("status"),
		FeaturedOnly: queryBool(r, "featured"),
		Page:         queryPage(r, errs),
	}
	if len(errs) > 0 {
		writeFieldErrors(w, "Invalid query", errs)
		return
	}
	list, err := h.deps.Projects.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *handlers) getProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.deps.Projects.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", p)
}

// projectUploads are the files of one project submission, already checked
// against their kind's rule.
type projectUploads struct {
	logo     storage.File
	brochure storage.File
	ogImage  storage.File
	files    map[storage.Kind][]storage.File
}

// projectFileFields maps multipart field names to project file kinds.
var projectFileFields = map[string]storage.Kind{
	"gallery":     storage.KindGallery,
	"floorplan":   storage.KindFloorPlan,
	"taxsheet":    storage.KindTaxSheet,
	"unitplan":    storage.KindUnitPlan,
	"paymentplan": storage.KindPaymentPlan,
}

func readProjectForm(f *form) (project.Input, projectUploads) {
	in := project.Input{
		DeveloperID:  f.int64Value("developer_id"),
		Name:         f.str("name"),
		Location:     f.str("location"),
		City:         f.str("city"),
		Status:       f.str("status"),
		PropertyType: f.str("property_type"),
		PriceFrom:    f.int64Value("price_from"),
		PriceTo:      f.int64Value("price_to"),
		Description:  f.str("description"),
		IsFeatured:   f.boolValue("is_featured"),
	}
	f.jsonValue("nearby", &in.Nearby)
	f.jsonValue("faqs", &in.FAQs)
	f.jsonValue("seo", &in.SEO)
	in.SEO.OGImagePath = ""

	up := projectUploads{
		logo:     f.file("logo", storage.KindProjectLogo),
		brochure: f.file("brochure", storage.KindBrochure),
		ogImage:  f.file("og_image", storage.KindOGImage),
		files:    map[storage.Kind][]storage.File{},
	}
	for field, kind := range projectFileFields {
		if files := f.files(field, kind); len(files) > 0 {
			up.files[kind] = files
		}
	}
	return in, up
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in, up := readProjectForm(f)
	if !f.valid(w) {
		return
	}

	p, err := h.deps.Projects.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.storeProjectUploads(r.Context(), p, up); err != nil {
		if _, delErr := h.deps.Projects.Delete(r.Context(), p.ID); delErr != nil {
			h.log.Warn("rollback project create failed", "project_id", p.ID, "error", delErr)
		}
		h.purgeProjectFiles(p.ID, nil)
		h.fail(w, r, err)
		return
	}
	if p, err = h.deps.Projects.Get(r.Context(), p.ID); err != nil {
		h.fail(w, r, err)
		return
	}

	h.auditChange(r, "project.create", "project", p.ID)
	writeData(w, http.StatusCreated, "Project created", p)
}

// storeProjectUploads writes the submitted files and records them on p.
// Single assets replace the current file; multi-file kinds are appended.
func (h *handlers) storeProjectUploads(ctx context.Context, p project.Project, up projectUploads) error {
	var assets project.Assets
	replace := func(old string, f storage.File, kind storage.Kind) (*string, error) {
		if f == nil {
			return nil, nil
		}
		rel, err := h.deps.Files.Replace(old, f, kind, p.ID)
		if err != nil {
			return nil, err
		}
		h.deps.Metrics.observeUploads(kind, f)
		return &rel, nil
	}

	var err error
	if assets.LogoPath, err = replace(p.LogoPath, up.logo, storage.KindProjectLogo); err != nil {
		return err
	}
	if assets.BrochurePath, err = replace(p.BrochurePath, up.brochure, storage.KindBrochure); err != nil {
		return err
	}
	oldOG := ""
	if p.SEO != nil {
		oldOG = p.SEO.OGImagePath
	}
	if assets.OGImagePath, err = replace(oldOG, up.ogImage, storage.KindOGImage); err != nil {
		return err
	}
	if assets.LogoPath != nil || assets.BrochurePath != nil || assets.OGImagePath != nil {
		if err := h.deps.Projects.SetAssets(ctx, p.ID, assets); err != nil {
			return err
		}
	}

	for _, kind := range project.FileKinds {
		files := up.files[kind]
		if len(files) == 0 {
			continue
		}
		paths, err := h.deps.Files.SaveMultiple(files, kind, p.ID)
		if err != nil {
			return err
		}
		if _, err := h.deps.Projects.AddFiles(ctx, p.ID, kind, paths); err != nil {
			_ = h.deps.Files.DeleteMultiple(paths)
			return err
		}
		h.deps.Metrics.observeUploads(kind, files...)
	}
	return nil
}

func (h *handlers) updateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	in, up := readProjectForm(f)
	var removeIDs []int64
	f.jsonValue("remove_file_ids", &removeIDs)
	if !f.valid(w) {
		return
	}

	p, err := h.deps.Projects.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	removed, err := h.deps.Projects.RemoveFiles(r.Context(), id, removeIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, rf := range removed {
		h.deleteFile(rf.Path)
	}
	if err := h.storeProjectUploads(r.Context(), p, up); err != nil {
		h.fail(w, r, err)
		return
	}
	if p, err = h.deps.Projects.Get(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}

	h.auditChange(r, "project.update", "project", id)
	writeData(w, http.StatusOK, "Project updated", p)
}

func (h *handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.deps.Projects.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.purgeProjectFiles(id, p.Paths())

	h.auditChange(r, "project.delete", "project", id)
	writeData(w, http.StatusOK, "Project deleted", nil)
}

// purgeProjectFiles removes the listed paths and every per-kind folder or
// file group the project owns.
func (h *handlers) purgeProjectFiles(id int64, paths []string) {
	if err := h.deps.Files.DeleteMultiple(paths); err != nil {
		h.log.Warn("delete project files failed", "project_id", id, "error", err)
	}
	kinds := append([]storage.Kind{storage.KindProjectLogo, storage.KindBrochure, storage.KindOGImage}, project.FileKinds...)
	for _, kind := range kinds {
		if err := h.deps.Files.DeleteFolder(kind, id); err != nil {
			h.log.Warn("delete project folder failed", "project_id", id, "kind", kind, "error", err)
		}
	}
}
