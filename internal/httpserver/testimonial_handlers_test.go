package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/testimonial"
)

type fakeTestimonialService struct {
	TestimonialService

	items  map[int64]testimonial.Testimonial
	photos []string
}

func newFakeTestimonials() *fakeTestimonialService {
	return &fakeTestimonialService{items: map[int64]testimonial.Testimonial{}}
}

func (f *fakeTestimonialService) Create(_ context.Context, in testimonial.Input) (testimonial.Testimonial, error) {
	t := testimonial.Testimonial{ID: int64(len(f.items) + 1), CustomerName: in.CustomerName, Content: in.Content, Rating: in.Rating}
	f.items[t.ID] = t
	return t, nil
}

func (f *fakeTestimonialService) Get(_ context.Context, id int64) (testimonial.Testimonial, error) {
	t, ok := f.items[id]
	if !ok {
		return testimonial.Testimonial{}, testimonial.ErrNotFound
	}
	return t, nil
}

func (f *fakeTestimonialService) Update(_ context.Context, id int64, in testimonial.Input) (testimonial.Testimonial, error) {
	t, ok := f.items[id]
	if !ok {
		return testimonial.Testimonial{}, testimonial.ErrNotFound
	}
	t.CustomerName, t.Content, t.Rating = in.CustomerName, in.Content, in.Rating
	f.items[id] = t
	return t, nil
}

func (f *fakeTestimonialService) SetPhoto(_ context.Context, id int64, path string) error {
	f.photos = append(f.photos, path)
	t := f.items[id]
	t.PhotoPath = path
	f.items[id] = t
	return nil
}

func (f *fakeTestimonialService) Delete(_ context.Context, id int64) (testimonial.Testimonial, error) {
	t, ok := f.items[id]
	if !ok {
		return testimonial.Testimonial{}, testimonial.ErrNotFound
	}
	delete(f.items, id)
	return t, nil
}

func testimonialFields() map[string]string {
	return map[string]string{"customer_name": "Asha Rao", "content": "Smooth handover.", "rating": "5"}
}

func TestCreateTestimonialStoresPhoto(t *testing.T) {
	svc := newFakeTestimonials()
	files := newFileStore(t)
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Testimonials: svc, Files: files})

	req := multipartRequest(t, http.MethodPost, "/api/testimonials", testimonialFields(),
		formFile{field: "photo", name: "asha.jpg", data: []byte("jpeg")},
	)
	rec := serve(handler, withSession(req, adminSID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(svc.photos) != 1 || !strings.HasPrefix(svc.photos[0], "uploads/Testimonial/") {
		t.Fatalf("expected one stored photo, got %v", svc.photos)
	}
	if !fileExists(t, files, svc.photos[0]) {
		t.Fatalf("expected photo %s on disk", svc.photos[0])
	}
}

func TestCreateTestimonialRejectsBadPhoto(t *testing.T) {
	svc := newFakeTestimonials()
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Testimonials: svc, Files: newFileStore(t)})

	req := multipartRequest(t, http.MethodPost, "/api/testimonials", testimonialFields(),
		formFile{field: "photo", name: "asha.pdf", data: []byte("%PDF")},
	)
	rec := serve(handler, withSession(req, adminSID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Fields["photo"] == "" {
		t.Fatalf("expected photo field error, got %s", rec.Body.String())
	}
	if len(svc.items) != 0 {
		t.Fatalf("expected no testimonial created")
	}
}

func TestUpdateTestimonialReplacesPhoto(t *testing.T) {
	svc := newFakeTestimonials()
	files := newFileStore(t)
	oldPhoto, err := files.SaveSingle(storage.BytesFile("old.jpg", []byte("old")), storage.KindTestimonial, 6)
	if err != nil {
		t.Fatalf("SaveSingle() error: %v", err)
	}
	svc.items[6] = testimonial.Testimonial{ID: 6, CustomerName: "Asha Rao", PhotoPath: oldPhoto}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Testimonials: svc, Files: files})

	req := multipartRequest(t, http.MethodPut, "/api/testimonials/6", testimonialFields(),
		formFile{field: "photo", name: "new.png", data: []byte("new")},
	)
	rec := serve(handler, withSession(req, adminSID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	newPhoto := svc.items[6].PhotoPath
	if newPhoto == "" || newPhoto == oldPhoto {
		t.Fatalf("expected a new photo path, got %q", newPhoto)
	}
	if fileExists(t, files, oldPhoto) {
		t.Fatalf("expected old photo %s removed", oldPhoto)
	}
	b, err := os.ReadFile(filepath.Join(files.Root(), filepath.FromSlash(newPhoto)))
	if err != nil || string(b) != "new" {
		t.Fatalf("expected new photo on disk, got %q err=%v", b, err)
	}
}

func TestUpdateTestimonialRemovesPhoto(t *testing.T) {
	svc := newFakeTestimonials()
	files := newFileStore(t)
	photo, err := files.SaveSingle(storage.BytesFile("old.jpg", []byte("old")), storage.KindTestimonial, 6)
	if err != nil {
		t.Fatalf("SaveSingle() error: %v", err)
	}
	svc.items[6] = testimonial.Testimonial{ID: 6, CustomerName: "Asha Rao", PhotoPath: photo}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Testimonials: svc, Files: files})

	fields := testimonialFields()
	fields["remove_photo"] = "true"
	rec := serve(handler, withSession(multipartRequest(t, http.MethodPut, "/api/testimonials/6", fields), adminSID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(svc.photos) != 1 || svc.photos[0] != "" {
		t.Fatalf("expected photo cleared in the store, got %v", svc.photos)
	}
	if fileExists(t, files, photo) {
		t.Fatalf("expected photo %s removed", photo)
	}
}

func TestDeleteTestimonialRemovesPhoto(t *testing.T) {
	svc := newFakeTestimonials()
	files := newFileStore(t)
	photo, err := files.SaveSingle(storage.BytesFile("p.jpg", []byte("p")), storage.KindTestimonial, 6)
	if err != nil {
		t.Fatalf("SaveSingle() error: %v", err)
	}
	svc.items[6] = testimonial.Testimonial{ID: 6, PhotoPath: photo}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Testimonials: svc, Files: files})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodDelete, "/api/testimonials/6", nil), adminSID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if fileExists(t, files, photo) {
		t.Fatalf("expected photo %s removed", photo)
	}
	if _, ok := svc.items[6]; ok {
		t.Fatalf("expected testimonial deleted")
	}
}

func TestUnpublishedTestimonialHiddenFromVisitors(t *testing.T) {
	svc := newFakeTestimonials()
	svc.items[6] = testimonial.Testimonial{ID: 6, CustomerName: "Asha Rao"}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Testimonials: svc, Files: newFileStore(t)})

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/testimonials/6", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for visitors, got %d", rec.Code)
	}
	rec = serve(handler, withSession(httptest.NewRequest(http.MethodGet, "/api/testimonials/6", nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admins, got %d", rec.Code)
	}
}
