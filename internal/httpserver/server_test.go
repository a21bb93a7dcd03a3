package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/auth"
	"estatedesk/backoffice/internal/developer"
	"estatedesk/backoffice/internal/lead"
	"estatedesk/backoffice/internal/offer"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/validation"
)

const (
	adminSID  = "sid-admin"
	editorSID = "sid-editor"
)

type fakeAuthService struct {
	loginFunc  func(email, password string) (auth.Session, auth.User, error)
	logoutFunc func(sessionID string) error
}

func (f fakeAuthService) Login(_ context.Context, email, password string) (auth.Session, auth.User, error) {
	if f.loginFunc == nil {
		return auth.Session{}, auth.User{}, auth.ErrInvalidCredentials
	}
	return f.loginFunc(email, password)
}

func (f fakeAuthService) VerifySession(_ context.Context, sessionID string) (auth.Principal, error) {
	switch sessionID {
	case "":
		return auth.Principal{}, auth.ErrNoSession
	case adminSID:
		return auth.Principal{UserID: "u-1", Email: "admin@example.com", Name: "Site Admin", Role: auth.RoleAdmin, SessionID: adminSID}, nil
	case editorSID:
		return auth.Principal{UserID: "u-2", Email: "editor@example.com", Name: "Editor", Role: "editor", SessionID: editorSID}, nil
	}
	return auth.Principal{}, auth.ErrInvalidSession
}

func (f fakeAuthService) Logout(_ context.Context, sessionID string) error {
	if f.logoutFunc == nil {
		return nil
	}
	return f.logoutFunc(sessionID)
}

func (f fakeAuthService) DeleteSession(context.Context, string) error { return nil }

func (f fakeAuthService) ChangePassword(context.Context, string, string, string) error { return nil }

func (f fakeAuthService) ListSessions(context.Context) ([]auth.SessionView, error) { return nil, nil }

func (f fakeAuthService) CleanupExpiredSessions(context.Context) (int64, error) { return 0, nil }

type fakeDeveloperService struct {
	DeveloperService

	mu      sync.Mutex
	items   map[int64]developer.Developer
	created []developer.Input
	images  map[int64]developer.Images
	delErr  error
	listFn  func(f developer.ListFilter) ([]developer.Developer, error)
}

func newFakeDevelopers() *fakeDeveloperService {
	return &fakeDeveloperService{
		items:  map[int64]developer.Developer{},
		images: map[int64]developer.Images{},
	}
}

func (f *fakeDeveloperService) Create(_ context.Context, in developer.Input) (developer.Developer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(in.Name) == "" {
		return developer.Developer{}, validation.Errors{"name": "This field is required"}
	}
	f.created = append(f.created, in)
	d := developer.Developer{ID: int64(len(f.created)), Name: in.Name, IsActive: true}
	f.items[d.ID] = d
	return d, nil
}

func (f *fakeDeveloperService) Get(_ context.Context, id int64) (developer.Developer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return developer.Developer{}, developer.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeveloperService) List(_ context.Context, filter developer.ListFilter) ([]developer.Developer, error) {
	if f.listFn != nil {
		return f.listFn(filter)
	}
	return nil, nil
}

func (f *fakeDeveloperService) Update(_ context.Context, id int64, in developer.Input) (developer.Developer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return developer.Developer{}, developer.ErrNotFound
	}
	d.Name = in.Name
	f.items[id] = d
	return d, nil
}

func (f *fakeDeveloperService) SetImages(_ context.Context, id int64, img developer.Images) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[id] = img
	if d, ok := f.items[id]; ok {
		d.LogoPath, d.CoverPath = img.LogoPath, img.CoverPath
		f.items[id] = d
	}
	return nil
}

func (f *fakeDeveloperService) Delete(_ context.Context, id int64) (developer.Developer, error) {
	if f.delErr != nil {
		return developer.Developer{}, f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return developer.Developer{}, developer.ErrNotFound
	}
	delete(f.items, id)
	return d, nil
}

type fakeLeadService struct {
	LeadService

	created   []lead.Input
	statusErr error
}

func (f *fakeLeadService) Create(_ context.Context, in lead.Input) (lead.Lead, error) {
	f.created = append(f.created, in)
	return lead.Lead{ID: 7, Name: in.Name, Phone: in.Phone, Source: lead.DefaultSource, Status: lead.StatusNew}, nil
}

func (f *fakeLeadService) UpdateStatus(_ context.Context, id int64, status string) (lead.Lead, error) {
	if f.statusErr != nil {
		return lead.Lead{}, f.statusErr
	}
	return lead.Lead{ID: id, Status: status}, nil
}

type fakeOfferService struct {
	OfferService

	filters []offer.ListFilter
	updated map[int64]offer.Input
}

func (f *fakeOfferService) Update(_ context.Context, id int64, in offer.Input) (offer.Offer, error) {
	if id != 3 {
		return offer.Offer{}, offer.ErrNotFound
	}
	if f.updated == nil {
		f.updated = map[int64]offer.Input{}
	}
	f.updated[id] = in
	return offer.Offer{ID: id, ProjectID: in.ProjectID, Title: in.Title}, nil
}

func (f *fakeOfferService) List(_ context.Context, filter offer.ListFilter) ([]offer.Offer, error) {
	f.filters = append(f.filters, filter)
	return []offer.Offer{}, nil
}

type fakeAudit struct {
	events []audit.Event
}

func (f *fakeAudit) Log(e audit.Event) error {
	f.events = append(f.events, e)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileStore(t *testing.T) *storage.Manager {
	t.Helper()
	m, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withSession(req *http.Request, sid string) *http.Request {
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sid})
	return req
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return env
}

type formFile struct {
	field string
	name  string
	data  []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile() error: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthz(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger()})
	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger()})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := serve(handler, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestReadyz(t *testing.T) {
	ready := NewHandler(Deps{Logger: testLogger(), Ready: func(context.Context) error { return nil }})
	if rec := serve(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	down := NewHandler(Deps{Logger: testLogger(), Ready: func(context.Context) error { return io.ErrUnexpectedEOF }})
	if rec := serve(down, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}})
	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Message != "Not found" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	expires := time.Now().Add(7 * 24 * time.Hour)
	handler := NewHandler(Deps{
		Logger:       testLogger(),
		CookieSecure: true,
		Auth: fakeAuthService{loginFunc: func(email, password string) (auth.Session, auth.User, error) {
			if email != "admin@example.com" || password != "secret123" {
				return auth.Session{}, auth.User{}, auth.ErrInvalidCredentials
			}
			return auth.Session{ID: "s-1", ExpiresAt: expires},
				auth.User{ID: "u-1", Email: email, Name: "Site Admin", Role: auth.RoleAdmin}, nil
		}},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != sessionCookieName || c.Value != "s-1" {
		t.Fatalf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}
	if c.MaxAge <= 0 {
		t.Fatalf("expected positive MaxAge, got %d", c.MaxAge)
	}

	env := decodeEnvelope(t, rec)
	var data struct {
		User userResponse `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !env.Success || data.User.Email != "admin@example.com" || data.User.Role != auth.RoleAdmin {
		t.Fatalf("unexpected login response: %s", rec.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	events := &fakeAudit{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Audit: events})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"wrong"}`))
	rec := serve(handler, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Invalid email or password" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no cookie on failed login")
	}
	if len(events.events) != 1 || events.events[0].Outcome != audit.OutcomeFailure {
		t.Fatalf("expected failed login to be audited, got %+v", events.events)
	}
}

func TestLoginValidatesBody(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"not-an-email"}`))
	rec := serve(handler, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Fields["email"] == "" || env.Error.Fields["password"] == "" {
		t.Fatalf("expected email and password field errors, got %s", rec.Body.String())
	}
}

func TestVerify(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var got struct {
		Success bool           `json:"success"`
		Valid   bool           `json:"valid"`
		User    auth.Principal `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if !got.Success || !got.Valid || got.User.Email != "admin@example.com" {
		t.Fatalf("unexpected verify response: %s", rec.Body.String())
	}

	rec = serve(handler, httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without cookie, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"valid":false`) {
		t.Fatalf("expected valid=false, got %s", rec.Body.String())
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	var loggedOut string
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{logoutFunc: func(sid string) error {
		loggedOut = sid
		return nil
	}}})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if loggedOut != adminSID {
		t.Fatalf("expected session %q revoked, got %q", adminSID, loggedOut)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "" || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cookies)
	}

	rec = serve(handler, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout without cookie to succeed, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdminSession(t *testing.T) {
	devs := newFakeDevelopers()
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: newFileStore(t)})

	rec := serve(handler, multipartRequest(t, http.MethodPost, "/api/developers", map[string]string{"name": "Skyline"}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	rec = serve(handler, withSession(multipartRequest(t, http.MethodPost, "/api/developers", map[string]string{"name": "Skyline"}), "expired"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown session, got %d", rec.Code)
	}

	rec = serve(handler, withSession(multipartRequest(t, http.MethodPost, "/api/developers", map[string]string{"name": "Skyline"}), editorSID))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if len(devs.created) != 0 {
		t.Fatalf("expected no developer created")
	}
}

func TestCreateDeveloperStoresLogo(t *testing.T) {
	devs := newFakeDevelopers()
	files := newFileStore(t)
	events := &fakeAudit{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: files, Audit: events})

	req := multipartRequest(t, http.MethodPost, "/api/developers",
		map[string]string{"name": "Skyline Builders", "established_year": "1998"},
		formFile{field: "logo", name: "logo.png", data: []byte("png-bytes")},
	)
	rec := serve(handler, withSession(req, adminSID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(devs.created) != 1 || devs.created[0].EstablishedYear == nil || *devs.created[0].EstablishedYear != 1998 {
		t.Fatalf("unexpected create input: %+v", devs.created)
	}
	img := devs.images[1]
	if !strings.HasPrefix(img.LogoPath, "uploads/Logo/logo-1-") || img.CoverPath != "" {
		t.Fatalf("unexpected stored images: %+v", img)
	}
	b, err := os.ReadFile(filepath.Join(files.Root(), filepath.FromSlash(img.LogoPath)))
	if err != nil || string(b) != "png-bytes" {
		t.Fatalf("expected logo on disk, got %q err=%v", b, err)
	}
	if len(events.events) != 1 || events.events[0].Action != "developer.create" || events.events[0].Actor != "admin@example.com" {
		t.Fatalf("unexpected audit events: %+v", events.events)
	}

	rec = serve(handler, httptest.NewRequest(http.MethodGet, "/"+img.LogoPath, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" {
		t.Fatalf("expected stored logo to be served, got %d", rec.Code)
	}
}

func TestCreateDeveloperRejectsOversizedLogo(t *testing.T) {
	devs := newFakeDevelopers()
	files := newFileStore(t)
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: files})

	req := multipartRequest(t, http.MethodPost, "/api/developers",
		map[string]string{"name": "Skyline Builders"},
		formFile{field: "logo", name: "big.jpg", data: make([]byte, 6*1024*1024)},
	)
	rec := serve(handler, withSession(req, adminSID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Fields["logo"] != "File too large. Maximum size: 2MB" {
		t.Fatalf("expected logo field error, got %s", rec.Body.String())
	}
	if len(devs.created) != 0 {
		t.Fatalf("expected no developer created")
	}
	entries, _ := os.ReadDir(filepath.Join(files.Root(), storage.UploadsDir))
	if len(entries) != 0 {
		t.Fatalf("expected nothing written, found %d entries", len(entries))
	}
}

func TestCreateDeveloperValidationErrors(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: newFakeDevelopers(), Files: newFileStore(t)})

	rec := serve(handler, withSession(multipartRequest(t, http.MethodPost, "/api/developers", map[string]string{"established_year": "abc"}), adminSID))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Fields["established_year"] == "" {
		t.Fatalf("expected established_year error, got %s", rec.Body.String())
	}
}

func TestDeleteDeveloperInUse(t *testing.T) {
	devs := newFakeDevelopers()
	devs.delErr = developer.ErrInUse
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: newFileStore(t)})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodDelete, "/api/developers/3", nil), adminSID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestDeleteDeveloperRemovesFiles(t *testing.T) {
	devs := newFakeDevelopers()
	files := newFileStore(t)
	logo, err := files.SaveSingle(storage.BytesFile("a.png", []byte("a")), storage.KindLogo, 4)
	if err != nil {
		t.Fatalf("SaveSingle() error: %v", err)
	}
	award, err := files.SaveSingle(storage.BytesFile("b.png", []byte("b")), storage.KindAward, 4)
	if err != nil {
		t.Fatalf("SaveSingle() error: %v", err)
	}
	devs.items[4] = developer.Developer{ID: 4, Name: "Old", LogoPath: logo}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: files})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodDelete, "/api/developers/4", nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	for _, rel := range []string{logo, award} {
		if _, err := os.Stat(filepath.Join(files.Root(), filepath.FromSlash(rel))); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", rel)
		}
	}
}

func TestPublicDeveloperReadsHideInactive(t *testing.T) {
	devs := newFakeDevelopers()
	devs.items[2] = developer.Developer{ID: 2, Name: "Dormant", IsActive: false}
	var filters []developer.ListFilter
	devs.listFn = func(f developer.ListFilter) ([]developer.Developer, error) {
		filters = append(filters, f)
		return nil, nil
	}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: newFileStore(t)})

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/developers/2", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for inactive developer, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Developer not found" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	rec = serve(handler, withSession(httptest.NewRequest(http.MethodGet, "/api/developers/2", nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin to see inactive developer, got %d", rec.Code)
	}

	serve(handler, httptest.NewRequest(http.MethodGet, "/api/developers", nil))
	serve(handler, withSession(httptest.NewRequest(http.MethodGet, "/api/developers?limit=5", nil), adminSID))
	if len(filters) != 2 || !filters[0].ActiveOnly || filters[1].ActiveOnly || filters[1].Limit != 5 {
		t.Fatalf("unexpected list filters: %+v", filters)
	}
}

func TestInvalidQueryParameter(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: newFakeDevelopers(), Files: newFileStore(t)})

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/developers?limit=ten", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Fields["limit"] == "" {
		t.Fatalf("expected limit field error, got %s", rec.Body.String())
	}
}

func TestCreateLeadIsPublic(t *testing.T) {
	leads := &fakeLeadService{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Leads: leads})

	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"name":"Asha","phone":"9876543210","status":"closed"}`))
	rec := serve(handler, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(leads.created) != 1 || leads.created[0].Name != "Asha" {
		t.Fatalf("unexpected lead input: %+v", leads.created)
	}

	rec = serve(handler, httptest.NewRequest(http.MethodGet, "/api/leads", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected lead listing to require a session, got %d", rec.Code)
	}
}

func TestUpdateLeadStatusInvalid(t *testing.T) {
	leads := &fakeLeadService{statusErr: lead.ErrInvalidStatus}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Leads: leads})

	req := withSession(httptest.NewRequest(http.MethodPatch, "/api/leads/3", strings.NewReader(`{"status":"won"}`)), adminSID)
	rec := serve(handler, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Fields["status"] == "" {
		t.Fatalf("expected status field error, got %s", rec.Body.String())
	}
}

func TestListOffersActiveForVisitors(t *testing.T) {
	offers := &fakeOfferService{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Offers: offers})

	serve(handler, httptest.NewRequest(http.MethodGet, "/api/offers?project_id=9", nil))
	serve(handler, withSession(httptest.NewRequest(http.MethodGet, "/api/offers", nil), adminSID))

	if len(offers.filters) != 2 {
		t.Fatalf("expected two list calls, got %d", len(offers.filters))
	}
	if !offers.filters[0].ActiveOnly || offers.filters[0].ProjectID != 9 {
		t.Fatalf("unexpected visitor filter: %+v", offers.filters[0])
	}
	if offers.filters[1].ActiveOnly {
		t.Fatalf("expected admin to see all offers")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Leads: &fakeLeadService{}})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/leads"},
		{http.MethodPost, "/api/leads/7"},
		{http.MethodPost, "/api/auth/verify"},
		{http.MethodGet, "/api/auth/login"},
	}
	for _, tc := range cases {
		rec := serve(handler, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected status 405, got %d", tc.method, tc.path, rec.Code)
		}
		if env := decodeEnvelope(t, rec); env.Success || env.Message != "Method not allowed" {
			t.Fatalf("%s %s: unexpected envelope %+v", tc.method, tc.path, env)
		}
	}
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: newFakeDevelopers(), Files: newFileStore(t)})

	serve(handler, httptest.NewRequest(http.MethodGet, "/api/developers/41", nil))
	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",route="/api/developers/{id:[0-9]+}",status="404"} 1`) {
		t.Fatalf("expected templated route label in metrics output")
	}
}

func TestUploadsDoNotListDirectories(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Files: newFileStore(t)})

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	devs := newFakeDevelopers()
	devs.listFn = func(developer.ListFilter) ([]developer.Developer, error) { panic("boom") }
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Developers: devs, Files: newFileStore(t)})

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/developers", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Message != "Internal server error" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
