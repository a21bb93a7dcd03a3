package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/migrations"
	"estatedesk/backoffice/internal/storage"
)

type fakeMigrations struct {
	applied []string
}

func (f *fakeMigrations) Status(context.Context) ([]migrations.Status, error) {
	return []migrations.Status{{Name: "0001_init.sql", Applied: true}}, nil
}

func (f *fakeMigrations) MarkApplied(_ context.Context, name string, _ time.Time) error {
	switch name {
	case "0001_init.sql":
		f.applied = append(f.applied, name)
		return nil
	case "notes.txt":
		return migrations.ErrInvalidName
	}
	return fmt.Errorf("%w: %s", migrations.ErrUnknown, name)
}

func TestMarkMigrationApplied(t *testing.T) {
	migs := &fakeMigrations{}
	events := &fakeAudit{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Migrations: migs, Audit: events})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodPost, "/api/system/migrations/0001_init.sql/apply", nil), adminSID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(migs.applied) != 1 || migs.applied[0] != "0001_init.sql" {
		t.Fatalf("expected migration marked, got %v", migs.applied)
	}
	if len(events.events) != 1 || events.events[0].Action != "migration.apply" || events.events[0].ResourceID != "0001_init.sql" || events.events[0].Outcome != audit.OutcomeSuccess {
		t.Fatalf("unexpected audit events: %+v", events.events)
	}
}

func TestMarkMigrationAppliedErrors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		sid    string
		status int
	}{
		{"invalid name", "/api/system/migrations/notes.txt/apply", adminSID, http.StatusBadRequest},
		{"unknown migration", "/api/system/migrations/0009_missing.sql/apply", adminSID, http.StatusNotFound},
		{"non-admin", "/api/system/migrations/0001_init.sql/apply", editorSID, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			migs := &fakeMigrations{}
			events := &fakeAudit{}
			handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Migrations: migs, Audit: events})

			rec := serve(handler, withSession(httptest.NewRequest(http.MethodPost, tc.target, nil), tc.sid))
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if len(migs.applied) != 0 {
				t.Fatalf("expected nothing marked, got %v", migs.applied)
			}
			if len(events.events) != 1 || events.events[0].Outcome == audit.OutcomeSuccess {
				t.Fatalf("expected one refused audit event, got %+v", events.events)
			}
		})
	}
}

func TestDeleteOwnSessionClearsCookie(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodDelete, "/api/system/sessions/"+adminSID, nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName || cookies[0].Value != "" || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected session cookie cleared, got %+v", cookies)
	}
}

func TestDeleteOtherSessionKeepsCookie(t *testing.T) {
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}})

	rec := serve(handler, withSession(httptest.NewRequest(http.MethodDelete, "/api/system/sessions/sid-other", nil), adminSID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("expected no cookie change, got %+v", cookies)
	}
}

func TestRefusedAdminRequestsAreAudited(t *testing.T) {
	events := &fakeAudit{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Leads: &fakeLeadService{}, Audit: events})

	if rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/leads", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec := serve(handler, withSession(httptest.NewRequest(http.MethodGet, "/api/leads", nil), editorSID)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}

	if len(events.events) != 2 {
		t.Fatalf("expected two audit events, got %+v", events.events)
	}
	for _, e := range events.events {
		if e.Action != "access.denied" || e.Outcome != audit.OutcomeDenied || e.ResourceID != "GET /api/leads" {
			t.Fatalf("unexpected denied event: %+v", e)
		}
	}
	if events.events[0].Actor != "" || events.events[1].Actor != "editor@example.com" {
		t.Fatalf("unexpected actors: %q, %q", events.events[0].Actor, events.events[1].Actor)
	}
}

func TestSessionOnlyRoutesDoNotAuditRefusals(t *testing.T) {
	events := &fakeAudit{}
	handler := NewHandler(Deps{Logger: testLogger(), Auth: fakeAuthService{}, Audit: events})

	rec := serve(handler, httptest.NewRequest(http.MethodPost, "/api/auth/change-password", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no audit events, got %+v", events.events)
	}
}

func TestFileErrorsUseFormFieldNames(t *testing.T) {
	h := &handlers{log: testLogger()}
	cases := map[storage.Kind]string{
		storage.KindProjectLogo: "logo",
		storage.KindOGImage:     "og_image",
		storage.KindTestimonial: "photo",
		storage.KindGallery:     "gallery",
	}
	for kind, field := range cases {
		rec := httptest.NewRecorder()
		err := fmt.Errorf("store upload: %w", &storage.ValidationError{File: "x.png", Kind: kind, Message: "File too large. Maximum size: 2MB"})
		h.fail(rec, httptest.NewRequest(http.MethodPost, "/api/projects", nil), err)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", kind, rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if env.Error == nil || env.Error.Fields[field] == "" || len(env.Error.Fields) != 1 {
			t.Fatalf("%s: expected error under %q, got %s", kind, field, rec.Body.String())
		}
	}
}
