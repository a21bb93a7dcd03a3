package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/auth"
	"estatedesk/backoffice/internal/config"
	"estatedesk/backoffice/internal/developer"
	"estatedesk/backoffice/internal/lead"
	"estatedesk/backoffice/internal/migrations"
	"estatedesk/backoffice/internal/offer"
	"estatedesk/backoffice/internal/project"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/testimonial"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (auth.Session, auth.User, error)
	VerifySession(ctx context.Context, sessionID string) (auth.Principal, error)
	Logout(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, sessionID, currentPassword, newPassword string) error
	ListSessions(ctx context.Context) ([]auth.SessionView, error)
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

type DeveloperService interface {
	Create(ctx context.Context, in developer.Input) (developer.Developer, error)
	Get(ctx context.Context, id int64) (developer.Developer, error)
	List(ctx context.Context, f developer.ListFilter) ([]developer.Developer, error)
	Update(ctx context.Context, id int64, in developer.Input) (developer.Developer, error)
	SetImages(ctx context.Context, id int64, img developer.Images) error
	Delete(ctx context.Context, id int64) (developer.Developer, error)
	AddAward(ctx context.Context, developerID int64, in developer.AwardInput, imagePath string) (developer.Award, error)
	DeleteAward(ctx context.Context, developerID, awardID int64) (developer.Award, error)
}

type ProjectService interface {
	Create(ctx context.Context, in project.Input) (project.Project, error)
	Get(ctx context.Context, id int64) (project.Project, error)
	List(ctx context.Context, f project.ListFilter) ([]project.Project, error)
	Update(ctx context.Context, id int64, in project.Input) (project.Project, error)
	SetAssets(ctx context.Context, id int64, a project.Assets) error
	AddFiles(ctx context.Context, id int64, kind storage.Kind, paths []string) ([]project.File, error)
	RemoveFiles(ctx context.Context, id int64, fileIDs []int64) ([]project.File, error)
	Delete(ctx context.Context, id int64) (project.Project, error)
}

type OfferService interface {
	Create(ctx context.Context, in offer.Input) (offer.Offer, error)
	Get(ctx context.Context, id int64) (offer.Offer, error)
	List(ctx context.Context, f offer.ListFilter) ([]offer.Offer, error)
	Update(ctx context.Context, id int64, in offer.Input) (offer.Offer, error)
	Delete(ctx context.Context, id int64) error
}

type LeadService interface {
	Create(ctx context.Context, in lead.Input) (lead.Lead, error)
	Get(ctx context.Context, id int64) (lead.Lead, error)
	List(ctx context.Context, f lead.ListFilter) ([]lead.Lead, error)
	UpdateStatus(ctx context.Context, id int64, status string) (lead.Lead, error)
	Delete(ctx context.Context, id int64) error
}

type TestimonialService interface {
	Create(ctx context.Context, in testimonial.Input) (testimonial.Testimonial, error)
	Get(ctx context.Context, id int64) (testimonial.Testimonial, error)
	List(ctx context.Context, f testimonial.ListFilter) ([]testimonial.Testimonial, error)
	Update(ctx context.Context, id int64, in testimonial.Input) (testimonial.Testimonial, error)
	SetPhoto(ctx context.Context, id int64, path string) error
	Delete(ctx context.Context, id int64) (testimonial.Testimonial, error)
}

type MigrationService interface {
	Status(ctx context.Context) ([]migrations.Status, error)
	MarkApplied(ctx context.Context, name string, appliedAt time.Time) error
}

// FileStore is the subset of *storage.Manager the handlers use.
type FileStore interface {
	Root() string
	SaveSingle(f storage.File, kind storage.Kind, entityID int64) (string, error)
	SaveMultiple(files []storage.File, kind storage.Kind, entityID int64) ([]string, error)
	DeleteSingle(rel string) error
	DeleteMultiple(rels []string) error
	DeleteFolder(kind storage.Kind, entityID int64) error
	Replace(oldPath string, f storage.File, kind storage.Kind, entityID int64) (string, error)
}

type AuditLogger interface {
	Log(e audit.Event) error
}

// Deps are the collaborators of the HTTP layer. Routes whose service is nil
// are not registered; routes that take uploads also need Files.
type Deps struct {
	Auth         AuthService
	Developers   DeveloperService
	Projects     ProjectService
	Offers       OfferService
	Leads        LeadService
	Testimonials TestimonialService
	Migrations   MigrationService
	Files        FileStore
	Audit        AuditLogger
	Logger       *slog.Logger
	Metrics      *Metrics
	// Ready backs /readyz, typically a database ping.
	Ready          func(ctx context.Context) error
	CookieSecure   bool
	MaxUploadBytes int64
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = cfg.MaxUploadBytes
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

const defaultMaxUploadBytes = 64 << 20

type handlers struct {
	deps    Deps
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewHandler builds the full route table wrapped in the recovery and request
// logging middleware.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	h := &handlers{deps: deps, log: deps.Logger, nowFunc: time.Now}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Use(deps.Metrics.middleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	if deps.Files != nil {
		r.PathPrefix("/" + storage.UploadsDir + "/").Handler(uploadsHandler(deps.Files.Root())).Methods(http.MethodGet, http.MethodHead)
	}

	// Full /api paths on the root router; a mux subrouter answers method
	// mismatches with 404.
	if deps.Auth != nil {
		h.registerAuthRoutes(r)
		h.registerSystemRoutes(r)
	}
	if deps.Developers != nil && deps.Files != nil {
		h.registerDeveloperRoutes(r)
	}
	if deps.Projects != nil && deps.Files != nil {
		h.registerProjectRoutes(r)
	}
	if deps.Offers != nil {
		h.registerOfferRoutes(r)
	}
	if deps.Leads != nil {
		h.registerLeadRoutes(r)
	}
	if deps.Testimonials != nil && deps.Files != nil {
		h.registerTestimonialRoutes(r)
	}

	return recoveryMiddleware(deps.Logger, loggingMiddleware(deps.Logger, r))
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ready(ctx); err != nil {
			h.log.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
