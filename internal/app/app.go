package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"estatedesk/backoffice/internal/audit"
	"estatedesk/backoffice/internal/auth"
	"estatedesk/backoffice/internal/config"
	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/developer"
	"estatedesk/backoffice/internal/httpserver"
	"estatedesk/backoffice/internal/lead"
	"estatedesk/backoffice/internal/migrations"
	"estatedesk/backoffice/internal/observability"
	"estatedesk/backoffice/internal/offer"
	"estatedesk/backoffice/internal/project"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/testimonial"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	auth   *auth.Service
	server *httpserver.Server
}

// New connects to the database, applies pending migrations, seeds the
// bootstrap admin and wires every service into the HTTP server.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger, db *sql.DB) (*App, error) {
	migrationService, err := migrations.NewService(db)
	if err != nil {
		return nil, fmt.Errorf("create migration service: %w", err)
	}
	applied, err := migrationService.Apply(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "files", applied)
	}

	userStore, err := auth.NewPostgresUserStore(db)
	if err != nil {
		return nil, fmt.Errorf("create postgres user store: %w", err)
	}
	sessionStore, err := auth.NewPostgresSessionStore(db)
	if err != nil {
		return nil, fmt.Errorf("create postgres session store: %w", err)
	}
	authService, err := auth.NewService(userStore, sessionStore, auth.ServiceConfig{
		SessionTTL: cfg.Auth.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	created, err := authService.EnsureBootstrapUser(ctx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapName, cfg.Auth.BootstrapPassword)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("bootstrap admin created", "email", cfg.Auth.BootstrapEmail)
		if !cfg.IsDevelopment() {
			logger.Warn("change the bootstrap admin password before going live", "email", cfg.Auth.BootstrapEmail)
		}
	}

	developers, err := developer.NewPGService(db)
	if err != nil {
		return nil, fmt.Errorf("create developer service: %w", err)
	}
	projects, err := project.NewPGService(db)
	if err != nil {
		return nil, fmt.Errorf("create project service: %w", err)
	}
	offers, err := offer.NewPGService(db)
	if err != nil {
		return nil, fmt.Errorf("create offer service: %w", err)
	}
	leads, err := lead.NewPGService(db)
	if err != nil {
		return nil, fmt.Errorf("create lead service: %w", err)
	}
	testimonials, err := testimonial.NewPGService(db)
	if err != nil {
		return nil, fmt.Errorf("create testimonial service: %w", err)
	}
	files, err := storage.NewManager(cfg.Storage.PublicDir)
	if err != nil {
		return nil, fmt.Errorf("create file storage: %w", err)
	}

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:         authService,
		Developers:   developers,
		Projects:     projects,
		Offers:       offers,
		Leads:        leads,
		Testimonials: testimonials,
		Migrations:   migrationService,
		Files:        files,
		Audit:        audit.NewLogger(cfg.AuditLogFile),
		Logger:       logger,
		Metrics:      httpserver.NewMetrics(),
		Ready:        db.PingContext,
		CookieSecure: cfg.Auth.CookieSecure,
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		db:     db,
		auth:   authService,
		server: server,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.db.Close(); err != nil {
			a.log.Warn("close database", "error", err)
		}
	}()

	if a.cfg.Auth.CleanupInterval > 0 {
		go a.cleanupSessions(ctx, a.cfg.Auth.CleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "env", a.cfg.Env)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

// cleanupSessions deletes expired session rows every interval until ctx is
// done.
func (a *App) cleanupSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.auth.CleanupExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("session cleanup failed", "error", err)
				}
				continue
			}
			if n > 0 {
				a.log.Info("expired sessions removed", "count", n)
			}
		}
	}
}
