// Command sessioncleanup deletes expired admin sessions once and exits. It is
// meant for cron when the server's own cleanup loop is disabled.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"estatedesk/backoffice/internal/auth"
	"estatedesk/backoffice/internal/config"
	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("session cleanup: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := auth.NewPostgresUserStore(db)
	if err != nil {
		return fmt.Errorf("create user store: %w", err)
	}
	sessions, err := auth.NewPostgresSessionStore(db)
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	svc, err := auth.NewService(users, sessions, auth.ServiceConfig{SessionTTL: cfg.Auth.SessionTTL})
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	n, err := svc.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	logger.Info("expired sessions removed", "count", n)
	return nil
}
