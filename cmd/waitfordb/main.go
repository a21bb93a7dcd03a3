// Command waitfordb blocks until the configured database accepts connections.
// Container entrypoints run it before the server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"estatedesk/backoffice/internal/config"
	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/observability"
)

const retryInterval = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Database.WaitTimeout)
	defer cancel()

	ping := func(ctx context.Context) error {
		db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{MaxOpenConns: 1})
		if err != nil {
			return err
		}
		return db.Close()
	}
	if err := waitForDatabase(ctx, logger, ping, retryInterval); err != nil {
		log.Fatalf("wait for database: %v", err)
	}
	logger.Info("database ready")
}

// waitForDatabase calls ping until it succeeds or ctx is done.
func waitForDatabase(ctx context.Context, logger *slog.Logger, ping func(context.Context) error, interval time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := ping(ctx)
		if err == nil {
			return nil
		}
		logger.Info("database not ready", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %d attempts: %w", attempt, err)
		case <-time.After(interval):
		}
	}
}
