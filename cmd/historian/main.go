// cmd/historian is an asynchronous historian service that pops game actions
// from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/timebid/internal/cache"
	"github.com/jason-s-yu/timebid/internal/config"
	"github.com/jason-s-yu/timebid/internal/database"
	"github.com/jason-s-yu/timebid/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx, cfg.Postgres); err != nil {
		logger.Fatal(err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	rdb := cache.NewClient(cfg.Redis)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("redis: %v", err)
	}

	svc := historian.New(rdb, historian.PostgresStore{}, cfg, logger)
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian stopped")
	}
	logger.Info("Historian shutdown complete.")
}
