// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/timebid/internal/auth"
	"github.com/jason-s-yu/timebid/internal/cache"
	"github.com/jason-s-yu/timebid/internal/catalog"
	"github.com/jason-s-yu/timebid/internal/config"
	"github.com/jason-s-yu/timebid/internal/database"
	"github.com/jason-s-yu/timebid/internal/handlers"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	reg, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"cards": len(reg.Cards), "characters": len(reg.Characters)}).Info("catalog loaded")

	if err := auth.Init(cfg.TokenExpireTime); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// history is best effort; the table works without either store
	if cfg.Redis.Enabled {
		if err := cache.ConnectRedis(ctx, cfg.Redis); err != nil {
			logger.WithError(err).Warn("historian queue disabled")
		} else {
			defer cache.Close()
		}
	}
	persist := false
	if cfg.Postgres.Enabled {
		if err := database.ConnectDB(ctx, cfg.Postgres); err != nil {
			logger.WithError(err).Warn("game results will not be stored")
		} else {
			defer database.Close()
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			persist = true
		}
	}

	gs := handlers.NewGameServer(reg, logger)
	gs.PersistResults = persist

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           gs.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return gs.RunEvictor(ctx, cfg.TableIdleTimeout)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		gs.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
