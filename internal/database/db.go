package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/timebid/internal/config"
)

// DB is the global pool. Connect it once at application startup.
var DB *pgxpool.Pool

// ConnectDB opens the pool and checks the connection.
func ConnectDB(ctx context.Context, cfg config.Postgres) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("db ping error: %w", err)
	}
	DB = pool
	return nil
}

// Close releases the global pool.
func Close() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}
