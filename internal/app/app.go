package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aadhira3355/BluePulse/internal/config"
	"github.com/aadhira3355/BluePulse/internal/db"
	"github.com/aadhira3355/BluePulse/internal/engine"
	"github.com/aadhira3355/BluePulse/internal/migrate"
)

// Bootstrap opens the in-memory store, applies migrations, seeds the mock
// catalog and starts the background task workers. The returned cleanup stops
// the workers and closes the store.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Engine, func(), error) {
	conn, err := db.Open()
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate store: %w", err)
	}
	e := engine.New(conn, cfg, logger)
	if err := e.Seed(ctx); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("seed store: %w", err)
	}
	e.Start(ctx)
	cleanup := func() {
		e.Stop()
		conn.Close()
	}
	return e, cleanup, nil
}
