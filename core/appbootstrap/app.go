// Package appbootstrap assembles the stores, services and HTTP server from a
// loaded configuration and runs them until the context is cancelled.
package appbootstrap

import (
	"context"
	"fmt"
	"time"

	"trustlog/api"
	"trustlog/config"
	"trustlog/core/store"
	"trustlog/core/utils"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	db     *store.DB
	server *api.Server
	logger *utils.Logger
}

// New opens the database, applies migrations and composes the server.
func New(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if v, err := store.SchemaVersion(ctx, db); err != nil {
		logger.Errorf("schema version: %v", err)
	} else {
		logger.Printf("database: schema version %d", v)
	}
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &App{
		db:     db,
		server: api.NewServer(cfg, rt.serverDeps, logger, rt.workers...),
		logger: logger,
	}, nil
}

func (a *App) Server() *api.Server {
	return a.server
}

// Run serves until ctx is done, then shuts the server and workers down and
// closes the database.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(ctx)
	}()
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Printf("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Errorf("server stopped: %v", runErr)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) Close() error {
	return a.db.Close()
}
