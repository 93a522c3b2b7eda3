// Package app wires the database, config and engine for the CLI and server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"steward/internal/config"
	"steward/internal/db"
	"steward/internal/engine"
	"steward/internal/migrate"
	"steward/internal/repo"
)

// App is a fully wired steward instance rooted at a workspace directory.
type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
}

// Open opens the workspace database, applies migrations and resolves the
// effective config.
func Open(ctx context.Context, workspace string) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := ResolveConfig(ctx, conn, workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &App{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    engine.New(conn, cfg),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// ResolveConfig loads the stored governance config, seeding it from
// steward.yml or the defaults on first run. The database copy is the source
// of truth afterwards; ImportConfig replaces it explicitly.
func ResolveConfig(ctx context.Context, conn *sql.DB, workspace string) (*config.Config, error) {
	r := repo.Repo{DB: conn}
	stored, err := r.GetConfig(ctx)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("load stored config: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := r.UpsertConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}
	return cfg, nil
}

// ImportConfig validates and stores a new governance config from a file.
func (a *App) ImportConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	r := repo.Repo{DB: a.DB}
	if err := r.UpsertConfig(ctx, cfg); err != nil {
		return nil, err
	}
	a.Config = cfg
	a.Engine.Config = cfg
	return cfg, nil
}
