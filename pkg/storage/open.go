package storage

import (
	"context"
	"fmt"
)

// Config selects and configures a storage backend.
type Config struct {
	Driver   string
	Path     string // sqlite
	DSN      string // postgres
	Postgres PostgresOptions
}

// Open creates the backend named by cfg.Driver. An empty driver means SQLite.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLite(cfg.Path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return NewPostgres(ctx, cfg.DSN, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
