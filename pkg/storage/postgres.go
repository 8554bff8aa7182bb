package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Postgres stores the attempt log in PostgreSQL, for deployments running
// several gateway replicas against one log.
type Postgres struct {
	sqlStore
}

// NewPostgres connects to dsn, verifies the connection and applies migrations.
func NewPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p, err := NewPostgresFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresFromDB wraps an open connection pool and applies migrations.
func NewPostgresFromDB(db *sql.DB) (*Postgres, error) {
	if err := runMigrations(db, postgresMigrations, dollarBind); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Postgres{sqlStore{db: db, bind: dollarBind}}, nil
}
