package storage

import (
	"database/sql"
	"fmt"
)

var sqliteMigrations = []string{
	// 1: attempt log
	`CREATE TABLE IF NOT EXISTS routing_attempts (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		provider    TEXT NOT NULL,
		model       TEXT NOT NULL,
		outcome     TEXT NOT NULL CHECK(outcome IN ('success', 'rate_limited', 'budget_exceeded', 'provider_error')),
		reason      TEXT NOT NULL DEFAULT '',
		cost_usd    REAL NOT NULL DEFAULT 0.0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		timestamp   DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_request ON routing_attempts(request_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_provider ON routing_attempts(provider);
	CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON routing_attempts(timestamp);`,

	// 2: spend restore scans successful attempts by time
	`CREATE INDEX IF NOT EXISTS idx_attempts_outcome_ts ON routing_attempts(outcome, timestamp);`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS routing_attempts (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		provider    TEXT NOT NULL,
		model       TEXT NOT NULL,
		outcome     TEXT NOT NULL CHECK (outcome IN ('success', 'rate_limited', 'budget_exceeded', 'provider_error')),
		reason      TEXT NOT NULL DEFAULT '',
		cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
		tokens_used BIGINT NOT NULL DEFAULT 0,
		latency_ms  BIGINT NOT NULL DEFAULT 0,
		timestamp   TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_request ON routing_attempts(request_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_provider ON routing_attempts(provider);
	CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON routing_attempts(timestamp);`,

	`CREATE INDEX IF NOT EXISTS idx_attempts_outcome_ts ON routing_attempts(outcome, timestamp);`,
}

// runMigrations applies pending schema migrations, one transaction each.
func runMigrations(db *sql.DB, migrations []string, bind func(int) string) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ("+bind(1)+")", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
