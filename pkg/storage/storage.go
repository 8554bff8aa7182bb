package storage

import (
	"context"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
)

// Storage persists the routing attempt log.
type Storage interface {
	// RecordAttempt appends a single attempt. ID and Timestamp are filled if empty.
	RecordAttempt(ctx context.Context, attempt *model.RoutingAttempt) error

	// QueryAttempts returns attempts matching the filter, newest first.
	QueryAttempts(ctx context.Context, filter model.AttemptFilter) ([]model.RoutingAttempt, error)

	// AggregateAttempts returns totals for attempts matching the filter.
	AggregateAttempts(ctx context.Context, filter model.AttemptFilter) (*model.AttemptSummary, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
