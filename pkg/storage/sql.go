package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
)

// sqlStore holds the attempt queries shared by the SQL backends. The two
// dialects differ only in their placeholder syntax.
type sqlStore struct {
	db   *sql.DB
	bind func(n int) string
}

func questionBind(int) string { return "?" }

func dollarBind(n int) string { return "$" + strconv.Itoa(n) }

const attemptColumns = "id, request_id, provider, model, outcome, reason, cost_usd, tokens_used, latency_ms, timestamp"

func (s *sqlStore) RecordAttempt(ctx context.Context, a *model.RoutingAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if !a.Outcome.Valid() {
		return fmt.Errorf("insert attempt: invalid outcome %q", a.Outcome)
	}

	placeholders := make([]string, 10)
	for i := range placeholders {
		placeholders[i] = s.bind(i + 1)
	}
	query := "INSERT INTO routing_attempts (" + attemptColumns + ") VALUES (" + strings.Join(placeholders, ", ") + ")"

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.RequestID, a.Provider, a.Model, string(a.Outcome), a.Reason,
		a.CostUSD, a.TokensUsed, a.LatencyMs, a.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *sqlStore) QueryAttempts(ctx context.Context, filter model.AttemptFilter) ([]model.RoutingAttempt, error) {
	query := "SELECT " + attemptColumns + " FROM routing_attempts"
	where, args := s.buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.RoutingAttempt
	for rows.Next() {
		var a model.RoutingAttempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Provider, &a.Model, &outcome, &a.Reason,
			&a.CostUSD, &a.TokensUsed, &a.LatencyMs, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		a.Outcome = model.Outcome(outcome)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *sqlStore) AggregateAttempts(ctx context.Context, filter model.AttemptFilter) (*model.AttemptSummary, error) {
	query := `SELECT
		COALESCE(SUM(cost_usd), 0),
		COALESCE(SUM(tokens_used), 0),
		COUNT(*)
	FROM routing_attempts`
	where, args := s.buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	summary := &model.AttemptSummary{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalCostUSD,
		&summary.TotalTokens,
		&summary.AttemptCount,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate attempts: %w", err)
	}

	summary.ByProvider, err = s.costByField(ctx, "provider", where, args)
	if err != nil {
		return nil, err
	}
	summary.ByModel, err = s.costByField(ctx, "model", where, args)
	if err != nil {
		return nil, err
	}
	summary.ByOutcome, err = s.countByOutcome(ctx, where, args)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *sqlStore) costByField(ctx context.Context, field, where string, args []any) (map[string]float64, error) {
	query := fmt.Sprintf("SELECT %s, COALESCE(SUM(cost_usd), 0) FROM routing_attempts", field)
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" GROUP BY %s", field)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by %s: %w", field, err)
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var name string
		var total float64
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("scan %s aggregate: %w", field, err)
		}
		result[name] = total
	}
	return result, rows.Err()
}

func (s *sqlStore) countByOutcome(ctx context.Context, where string, args []any) (map[model.Outcome]int64, error) {
	query := "SELECT outcome, COUNT(*) FROM routing_attempts"
	if where != "" {
		query += " WHERE " + where
	}
	query += " GROUP BY outcome"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by outcome: %w", err)
	}
	defer rows.Close()

	result := make(map[model.Outcome]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		result[model.Outcome(outcome)] = n
	}
	return result, rows.Err()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// buildWhereClause constructs a SQL WHERE clause from an AttemptFilter.
// Times are compared in UTC, matching how they are written.
func (s *sqlStore) buildWhereClause(filter model.AttemptFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(column, op string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" "+op+" "+s.bind(len(args)))
	}

	if filter.RequestID != "" {
		add("request_id", "=", filter.RequestID)
	}
	if filter.Provider != "" {
		add("provider", "=", filter.Provider)
	}
	if filter.Model != "" {
		add("model", "=", filter.Model)
	}
	if filter.Outcome != "" {
		add("outcome", "=", string(filter.Outcome))
	}
	if !filter.StartTime.IsZero() {
		add("timestamp", ">=", filter.StartTime.UTC())
	}
	if !filter.EndTime.IsZero() {
		add("timestamp", "<", filter.EndTime.UTC())
	}

	return strings.Join(conditions, " AND "), args
}
