package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/logger"
)

// QueryLogEntry is one stored QueryExecuted event.
type QueryLogEntry struct {
	ID         uuid.UUID      `json:"id"`
	Connection string         `json:"connection"`
	Endpoint   string         `json:"endpoint"`
	Bindings   map[string]any `json:"bindings"`
	ElapsedMs  float64        `json:"elapsed_ms"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EndpointStats aggregates the query log per connection and endpoint.
type EndpointStats struct {
	Connection   string  `json:"connection"`
	Endpoint     string  `json:"endpoint"`
	Count        int64   `json:"count"`
	AvgElapsedMs float64 `json:"avg_elapsed_ms"`
}

// QueryLogRepository stores executed portal queries.
type QueryLogRepository struct {
	db      Querier
	logger  *slog.Logger
	timeout time.Duration
}

// NewQueryLogRepository creates a new QueryLogRepository. db is a
// *Connection or a transaction.
func NewQueryLogRepository(db Querier, log *slog.Logger) *QueryLogRepository {
	if log == nil {
		log = slog.Default()
	}
	return &QueryLogRepository{db: db, logger: log, timeout: 5 * time.Second}
}

// Record stores an event. Recording the same event twice is a no-op.
func (r *QueryLogRepository) Record(ctx context.Context, e shared.QueryExecuted) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", e.ID, err)
	}

	bindings := e.Bindings
	if bindings == nil {
		bindings = map[string]any{}
	}
	data, err := json.Marshal(bindings)
	if err != nil {
		return fmt.Errorf("marshal bindings: %w", err)
	}

	query := `
		INSERT INTO query_log (id, connection, endpoint, bindings, elapsed_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	elapsed := float64(e.Elapsed.Microseconds()) / 1000
	_, err = r.db.Exec(ctx, query, id, e.ConnectionName, e.Endpoint, data, elapsed, e.OccurredAt())
	if err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to record query: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *QueryLogRepository) Recent(ctx context.Context, limit int) ([]QueryLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, connection, endpoint, bindings, elapsed_ms, occurred_at
		FROM query_log
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer rows.Close()

	var entries []QueryLogEntry
	for rows.Next() {
		var entry QueryLogEntry
		var data []byte
		if err := rows.Scan(&entry.ID, &entry.Connection, &entry.Endpoint, &data, &entry.ElapsedMs, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan query log entry: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &entry.Bindings); err != nil {
				return nil, fmt.Errorf("unmarshal bindings: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Stats aggregates entries that occurred at or after since.
func (r *QueryLogRepository) Stats(ctx context.Context, since time.Time) ([]EndpointStats, error) {
	query := `
		SELECT connection, endpoint, COUNT(*), COALESCE(AVG(elapsed_ms), 0)
		FROM query_log
		WHERE occurred_at >= $1
		GROUP BY connection, endpoint
		ORDER BY COUNT(*) DESC, endpoint
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []EndpointStats
	for rows.Next() {
		var s EndpointStats
		if err := rows.Scan(&s.Connection, &s.Endpoint, &s.Count, &s.AvgElapsedMs); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// Prune deletes entries older than before and returns how many were removed.
func (r *QueryLogRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM query_log WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune query log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Handler returns an event handler that records every QueryExecuted event.
func (r *QueryLogRepository) Handler() shared.EventHandler {
	return func(event shared.Event) error {
		e, ok := event.(shared.QueryExecuted)
		if !ok {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.Record(ctx, e); err != nil {
			r.logger.Warn("failed to persist query", logger.Connection(e.ConnectionName), logger.Endpoint(e.Endpoint), logger.Err(err))
			return err
		}
		return nil
	}
}
