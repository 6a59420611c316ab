package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

type execCall struct {
	sql  string
	args []interface{}
}

type fakeQuerier struct {
	calls []execCall
	err   error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeQuerier) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func TestQueryLogRepository_Record(t *testing.T) {
	db := &fakeQuerier{}
	repo := NewQueryLogRepository(db, nil)
	event := shared.NewQueryExecuted("students", map[string]any{"Cohort": "A"}, 1500*time.Microsecond, "portal")

	require.NoError(t, repo.Record(context.Background(), event))
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	require.Len(t, args, 6)
	assert.Equal(t, uuid.MustParse(event.ID), args[0])
	assert.Equal(t, "portal", args[1])
	assert.Equal(t, "students", args[2])
	assert.JSONEq(t, `{"Cohort":"A"}`, string(args[3].([]byte)))
	assert.Equal(t, 1.5, args[4])
	assert.Equal(t, event.OccurredAt(), args[5])
}

func TestQueryLogRepository_RecordNilBindings(t *testing.T) {
	db := &fakeQuerier{}
	repo := NewQueryLogRepository(db, nil)

	require.NoError(t, repo.Record(context.Background(), shared.NewQueryExecuted("users", nil, 0, "portal")))
	assert.Equal(t, []byte(`{}`), db.calls[0].args[3])
}

func TestQueryLogRepository_RecordErrors(t *testing.T) {
	ctx := context.Background()

	duplicate := &fakeQuerier{err: &pgconn.PgError{Code: "23505"}}
	repo := NewQueryLogRepository(duplicate, nil)
	assert.NoError(t, repo.Record(ctx, shared.NewQueryExecuted("students", nil, 0, "portal")))

	broken := &fakeQuerier{err: errors.New("connection reset")}
	repo = NewQueryLogRepository(broken, nil)
	assert.Error(t, repo.Record(ctx, shared.NewQueryExecuted("students", nil, 0, "portal")))

	bad := shared.NewQueryExecuted("students", nil, 0, "portal")
	bad.ID = "not-a-uuid"
	assert.Error(t, repo.Record(ctx, bad))
}

func TestQueryLogRepository_Handler(t *testing.T) {
	db := &fakeQuerier{}
	handler := NewQueryLogRepository(db, nil).Handler()

	require.NoError(t, handler(shared.NewQueryExecuted("students", nil, 0, "portal")))
	require.NoError(t, handler(otherEvent{shared.NewBaseEvent("other", "x")}))
	assert.Len(t, db.calls, 1)
}

type otherEvent struct{ shared.BaseEvent }

func (otherEvent) Payload() map[string]interface{} { return nil }

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "pw"
	assert.Equal(t, "host=localhost port=5432 dbname=schoolportal user=postgres password=pw sslmode=disable connect_timeout=10", cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/portal"
	assert.Equal(t, cfg.URL, cfg.DSN())

	pool, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(5), pool.MaxConns)
	assert.Equal(t, "db", pool.ConnConfig.Host)
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

// TestQueryLogRepository_Postgres runs against a real database when
// PORTAL_TEST_DATABASE_URL is set.
func TestQueryLogRepository_Postgres(t *testing.T) {
	url := os.Getenv("PORTAL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PORTAL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	conn, err := NewConnection(ctx, Config{URL: url})
	require.NoError(t, err)
	defer conn.Close()

	migrator := NewMigrator(conn)
	require.NoError(t, migrator.Migrate(ctx))
	defer func() {
		for range GetMigrations() {
			_ = migrator.Rollback(ctx)
		}
	}()

	status, err := migrator.Status(ctx)
	require.NoError(t, err)
	for _, m := range status {
		assert.True(t, m.IsApplied, m.Name)
	}

	repo := NewQueryLogRepository(conn, nil)
	event := shared.NewQueryExecuted("students", map[string]any{"Cohort": "A"}, 2*time.Millisecond, "portal")
	require.NoError(t, repo.Record(ctx, event))
	require.NoError(t, repo.Record(ctx, event))

	entries, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "students", entries[0].Endpoint)
	assert.Equal(t, "A", entries[0].Bindings["Cohort"])

	stats, err := repo.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Count)

	pruned, err := repo.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	raw, _ := json.Marshal(entries[0])
	assert.Contains(t, string(raw), `"connection":"portal"`)
}

func TestConnection_Closed(t *testing.T) {
	conn := &Connection{}
	conn.closed.Store(true)
	conn.Close()
	ctx := context.Background()

	_, err := conn.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = conn.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.QueryRow(ctx, "SELECT 1").Scan(), ErrConnectionClosed)
	assert.ErrorIs(t, conn.Ping(ctx), ErrConnectionClosed)
	_, err = conn.Health(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = NewMigrator(conn).Status(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
