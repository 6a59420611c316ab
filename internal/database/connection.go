// Package database executes endpoint queries against the school portal. A
// "query" is an endpoint path plus a flat list of bindings; reads become HTTP
// GET requests through a Transport, writes are recorded but not sent.
package database

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/logger"
)

// Transport performs the actual HTTP GET and decodes the JSON body into a
// generic value tree (maps, slices, scalars).
type Transport interface {
	Get(ctx context.Context, endpoint string, query url.Values) (any, error)
}

// LogEntry is one executed query in the connection's query log.
type LogEntry struct {
	Query    string  `json:"query"`
	Bindings []Param `json:"bindings"`
	Time     float64 `json:"time"` // milliseconds
}

// Config contains configuration for a Connection.
type Config struct {
	// Name identifies the connection in the resolver and in events
	Name string

	// Transport performs reads; may be nil for a write-only or pretend-only connection
	Transport Transport

	// Processor post-processes select results; DefaultProcessor when nil
	Processor Processor

	// Events receives a QueryExecuted event for every query
	Events shared.EventPublisher

	// LogQueries enables the in-memory query log from the start
	LogQueries bool

	// Logger for structured logging
	Logger *slog.Logger
}

// Connection executes queries and keeps the query log. It is not safe for
// concurrent use; each request lifecycle owns its connection state.
type Connection struct {
	name      string
	transport Transport
	processor Processor
	events    shared.EventPublisher
	logger    *slog.Logger

	queryLog       []LogEntry
	loggingQueries bool
	pretending     bool
}

// NewConnection creates a new Connection.
func NewConnection(config Config) *Connection {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Processor == nil {
		config.Processor = DefaultProcessor{}
	}
	if config.Name == "" {
		config.Name = "default"
	}

	return &Connection{
		name:           config.Name,
		transport:      config.Transport,
		processor:      config.Processor,
		events:         config.Events,
		logger:         config.Logger,
		loggingQueries: config.LogQueries,
	}
}

// Name returns the connection name.
func (c *Connection) Name() string {
	return c.name
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// Select runs a read against the endpoint and returns the decoded response.
func (c *Connection) Select(ctx context.Context, endpoint string, params []Param) (any, error) {
	return c.run(ctx, endpoint, params, func(ctx context.Context, endpoint string, params []Param) (any, error) {
		if c.pretending {
			return []any{}, nil
		}
		if c.transport == nil {
			return nil, errors.New("connection has no transport")
		}
		return c.transport.Get(ctx, endpoint, ParamsToValues(params))
	})
}

// Insert records an insert. No network action is taken.
func (c *Connection) Insert(ctx context.Context, endpoint string, params []Param) (bool, error) {
	return c.Statement(ctx, endpoint, params)
}

// Update records an update. No network action is taken.
func (c *Connection) Update(ctx context.Context, endpoint string, params []Param) (bool, error) {
	return c.Statement(ctx, endpoint, params)
}

// Statement records a write statement. No network action is taken.
func (c *Connection) Statement(ctx context.Context, endpoint string, params []Param) (bool, error) {
	_, err := c.run(ctx, endpoint, params, func(context.Context, string, []Param) (any, error) {
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

type queryCallback func(ctx context.Context, endpoint string, params []Param) (any, error)

// run substitutes inline bindings, times the callback and logs the query.
// Failures are rewrapped into a QueryError carrying the substituted request.
func (c *Connection) run(ctx context.Context, endpoint string, params []Param, callback queryCallback) (any, error) {
	endpoint, params = MakeReplacements(endpoint, params)

	start := time.Now()
	result, err := callback(ctx, endpoint, params)
	if err != nil {
		return nil, &QueryError{
			Connection: c.name,
			Endpoint:   endpoint,
			Bindings:   params,
			Err:        err,
		}
	}

	c.logQuery(endpoint, params, time.Since(start))
	return result, nil
}

func (c *Connection) logQuery(endpoint string, params []Param, elapsed time.Duration) {
	bindings := ParamsToMap(params)

	if c.events != nil {
		event := shared.NewQueryExecuted(endpoint, bindings, elapsed, c.name)
		if err := c.events.Publish(event); err != nil {
			c.logger.Warn("query event not published", logger.Endpoint(endpoint), logger.Err(err))
		}
	}

	c.logger.Debug("query executed",
		logger.Connection(c.name),
		logger.Endpoint(endpoint),
		slog.Any("bindings", bindings),
		logger.Latency(elapsed),
		slog.Bool("pretending", c.pretending),
	)

	if c.loggingQueries {
		c.queryLog = append(c.queryLog, LogEntry{
			Query:    endpoint,
			Bindings: params,
			Time:     elapsedMillis(elapsed),
		})
	}
}

func elapsedMillis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}

// ══════════════════════════════════════════════════════════════════════════════
// PRETEND MODE
// ══════════════════════════════════════════════════════════════════════════════

// Pretend runs fn with every query short-circuited and returns the queries it
// would have executed. The previous logging state is restored even when fn fails.
func (c *Connection) Pretend(fn func(*Connection) error) ([]LogEntry, error) {
	loggingQueries := c.loggingQueries
	pretending := c.pretending
	defer func() {
		c.loggingQueries = loggingQueries
		c.pretending = pretending
	}()

	c.EnableQueryLog()
	c.FlushQueryLog()
	c.pretending = true

	err := fn(c)
	return c.QueryLog(), err
}

// Pretending reports whether the connection is inside Pretend.
func (c *Connection) Pretending() bool {
	return c.pretending
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY LOG
// ══════════════════════════════════════════════════════════════════════════════

// EnableQueryLog turns the in-memory query log on.
func (c *Connection) EnableQueryLog() {
	c.loggingQueries = true
}

// DisableQueryLog turns the in-memory query log off.
func (c *Connection) DisableQueryLog() {
	c.loggingQueries = false
}

// LoggingQueries reports whether the query log is on.
func (c *Connection) LoggingQueries() bool {
	return c.loggingQueries
}

// QueryLog returns a copy of the logged queries.
func (c *Connection) QueryLog() []LogEntry {
	out := make([]LogEntry, len(c.queryLog))
	copy(out, c.queryLog)
	return out
}

// FlushQueryLog clears the query log.
func (c *Connection) FlushQueryLog() {
	c.queryLog = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// PostProcessor returns the select result processor.
func (c *Connection) PostProcessor() Processor {
	return c.processor
}

// SetPostProcessor replaces the select result processor.
func (c *Connection) SetPostProcessor(p Processor) {
	if p == nil {
		p = DefaultProcessor{}
	}
	c.processor = p
}

// EventDispatcher returns the attached event publisher, if any.
func (c *Connection) EventDispatcher() shared.EventPublisher {
	return c.events
}

// SetEventDispatcher attaches an event publisher.
func (c *Connection) SetEventDispatcher(events shared.EventPublisher) {
	c.events = events
}

// UnsetEventDispatcher detaches the event publisher.
func (c *Connection) UnsetEventDispatcher() {
	c.events = nil
}

// Transport returns the read transport.
func (c *Connection) Transport() Transport {
	return c.transport
}
