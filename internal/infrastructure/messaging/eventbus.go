// Package messaging implements the in-process event bus that carries query
// events from database connections to their listeners.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps the value a handler panicked with.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers off the publisher's goroutine
	AsyncMode bool

	// WorkerPoolSize caps concurrent async handlers
	WorkerPoolSize int

	Logger        *slog.Logger
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns a synchronous bus with metrics, so
// query listeners observe queries in execution order.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS
// ══════════════════════════════════════════════════════════════════════════════

// subscription is one handler; an empty eventType matches every event.
type subscription struct {
	eventType shared.EventType
	handler   shared.EventHandler
}

func (s subscription) matches(t shared.EventType) bool {
	return s.eventType == "" || s.eventType == t
}

// InMemoryEventBus implements shared.EventBus. Handlers run in subscription
// order; their errors and panics are logged and never reach the publisher.
type InMemoryEventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	closed bool

	async bool
	slots chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	logger  *slog.Logger
	metrics *EventBusMetrics
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// NewInMemoryEventBus creates a bus from config.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = DefaultInMemoryEventBusConfig().WorkerPoolSize
	}

	bus := &InMemoryEventBus{
		async:  config.AsyncMode,
		slots:  make(chan struct{}, config.WorkerPoolSize),
		done:   make(chan struct{}),
		logger: config.Logger,
	}
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}
	return bus
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(subscription{eventType: eventType, handler: handler})
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(subscription{handler: handler})
}

func (b *InMemoryEventBus) add(sub subscription) error {
	if sub.handler == nil {
		return errNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.subs = append(b.subs, sub)
	b.logger.Debug("handler subscribed", "event_type", sub.eventType)
	return nil
}

// Publish delivers event to every matching handler.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	var targets []shared.EventHandler
	for _, sub := range b.subs {
		if sub.matches(event.EventType()) {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.published.Add(1)
	}

	for _, handler := range targets {
		if b.async {
			b.dispatch(event, handler)
			continue
		}
		b.run(event, handler)
	}
	return nil
}

// dispatch runs handler on its own goroutine once a worker slot is free.
func (b *InMemoryEventBus) dispatch(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case b.slots <- struct{}{}:
		case <-b.done:
			return
		}
		defer func() { <-b.slots }()
		b.run(event, handler)
	}()
}

func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := b.call(event, handler)
	if b.metrics != nil {
		b.metrics.record(time.Since(start), err == nil)
	}
	if err != nil {
		b.logger.Error("event handler failed", "event_type", event.EventType(), logger.Err(err))
	}
}

func (b *InMemoryEventBus) call(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				"event_type", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// Close rejects further use and waits for in-flight async handlers. Async
// handlers still waiting for a worker slot are dropped.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Debug("event bus closed")
	return nil
}

// Metrics returns the bus metrics, nil when disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// QueryLogHandler writes every QueryExecuted event to log at debug level.
func QueryLogHandler(log *slog.Logger) shared.EventHandler {
	return func(event shared.Event) error {
		query, ok := event.(shared.QueryExecuted)
		if !ok {
			return nil
		}
		log.Debug("query executed",
			logger.Connection(query.ConnectionName),
			logger.Endpoint(query.Endpoint),
			slog.Any("bindings", query.Bindings),
			logger.Latency(query.Elapsed),
		)
		return nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts published events and handler runs.
type EventBusMetrics struct {
	published atomic.Int64
	runs      atomic.Int64
	failures  atomic.Int64
	busyNanos atomic.Int64
	since     time.Time
}

// NewEventBusMetrics creates zeroed metrics.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{since: time.Now()}
}

func (m *EventBusMetrics) record(d time.Duration, ok bool) {
	m.runs.Add(1)
	m.busyNanos.Add(int64(d))
	if !ok {
		m.failures.Add(1)
	}
}

// EventBusMetricsSnapshot is a point-in-time copy of EventBusMetrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64         `json:"published"`
	TotalHandlerExecs      int64         `json:"handler_runs"`
	HandlerSuccessRate     float64       `json:"handler_success_rate"`
	AverageHandlerDuration time.Duration `json:"avg_handler_duration"`
	Since                  time.Time     `json:"since"`
}

// Snapshot returns the current counters. The success rate is 1 before any
// handler has run.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	s := EventBusMetricsSnapshot{
		TotalPublished:     m.published.Load(),
		TotalHandlerExecs:  m.runs.Load(),
		HandlerSuccessRate: 1,
		Since:              m.since,
	}
	if s.TotalHandlerExecs > 0 {
		failures := m.failures.Load()
		s.HandlerSuccessRate = float64(s.TotalHandlerExecs-failures) / float64(s.TotalHandlerExecs)
		s.AverageHandlerDuration = time.Duration(m.busyNanos.Load() / s.TotalHandlerExecs)
	}
	return s
}
