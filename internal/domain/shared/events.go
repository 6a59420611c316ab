package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// EventQueryExecuted is fired by a connection after every executed query.
	EventQueryExecuted EventType = "database.query_executed"
)

// Event is the base interface for all events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event with a fresh ID.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// QueryExecuted is fired for every query a connection runs, including
// queries captured while pretending.
type QueryExecuted struct {
	BaseEvent
	Endpoint       string         `json:"endpoint"`
	Bindings       map[string]any `json:"bindings"`
	Elapsed        time.Duration  `json:"elapsed"`
	ConnectionName string         `json:"connection_name"`
}

// Payload implements Event interface.
func (e QueryExecuted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"endpoint":        e.Endpoint,
		"bindings":        e.Bindings,
		"elapsed_ms":      float64(e.Elapsed.Microseconds()) / 1000,
		"connection_name": e.ConnectionName,
	}
}

// NewQueryExecuted creates a new QueryExecuted event keyed by the connection name.
func NewQueryExecuted(endpoint string, bindings map[string]any, elapsed time.Duration, connection string) QueryExecuted {
	return QueryExecuted{
		BaseEvent:      NewBaseEvent(EventQueryExecuted, connection),
		Endpoint:       endpoint,
		Bindings:       bindings,
		Elapsed:        elapsed,
		ConnectionName: connection,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
