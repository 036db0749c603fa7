// Package bus publishes experiment lifecycle events.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, usually the topic it was published on.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix millis).
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the events of one experiment.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for experiment events.
const (
	TopicSystemCompleted     = "eval.system.completed"
	TopicSystemFailed        = "eval.system.failed"
	TopicExperimentCompleted = "eval.experiment.completed"
)

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(topic, source, correlationID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          topic,
		Source:        source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// SystemPayload is published on TopicSystemCompleted and TopicSystemFailed.
type SystemPayload struct {
	System  string             `json:"system"`
	Cached  bool               `json:"cached,omitempty"`
	Queries int                `json:"queries,omitempty"`
	Means   map[string]float64 `json:"means,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ExperimentPayload is published on TopicExperimentCompleted.
type ExperimentPayload struct {
	Systems    int     `json:"systems"`
	Failed     int     `json:"failed"`
	Comparison int     `json:"comparisons"`
	DurationMs int64   `json:"duration_ms"`
	Baseline   string  `json:"baseline,omitempty"`
	Alpha      float64 `json:"alpha,omitempty"`
}

// NopBus discards every event.
type NopBus struct{}

func (NopBus) Publish(ctx context.Context, topic string, event Event) error { return nil }

func (NopBus) Subscribe(ctx context.Context, topic string, handler Handler) error { return nil }

func (NopBus) Close() error { return nil }
