package metrics

import (
	"context"
	"encoding/json"

	"github.com/ricesearch/rice-eval/internal/bus"
)

// EventSubscriber updates metrics from experiment events on the bus.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{
		metrics: metrics,
		bus:     eventBus,
	}
}

// SubscribeToEvents subscribes to the experiment topics.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	if err := es.bus.Subscribe(ctx, bus.TopicSystemCompleted, es.handleSystemCompleted); err != nil {
		return err
	}
	if err := es.bus.Subscribe(ctx, bus.TopicSystemFailed, es.handleSystemFailed); err != nil {
		return err
	}
	return es.bus.Subscribe(ctx, bus.TopicExperimentCompleted, es.handleExperimentCompleted)
}

func (es *EventSubscriber) handleSystemCompleted(ctx context.Context, event bus.Event) error {
	var p bus.SystemPayload
	if err := decodePayload(event.Payload, &p); err != nil {
		return err
	}
	es.metrics.RecordSystem(p.Cached, nil)
	return nil
}

func (es *EventSubscriber) handleSystemFailed(ctx context.Context, event bus.Event) error {
	es.metrics.SystemsTotal.WithLabels("failed").Inc()
	return nil
}

func (es *EventSubscriber) handleExperimentCompleted(ctx context.Context, event bus.Event) error {
	var p bus.ExperimentPayload
	if err := decodePayload(event.Payload, &p); err != nil {
		return err
	}
	es.metrics.RecordExperiment(p.Systems, p.Comparison, p.DurationMs)
	return nil
}

// decodePayload accepts the typed payload published in-process or the
// generic map a remote transport decodes into.
func decodePayload[T any](payload any, dst *T) error {
	if v, ok := payload.(T); ok {
		*dst = v
		return nil
	}
	if v, ok := payload.(*T); ok && v != nil {
		*dst = *v
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
