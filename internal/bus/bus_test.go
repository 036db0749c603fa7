package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
)

func waitFor(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Timeout waiting for events")
	}
}

func TestNewEvent(t *testing.T) {
	payload := SystemPayload{System: "bm25", Queries: 3}
	e1 := NewEvent(TopicSystemCompleted, "experiment", "exp-1", payload)
	e2 := NewEvent(TopicSystemCompleted, "experiment", "exp-1", payload)

	if e1.ID == "" || e1.ID == e2.ID {
		t.Errorf("event ids should be unique and non-empty: %q %q", e1.ID, e2.ID)
	}
	if e1.Type != TopicSystemCompleted || e1.CorrelationID != "exp-1" || e1.Source != "experiment" {
		t.Errorf("event = %+v", e1)
	}
	if e1.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicSystemCompleted, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		err := bus.Publish(context.Background(), TopicSystemCompleted, NewEvent(TopicSystemCompleted, "test", "", nil))
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	waitFor(t, &wg, time.Second)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), TopicSystemFailed, func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(context.Background(), TopicSystemFailed, func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return nil
	})

	// Publish one event - both subscribers should receive
	wg.Add(2)
	bus.Publish(context.Background(), TopicSystemFailed, Event{ID: "test", Type: TopicSystemFailed})

	waitFor(t, &wg, time.Second)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("Expected both subscribers to receive 1 event, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_HandlerOutlivesPublishContext(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var wg sync.WaitGroup
	var ctxErr atomic.Value

	bus.Subscribe(context.Background(), TopicExperimentCompleted, func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		ctxErr.Store(ctx.Err() == nil)
		wg.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg.Add(1)
	bus.Publish(ctx, TopicExperimentCompleted, Event{ID: "e"})
	cancel()

	waitFor(t, &wg, time.Second)
	if ok, _ := ctxErr.Load().(bool); !ok {
		t.Error("handler context was cancelled with the publisher")
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	// Publishing to a topic with no subscribers should not error
	err := bus.Publish(context.Background(), "empty.topic", Event{ID: "test", Type: "test"})
	if err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(nil)

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	// Operations should fail after close
	err := bus.Publish(context.Background(), "test", Event{})
	if err == nil {
		t.Error("Publish() after Close() should error")
	}

	err = bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should error")
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "concurrent", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	numPublishers := 10
	eventsPerPublisher := 100
	wg.Add(numPublishers * eventsPerPublisher)

	for p := 0; p < numPublishers; p++ {
		go func() {
			for i := 0; i < eventsPerPublisher; i++ {
				bus.Publish(context.Background(), "concurrent", Event{ID: "test", Type: "test"})
			}
		}()
	}

	waitFor(t, &wg, 5*time.Second)

	expected := int32(numPublishers * eventsPerPublisher)
	if got := received.Load(); got != expected {
		t.Errorf("Received %d events, want %d", got, expected)
	}
}

func TestNopBus(t *testing.T) {
	var b Bus = NopBus{}
	if err := b.Publish(context.Background(), TopicSystemCompleted, Event{}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewBus(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BusConfig
		want    string
		wantErr bool
	}{
		{name: "none", cfg: config.BusConfig{Type: "none"}, want: "nop"},
		{name: "empty", cfg: config.BusConfig{}, want: "nop"},
		{name: "memory", cfg: config.BusConfig{Type: "memory"}, want: "memory"},
		{name: "kafka without brokers", cfg: config.BusConfig{Type: "kafka"}, wantErr: true},
		{name: "unknown", cfg: config.BusConfig{Type: "nats"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBus(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer b.Close()

			switch tt.want {
			case "nop":
				if _, ok := b.(NopBus); !ok {
					t.Errorf("NewBus() = %T, want NopBus", b)
				}
			case "memory":
				if _, ok := b.(*MemoryBus); !ok {
					t.Errorf("NewBus() = %T, want *MemoryBus", b)
				}
			}
		})
	}
}

type recordedPublish struct {
	topic string
	err   error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedPublish
}

func (f *fakeRecorder) RecordBusPublish(topic string, latencyMs int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedPublish{topic: topic, err: err})
}

func TestInstrumentedBus(t *testing.T) {
	inner := NewMemoryBus(nil)
	rec := &fakeRecorder{}
	b := NewInstrumentedBus(inner, rec)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	if err := b.Subscribe(ctx, TopicSystemCompleted, func(ctx context.Context, e Event) error {
		wg.Done()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish(ctx, TopicSystemCompleted, NewEvent(TopicSystemCompleted, "test", "", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, &wg, time.Second)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Publishing on a closed bus fails and is recorded as an error
	if err := b.Publish(ctx, TopicSystemFailed, NewEvent(TopicSystemFailed, "test", "", nil)); err == nil {
		t.Error("expected error publishing on closed bus")
	}

	if len(rec.calls) != 2 {
		t.Fatalf("recorded %d publishes, want 2", len(rec.calls))
	}
	if rec.calls[0].topic != TopicSystemCompleted || rec.calls[0].err != nil {
		t.Errorf("first call = %+v", rec.calls[0])
	}
	if rec.calls[1].topic != TopicSystemFailed || rec.calls[1].err == nil {
		t.Errorf("second call = %+v", rec.calls[1])
	}
}
