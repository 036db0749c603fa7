package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/bus"
)

const defaultDrain = 2 * time.Second

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter", "A test counter", nil)

	if c.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", c.Value())
	}

	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("expected value 6, got %d", c.Value())
	}

	// Counters can't decrease
	c.Add(-10)
	if c.Value() != 6 {
		t.Errorf("expected value 6 after Add(-10), got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge")

	g.Set(42.5)
	if g.Value() != 42.5 {
		t.Errorf("expected 42.5, got %f", g.Value())
	}

	g.Inc()
	g.Dec()
	g.Add(-2.5)
	if g.Value() != 40 {
		t.Errorf("expected 40, got %f", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_histogram", "A test histogram", []float64{100, 1, 10})

	h.Observe(0.5)
	h.Observe(1) // le is inclusive
	h.Observe(7)
	h.Observe(150)

	if h.Count() != 4 {
		t.Errorf("expected count 4, got %d", h.Count())
	}
	if h.Sum() != 158.5 {
		t.Errorf("expected sum 158.5, got %f", h.Sum())
	}

	want := []int64{2, 3, 3, 4} // le=1, le=10, le=100, +Inf
	got := h.BucketCounts()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bucket %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCounterVec(t *testing.T) {
	cv := NewCounterVec("test_counter_vec", "A test counter vector", []string{"status"})

	cv.WithLabels("ok").Inc()
	cv.WithLabels("ok").Inc()
	cv.WithLabels("failed").Inc()

	if v := cv.WithLabels("ok").Value(); v != 2 {
		t.Errorf("ok = %d, want 2", v)
	}

	all := cv.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 counters, got %d", len(all))
	}
	// Ordered by label key
	if all[0].Labels()["status"] != "failed" {
		t.Errorf("first counter = %v, want failed", all[0].Labels())
	}
}

func TestCounterVec_WrongLabelCount(t *testing.T) {
	cv := NewCounterVec("x", "x", []string{"a", "b"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic for wrong label count")
		}
	}()
	cv.WithLabels("only-one")
}

func TestMetricsRecording(t *testing.T) {
	m := New()

	m.RecordSystem(false, nil)
	m.RecordSystem(true, nil)
	m.RecordSystem(false, errors.New("boom"))
	m.RecordExperiment(3, 4, 120)
	m.RecordBusPublish(bus.TopicExperimentCompleted, 2, errors.New("down"))

	if v := m.SystemsTotal.WithLabels("ok").Value(); v != 1 {
		t.Errorf("ok systems = %d, want 1", v)
	}
	if v := m.SystemsTotal.WithLabels("cached").Value(); v != 1 {
		t.Errorf("cached systems = %d, want 1", v)
	}
	if v := m.SystemsTotal.WithLabels("failed").Value(); v != 1 {
		t.Errorf("failed systems = %d, want 1", v)
	}
	if m.ExperimentsTotal.Value() != 1 || m.ComparisonsTotal.Value() != 4 {
		t.Errorf("experiments = %d, comparisons = %d", m.ExperimentsTotal.Value(), m.ComparisonsTotal.Value())
	}
	if v := m.BusErrors.WithLabels(bus.TopicExperimentCompleted).Value(); v != 1 {
		t.Errorf("bus errors = %d, want 1", v)
	}
}

func TestPrometheusFormat(t *testing.T) {
	m := New()
	m.RecordExperiment(2, 1, 42)
	m.RecordHTTP(http.MethodPost, "/v1/evaluate", 200, 12.5)

	out := m.PrometheusFormat()

	for _, want := range []string{
		"# TYPE rice_eval_experiments_total counter",
		"rice_eval_experiments_total 1",
		`rice_eval_experiment_duration_ms_bucket{le="50"} 1`,
		`rice_eval_experiment_duration_ms_bucket{le="+Inf"} 1`,
		"rice_eval_experiment_duration_ms_sum 42",
		`rice_eval_http_requests_total{method="POST",path="/v1/evaluate",status="200"} 1`,
		`rice_eval_http_request_duration_ms_count{method="POST",path="/v1/evaluate"} 1`,
		"# TYPE rice_eval_uptime_seconds gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// Empty vectors are omitted
	if strings.Contains(out, "rice_eval_bus_errors_total") {
		t.Error("expected no bus error series before any publish")
	}
}

func TestHandler(t *testing.T) {
	m := New()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %s", ct)
	}

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	h := HTTPMiddleware(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/unknown/123", nil))

	if v := m.HTTPRequests.WithLabels(http.MethodGet, "/v1/{other}", "4xx").Value(); v != 1 {
		t.Errorf("requests = %d, want 1", v)
	}
	if m.HTTPRequestsInFlight.Value() != 0 {
		t.Errorf("in flight = %f, want 0", m.HTTPRequestsInFlight.Value())
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/healthz":     "/healthz",
		"/metrics":     "/metrics",
		"/v1/evaluate": "/v1/evaluate",
		"/v1/runs/abc": "/v1/{other}",
		"/wp-admin":    "{other}",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventSubscriber(t *testing.T) {
	m := New()
	b := bus.NewMemoryBus(nil)

	if err := NewEventSubscriber(m, b).SubscribeToEvents(context.Background()); err != nil {
		t.Fatalf("SubscribeToEvents() error = %v", err)
	}

	ctx := context.Background()
	publish := func(topic string, payload any) {
		t.Helper()
		if err := b.Publish(ctx, topic, bus.NewEvent(topic, "test", "exp-1", payload)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	publish(bus.TopicSystemCompleted, bus.SystemPayload{System: "bm25", Cached: true})
	publish(bus.TopicSystemFailed, bus.SystemPayload{System: "dense", Error: "boom"})
	// Remote transports deliver decoded JSON maps
	publish(bus.TopicExperimentCompleted, map[string]any{"systems": 2, "failed": 1, "comparisons": 0, "duration_ms": 15})

	if !b.DrainTimeout(defaultDrain) {
		t.Fatal("handlers did not finish")
	}

	if v := m.SystemsTotal.WithLabels("cached").Value(); v != 1 {
		t.Errorf("cached = %d, want 1", v)
	}
	if v := m.SystemsTotal.WithLabels("failed").Value(); v != 1 {
		t.Errorf("failed = %d, want 1", v)
	}
	if m.ExperimentsTotal.Value() != 1 {
		t.Errorf("experiments = %d, want 1", m.ExperimentsTotal.Value())
	}
	if m.ExperimentDuration.Sum() != 15 {
		t.Errorf("duration sum = %f, want 15", m.ExperimentDuration.Sum())
	}
}
