package metrics

import (
	"runtime"
	"time"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Experiment metrics
	ExperimentsTotal   *Counter
	ExperimentDuration *Histogram
	ExperimentSystems  *Histogram
	ComparisonsTotal   *Counter
	SystemsTotal       *CounterVec // labels: status (ok, cached, failed)

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics, sampled on export
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Gauge // in seconds

	startTime time.Time
}

// New creates a metrics instance with all metrics initialized.
func New() *Metrics {
	return &Metrics{
		ExperimentsTotal: NewCounter(
			"rice_eval_experiments_total",
			"Total number of completed experiments",
			nil,
		),
		ExperimentDuration: NewHistogram(
			"rice_eval_experiment_duration_ms",
			"Experiment duration in milliseconds",
			nil,
		),
		ExperimentSystems: NewHistogram(
			"rice_eval_experiment_systems",
			"Number of systems per experiment",
			[]float64{1, 2, 3, 5, 10, 20, 50},
		),
		ComparisonsTotal: NewCounter(
			"rice_eval_comparisons_total",
			"Total number of baseline comparisons",
			nil,
		),
		SystemsTotal: NewCounterVec(
			"rice_eval_systems_total",
			"Total number of evaluated systems by outcome",
			[]string{"status"},
		),

		BusEventsPublished: NewCounterVec(
			"rice_eval_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"rice_eval_bus_event_latency_ms",
			"Event publish latency in milliseconds",
			[]string{"topic"},
			[]float64{1, 5, 10, 25, 50, 100, 250, 500},
		),
		BusErrors: NewCounterVec(
			"rice_eval_bus_errors_total",
			"Total number of bus publish errors",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"rice_eval_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"rice_eval_http_request_duration_ms",
			"HTTP request duration in milliseconds",
			[]string{"method", "path"},
			nil,
		),
		HTTPRequestsInFlight: NewGauge(
			"rice_eval_http_requests_in_flight",
			"Number of HTTP requests being served",
		),

		GoroutineCount: NewGauge(
			"rice_eval_goroutines",
			"Number of goroutines",
		),
		MemoryUsage: NewGauge(
			"rice_eval_memory_bytes",
			"Allocated heap memory in bytes",
		),
		Uptime: NewGauge(
			"rice_eval_uptime_seconds",
			"Seconds since the process started",
		),

		startTime: time.Now(),
	}
}

// RecordSystem records the outcome of one system's evaluation.
func (m *Metrics) RecordSystem(cached bool, err error) {
	switch {
	case err != nil:
		m.SystemsTotal.WithLabels("failed").Inc()
	case cached:
		m.SystemsTotal.WithLabels("cached").Inc()
	default:
		m.SystemsTotal.WithLabels("ok").Inc()
	}
}

// RecordExperiment records a completed experiment.
func (m *Metrics) RecordExperiment(systems, comparisons int, durationMs int64) {
	m.ExperimentsTotal.Inc()
	m.ExperimentSystems.Observe(float64(systems))
	m.ExperimentDuration.Observe(float64(durationMs))
	m.ComparisonsTotal.Add(int64(comparisons))
}

// RecordBusPublish records a bus publish attempt.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(latencyMs))
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records a served HTTP request.
func (m *Metrics) RecordHTTP(method, path string, status int, durationMs float64) {
	path = normalizePath(path)
	m.HTTPRequests.WithLabels(method, path, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, path).Observe(durationMs)
}

// sample refreshes the process gauges.
func (m *Metrics) sample() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsage.Set(float64(memStats.Alloc))

	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
