// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus using
// client_golang CounterVec and SummaryVec collectors and pushes the
// collected registry to a Pushgateway instance instead of exposing a scrape
// endpoint, which suits a batch process that exits when its input ends. All
// Prometheus-specific dependencies stay inside this package so the rest of
// the project can swap metric systems without changes to the core.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sqltarget/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // target_step_total
	stepDuration  *prometheus.SummaryVec // target_step_duration_seconds
	recordCounter *prometheus.CounterVec // target_records_total
	batchCounter  *prometheus.CounterVec // target_batches_total
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Prometheus Pushgateway backend. jobName is the
// Pushgateway "job" grouping key; gatewayURL is the base URL of the server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "sqltarget"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_step_total",
			Help: "Total step executions, partitioned by stream, step, and status.",
		},
		[]string{"stream", "step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "target_step_duration_seconds",
			Help:       "Duration of loader steps in seconds, partitioned by stream, step, and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stream", "step", "status"},
	)
	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_records_total",
			Help: "Record-level counts per stream and kind (received, loaded, rejected).",
		},
		[]string{"stream", "kind"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_batches_total",
			Help: "Total committed batches per stream.",
		},
		[]string{"stream"},
	)

	for _, c := range []prometheus.Collector{stepCounter, stepDuration, recordCounter, batchCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stepCounter:   stepCounter,
		stepDuration:  stepDuration,
		recordCounter: recordCounter,
		batchCounter:  batchCounter,
	}, nil
}

// IncCounter routes the generic counter names onto the typed collectors.
// Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "target_step_total":
		b.stepCounter.WithLabelValues(labels["stream"], labels["step"], labels["status"]).Add(delta)
	case "target_records_total":
		b.recordCounter.WithLabelValues(labels["stream"], labels["kind"]).Add(delta)
	case "target_batches_total":
		b.batchCounter.WithLabelValues(labels["stream"]).Add(delta)
	}
}

// ObserveDuration records step durations; other names are ignored.
func (b *Backend) ObserveDuration(name string, value float64, labels metrics.Labels) {
	if name != "target_step_duration_seconds" {
		return
	}
	b.stepDuration.WithLabelValues(labels["stream"], labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
