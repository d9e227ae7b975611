// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the loading pipeline.
//
// It exposes a narrow Backend interface (counters and duration
// observations) behind a global, pluggable backend that defaults to a no-op
// implementation, so instrumentation calls are always safe even when no real
// backend is configured. This mirrors the registration pattern used by the
// storage engines: the core depends only on this package, and concrete
// metric systems live in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a duration-style value in seconds.
	ObserveDuration(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)      {}
func (nopBackend) ObserveDuration(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                              { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures one named operation for a stream: a success/failure
// counter plus its duration.
func RecordStep(stream, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"stream": stream,
		"step":   step,
		"status": status,
	}
	backend.IncCounter("target_step_total", 1, lbls)
	backend.ObserveDuration("target_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a record-level counter for the given stream and
// kind (e.g. "received", "loaded", "rejected").
func RecordRows(stream, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("target_records_total", float64(delta), Labels{
		"stream": stream,
		"kind":   kind,
	})
}

// RecordBatch increments the committed-batch counter for the stream.
func RecordBatch(stream string) {
	backend.IncCounter("target_batches_total", 1, Labels{
		"stream": stream,
	})
}
