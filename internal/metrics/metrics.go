// Package metrics records one diagnostic run in a private Prometheus registry
// so it can be handed to the node exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gpudiag"

// Metrics holds the collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	ProbeDuration    *prometheus.HistogramVec
	BackendDetected  *prometheus.GaugeVec
	TensorCreated    *prometheus.GaugeVec
	BenchmarkSeconds prometheus.Gauge
	BenchmarkOps     prometheus.Gauge
	BenchmarkGFLOPS  prometheus.Gauge
	BenchmarkSize    prometheus.Gauge
	BenchmarkRuns    *prometheus.CounterVec
	LastRun          prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Time spent in each detection probe",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		}, []string{"probe"}),
		BackendDetected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_detected",
			Help:      "1 if the acceleration backend was detected, 0 otherwise",
		}, []string{"backend"}),
		TensorCreated: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tensor_created",
			Help:      "1 if the test tensor was created by the backend, 0 otherwise",
		}, []string{"backend"}),
		BenchmarkSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "benchmark_duration_seconds",
			Help:      "Wall time of the timed matrix multiplication loop",
		}),
		BenchmarkOps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "benchmark_operations_per_second",
			Help:      "Matrix multiplications per second in the timed loop",
		}),
		BenchmarkGFLOPS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "benchmark_gflops",
			Help:      "Performance of the timed matrix multiplications in GFLOPS",
		}),
		BenchmarkSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "benchmark_matrix_size",
			Help:      "Size of the square matrix used in the benchmark",
		}),
		BenchmarkRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "benchmark_runs_total",
			Help:      "Benchmark runs by backend and outcome",
		}, []string{"backend", "outcome"}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the diagnostic finished",
		}),
	}
}

// ObserveProbe records how long probe took.
func (m *Metrics) ObserveProbe(probe string, took time.Duration) {
	m.ProbeDuration.WithLabelValues(probe).Observe(took.Seconds())
}

// SetDetected records whether backend was detected.
func (m *Metrics) SetDetected(backend string, detected bool) {
	m.BackendDetected.WithLabelValues(backend).Set(boolToFloat(detected))
}

// WriteTextfile atomically writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	m.LastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
