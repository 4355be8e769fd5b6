package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus collectors for the sanitization pipeline.
type Metrics struct {
	RecordsTotal       *prometheus.CounterVec
	FindingsTotal      *prometheus.CounterVec
	RedactionsTotal    prometheus.Counter
	VerificationFailed prometheus.Counter
	DetectorErrors     *prometheus.CounterVec
	DetectorDuration   *prometheus.HistogramVec
	SanitizeDuration   prometheus.Histogram
	AuditSinkErrors    prometheus.Counter
}

// NewMetrics returns the process-wide pipeline metrics, registering them
// with the default registry on first use.
//
// Metrics:
//   - phisan_records_total{outcome} - records processed ("ok", "error")
//   - phisan_findings_total{source,entity_type} - findings by detector and type
//   - phisan_redactions_total - free-text spans replaced
//   - phisan_verification_failures_total - records with residual patterns
//   - phisan_detector_errors_total{detector} - failed detector calls
//   - phisan_detector_duration_seconds{detector} - detector latency
//   - phisan_sanitize_duration_seconds - end-to-end latency per record
//   - phisan_audit_sink_errors_total - failed audit writes
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RecordsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "phisan_records_total",
					Help: "Total number of records processed",
				},
				[]string{"outcome"},
			),
			FindingsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "phisan_findings_total",
					Help: "Total number of detector findings",
				},
				[]string{"source", "entity_type"},
			),
			RedactionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "phisan_redactions_total",
				Help: "Total number of free-text spans redacted",
			}),
			VerificationFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "phisan_verification_failures_total",
				Help: "Total number of sanitized records with residual PHI-like patterns",
			}),
			DetectorErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "phisan_detector_errors_total",
					Help: "Total number of failed detector calls",
				},
				[]string{"detector"},
			),
			DetectorDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "phisan_detector_duration_seconds",
					Help:    "Duration of detector calls in seconds",
					Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
				},
				[]string{"detector"},
			),
			SanitizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "phisan_sanitize_duration_seconds",
				Help:    "Duration of a single record sanitization in seconds",
				Buckets: prometheus.DefBuckets,
			}),
			AuditSinkErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "phisan_audit_sink_errors_total",
				Help: "Total number of audit events that could not be written",
			}),
		}
	})
	return globalMetrics
}
