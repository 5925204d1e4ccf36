package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Onboarding workflow metrics
	Invitations        *prometheus.CounterVec
	InvitationStepTime *prometheus.HistogramVec
	PendingDoctors     prometheus.Gauge
	RegisteredDoctors  prometheus.Gauge

	// Operator notifications
	Notifications *prometheus.CounterVec

	// Staging store metrics
	StagingOperations *prometheus.CounterVec
	StagingLatency    *prometheus.HistogramVec

	// Worker metrics
	FallbackMailsSent   prometheus.Counter
	FallbackMailsFailed prometheus.Counter
}

// NewMetrics creates and registers all application metrics on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Invitations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "invitations_total",
			Help:      "Doctor invitations by outcome",
		}, []string{"outcome"}),
		InvitationStepTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "step_duration_seconds",
			Help:      "Duration of each remote onboarding step",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"step", "status"}),
		PendingDoctors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "pending_doctors",
			Help:      "Doctors currently staged for onboarding",
		}),
		RegisteredDoctors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "registered_doctors",
			Help:      "Doctors in the local registered log",
		}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "notifications_total",
			Help:      "Operator notifications by severity",
		}, []string{"severity"}),

		StagingOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "operations_total",
			Help:      "Total number of staging store operations",
		}, []string{"operation", "status"}),
		StagingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "operation_duration_seconds",
			Help:      "Duration of staging store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),

		FallbackMailsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "fallback_mails_sent_total",
			Help:      "Manual fallback hand-offs mailed to the operator mailbox",
		}),
		FallbackMailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "fallback_mails_failed_total",
			Help:      "Manual fallback hand-offs that could not be mailed",
		}),
	}
}

// ObserveStaging records one staging store call.
func (m *Metrics) ObserveStaging(operation string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StagingOperations.WithLabelValues(operation, status).Inc()
	m.StagingLatency.WithLabelValues(operation).Observe(seconds)
}
