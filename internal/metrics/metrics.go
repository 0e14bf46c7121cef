// Package metrics groups all Prometheus instruments used across the
// application. Grounded on the teacher's metrics.go: a custom registry
// registered once at startup, with hook accessors that return plain
// function values so dependent packages stay import-free of Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notify-svc/scheduler/internal/dispatcher"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsSent    prometheus.Counter
	NotificationsFailed  prometheus.Counter
	NotificationLatency  prometheus.Histogram
	ReservationBatchSize prometheus.Histogram
	AccountsCleaned      prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct. Using a custom registry (instead
// of prometheus.DefaultRegisterer) keeps tests isolated and avoids global
// state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of successfully delivered scheduled notifications.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notifications that exhausted all mail delivery retries.",
		}),
		NotificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_send_seconds",
			Help:    "Mail delivery latency of a successful send, including any retries and reconnects.",
			Buckets: prometheus.DefBuckets,
		}),
		ReservationBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_reservation_batch_size",
			Help:    "Number of queue rows reserved by a single dispatcher tick.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		AccountsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_cleaned_total",
			Help: "Total number of accounts deleted by the age-based cleaner.",
		}),
	}

	reg.MustRegister(
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationLatency,
		m.ReservationBatchSize,
		m.AccountsCleaned,
	)

	return m
}

// DispatcherHooks returns the metric callbacks expected by
// dispatcher.MetricHooks.
func (m *Metrics) DispatcherHooks() dispatcher.MetricHooks {
	return dispatcher.MetricHooks{
		OnSent: func(latency time.Duration) {
			m.NotificationsSent.Inc()
			m.NotificationLatency.Observe(latency.Seconds())
		},
		OnFailed: func() {
			m.NotificationsFailed.Inc()
		},
		OnBatchSize: func(n int) {
			m.ReservationBatchSize.Observe(float64(n))
		},
	}
}

// CleanerHook returns a callback the cleaner invokes once per successful
// account deletion.
func (m *Metrics) CleanerHook() func() {
	return func() { m.AccountsCleaned.Inc() }
}
