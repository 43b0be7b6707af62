// Package metrics holds the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "event_aggregator"

type Metrics struct {
	registrations *prometheus.CounterVec
	notifications *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	scans         *prometheus.CounterVec
	domainEvents  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Register and unregister calls by operation and result.",
		}, []string{"operation", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Dispatched notifications by kind and final status.",
		}, []string{"kind", "status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_scan_duration_seconds",
			Help:      "Duration of reminder scans.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_scans_total",
			Help:      "Reminder scans by outcome (completed, skipped, failed).",
		}, []string{"outcome"}),
		domainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "Domain events by topic and direction.",
		}, []string{"topic", "direction"}),
	}
	reg.MustRegister(m.registrations, m.notifications, m.scanDuration, m.scans, m.domainEvents)
	return m
}

func (m *Metrics) Registration(operation, result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Notification(kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Scan(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.scanDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) DomainEvent(topic, direction string) {
	if m == nil {
		return
	}
	m.domainEvents.WithLabelValues(topic, direction).Inc()
}

// Handler serves the collectors of g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
