package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Registration("register", "ok")
	m.Registration("register", "ok")
	m.Registration("register", "full")
	m.Notification("confirmation", "sent")
	m.Scan("completed", 20*time.Millisecond)
	m.Scan("skipped", 0)
	m.DomainEvent("registration.registered", "published")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues("register", "full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("skipped")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "event_aggregator_notifications_total")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Registration("register", "ok")
		m.Notification("x", "y")
		m.Scan("completed", time.Second)
		m.DomainEvent("t", "published")
	})
}
