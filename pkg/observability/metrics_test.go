package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	// Registering twice must panic: proves the first registration happened.
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRateLimit("generate:hourly", true)
		m.RecordQuota("free", false)
		m.RecordSweep(3)
		m.RecordWebhook("paddle", "subscription_activated", "applied")
		m.RecordRestore("lemon", "active")
		m.RecordPlanChange("webhook", "pro")
		m.ObserveUpstream("groq", "chat", time.Now())
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRateLimit("generate:hourly", true)
	m.RecordRateLimit("generate:hourly", false)
	m.RecordRateLimit("generate:hourly", false)
	m.RecordWebhook("paddle", "subscription_cancelled", "applied")
	m.RecordSweep(2)
	m.RecordSweep(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("generate:hourly", "allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("generate:hourly", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("paddle", "subscription_cancelled", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateWindowsSwept))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/things/{id}", "418")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordPlanChange("restore", "business")

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `meterd_plan_changes_total{plan="business",source="restore"} 1`))
}
