package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. The Record* helpers are safe to call
// on a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Metering
	RateLimitDecisions *prometheus.CounterVec
	QuotaDecisions     *prometheus.CounterVec
	RateWindowsSwept   prometheus.Counter
	LiveWindowsEvicted *prometheus.CounterVec

	// Billing
	WebhookEventsTotal   *prometheus.CounterVec
	RestoreLookupsTotal  *prometheus.CounterVec
	PlanChangesTotal     *prometheus.CounterVec
	UpstreamCallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meterd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_rate_limit_decisions_total",
				Help: "Rate limit decisions by bucket and outcome",
			},
			[]string{"bucket", "outcome"},
		),
		QuotaDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_quota_decisions_total",
				Help: "Quota gate decisions by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		RateWindowsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meterd_rate_windows_swept_total",
				Help: "Expired rate limit windows dropped by the sweeper",
			},
		),
		LiveWindowsEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_rate_live_windows_evicted_total",
				Help: "Unexpired rate limit windows dropped because a bucket was full",
			},
			[]string{"bucket"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_webhook_events_total",
				Help: "Webhook deliveries by provider, event category and outcome",
			},
			[]string{"provider", "category", "outcome"},
		),
		RestoreLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_restore_lookups_total",
				Help: "Restore-access lookups by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		PlanChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_plan_changes_total",
				Help: "Account plan assignments by source and plan",
			},
			[]string{"source", "plan"},
		),
		UpstreamCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meterd_upstream_call_duration_seconds",
				Help:    "Outbound call duration to billing and AI providers",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitDecisions,
		m.QuotaDecisions,
		m.RateWindowsSwept,
		m.LiveWindowsEvicted,
		m.WebhookEventsTotal,
		m.RestoreLookupsTotal,
		m.PlanChangesTotal,
		m.UpstreamCallDuration,
	)

	return m
}

// RecordRateLimit counts one limiter decision
func (m *Metrics) RecordRateLimit(bucket string, allowed bool) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(bucket, outcome(allowed)).Inc()
}

// RecordQuota counts one quota gate decision
func (m *Metrics) RecordQuota(plan string, allowed bool) {
	if m == nil {
		return
	}
	m.QuotaDecisions.WithLabelValues(plan, outcome(allowed)).Inc()
}

// RecordSweep counts windows dropped by a sweep
func (m *Metrics) RecordSweep(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RateWindowsSwept.Add(float64(n))
}

// RecordLiveEviction counts a window dropped before its reset time
func (m *Metrics) RecordLiveEviction(bucket string) {
	if m == nil {
		return
	}
	m.LiveWindowsEvicted.WithLabelValues(bucket).Inc()
}

// RecordWebhook counts one webhook delivery
func (m *Metrics) RecordWebhook(provider, category, result string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(provider, category, result).Inc()
}

// RecordRestore counts one restore-access lookup
func (m *Metrics) RecordRestore(provider, result string) {
	if m == nil {
		return
	}
	m.RestoreLookupsTotal.WithLabelValues(provider, result).Inc()
}

// RecordPlanChange counts one plan assignment
func (m *Metrics) RecordPlanChange(source, plan string) {
	if m == nil {
		return
	}
	m.PlanChangesTotal.WithLabelValues(source, plan).Inc()
}

// ObserveUpstream records the duration of an outbound call
func (m *Metrics) ObserveUpstream(service, operation string, started time.Time) {
	if m == nil {
		return
	}
	m.UpstreamCallDuration.WithLabelValues(service, operation).Observe(time.Since(started).Seconds())
}

func outcome(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler exposes the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
