package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the counters the aggregation pipeline exposes. All
// methods are nil-safe so wiring can stay optional in tests.
type Metrics struct {
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	samplesTotal      *prometheus.CounterVec
	deltaFallbacks    *prometheus.CounterVec
	refoldFailures    prometheus.Counter
	refreshFailures   *prometheus.CounterVec
	lockedSkips       *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_samples_total",
			Help: "Total raw samples folded, by bucket action.",
		}, []string{"action"}),
		deltaFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_delta_fallbacks_total",
			Help: "Energy deltas estimated instead of taken from the counter, by cause.",
		}, []string{"cause"}),
		refoldFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usage_refold_failures_total",
			Help: "Background daily refolds that returned an error.",
		}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_refresh_failures_total",
			Help: "Background rollup refreshes that returned an error, by period.",
		}, []string{"period"}),
		lockedSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_locked_skips_total",
			Help: "Rollup refreshes skipped because the period was locked, by period.",
		}, []string{"period"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.samplesTotal,
		m.deltaFallbacks,
		m.refoldFailures,
		m.refreshFailures,
		m.lockedSkips,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

// Handler serves the registry this Metrics was registered on.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SampleFolded(action string) {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) DeltaFallback(cause string) {
	if m == nil {
		return
	}
	m.deltaFallbacks.WithLabelValues(cause).Inc()
}

func (m *Metrics) RefoldFailed() {
	if m == nil {
		return
	}
	m.refoldFailures.Inc()
}

func (m *Metrics) RefreshFailed(period string) {
	if m == nil {
		return
	}
	m.refreshFailures.WithLabelValues(period).Inc()
}

func (m *Metrics) LockedSkip(period string) {
	if m == nil {
		return
	}
	m.lockedSkips.WithLabelValues(period).Inc()
}
