package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

type routerMetrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	domainErrors   *prometheus.CounterVec
	openStreams    *prometheus.GaugeVec
}

func newRouterMetrics(reg prometheus.Registerer) *routerMetrics {
	m := &routerMetrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillsync",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skillsync",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillsync",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "class"}),
		domainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillsync",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Failed engine operations by error kind",
		}, []string{"kind"}),
		openStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "skillsync",
			Subsystem: "api",
			Name:      "open_streams",
			Help:      "Connected websocket and SSE subscribers",
		}, []string{"stream"}),
	}
	if reg == nil {
		return m
	}
	m.requestTotal = register(reg, m.requestTotal)
	m.requestLatency = register(reg, m.requestLatency)
	m.rateLimitHits = register(reg, m.rateLimitHits)
	m.domainErrors = register(reg, m.domainErrors)
	m.openStreams = register(reg, m.openStreams)
	return m
}

// register adopts an already registered collector so routers can be built
// more than once per process.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.metrics.requestTotal.With(labels).Inc()
	r.metrics.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, class string) {
	r.metrics.rateLimitHits.With(prometheus.Labels{"route": route, "class": class}).Inc()
}

func (r *Router) recordDomainError(kind string) {
	r.metrics.domainErrors.WithLabelValues(kind).Inc()
}

func (r *Router) trackStream(stream string) func() {
	gauge := r.metrics.openStreams.WithLabelValues(stream)
	gauge.Inc()
	return gauge.Dec
}
