package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	downstreamCalls   *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	rateLimited       prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_operations_total",
				Help: "Lifecycle operations by outcome code",
			},
			[]string{"operation", "code"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_operation_duration_seconds",
				Help:    "Duration of lifecycle operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		downstreamCalls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_downstream_call_duration_seconds",
				Help:    "Duration of private-state and ledger calls",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"collaborator", "call", "result"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ticket_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}
}

// TrackOperation records one finished lifecycle operation. code is "OK" on
// success, otherwise the error code.
func (m *Metrics) TrackOperation(operation, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, code).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TrackDownstream records one call to an external collaborator.
func (m *Metrics) TrackDownstream(collaborator, call string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.downstreamCalls.WithLabelValues(collaborator, call, result).Observe(duration.Seconds())
}

func (m *Metrics) TrackRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by chi route pattern, keeping label
// cardinality independent of ticket ids.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
