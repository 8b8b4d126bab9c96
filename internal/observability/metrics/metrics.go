package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics exposes request-level prometheus instruments.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP instruments on the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storelane_http_requests_total",
			Help: "Count of HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storelane_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// DomainMetrics counts core business events.
type DomainMetrics struct {
	invoicesCreated    *prometheus.CounterVec
	refundsCreated     *prometheus.CounterVec
	gateBlocked        *prometheus.CounterVec
	resolutionFailures *prometheus.CounterVec
}

// NewDomainMetrics registers the business instruments on the default registry.
func NewDomainMetrics() *DomainMetrics {
	return &DomainMetrics{
		invoicesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storelane_invoices_created_total",
			Help: "Invoices created, by tenant slug.",
		}, []string{"tenant"}),
		refundsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storelane_refunds_created_total",
			Help: "Refund invoices created, by tenant slug.",
		}, []string{"tenant"}),
		gateBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storelane_gate_blocked_total",
			Help: "Requests blocked by the subscription gate, by reason.",
		}, []string{"reason"}),
		resolutionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storelane_tenant_resolution_failures_total",
			Help: "Tenant resolution failures, by kind.",
		}, []string{"kind"}),
	}
}

func (m *DomainMetrics) RecordInvoiceCreated(tenant string) {
	if m == nil {
		return
	}
	m.invoicesCreated.WithLabelValues(tenant).Inc()
}

func (m *DomainMetrics) RecordRefundCreated(tenant string) {
	if m == nil {
		return
	}
	m.refundsCreated.WithLabelValues(tenant).Inc()
}

func (m *DomainMetrics) RecordGateBlocked(reason string) {
	if m == nil {
		return
	}
	m.gateBlocked.WithLabelValues(reason).Inc()
}

func (m *DomainMetrics) RecordResolutionFailure(kind string) {
	if m == nil {
		return
	}
	m.resolutionFailures.WithLabelValues(kind).Inc()
}
