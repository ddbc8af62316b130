package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration records request duration in seconds
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// TenantResolutions counts resolved tenants by the input that matched
	TenantResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_tenant_resolutions_total",
			Help: "Tenant resolutions by source (slug_header, id_header, query, subdomain, domain, session, none)",
		},
		[]string{"source"},
	)

	// TenantAccessDenied counts guard and resolution rejections by machine code
	TenantAccessDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_tenant_access_denied_total",
			Help: "Requests rejected by tenant resolution or the access guard",
		},
		[]string{"code"},
	)

	// ProvisionDuration records how long a full provisioning pass took
	ProvisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pos_tenant_provision_duration_seconds",
			Help:    "Duration of tenant database provisioning in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"driver"},
	)

	// ProvisionErrors counts provisioning failures by step
	ProvisionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_tenant_provision_errors_total",
			Help: "Tenant provisioning failures by step",
		},
		[]string{"step"},
	)

	// SalesOperations counts checkout/return/payment outcomes
	SalesOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_sales_operations_total",
			Help: "Transactional sales operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// LedgerFailures counts stock movement rows that could not be written
	LedgerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_stock_ledger_failures_total",
			Help: "Stock movement writes that failed and were skipped",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			TenantResolutions,
			TenantAccessDenied,
			ProvisionDuration,
			ProvisionErrors,
			SalesOperations,
			LedgerFailures,
		)
	})
}

// Middleware records request count and latency per route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		RequestCounter.WithLabelValues(c.Request.Method, path, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// ObserveProvision returns a func that records the elapsed provisioning time when called.
func ObserveProvision(driver string) func() {
	start := time.Now()
	return func() {
		ProvisionDuration.WithLabelValues(driver).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
