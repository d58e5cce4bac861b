// Package observability wires Prometheus metrics for the HTTP surface and
// the inventory domain.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	salesCommitted  prometheus.Counter
	salesRejected   *prometheus.CounterVec
	stockConflicts  prometheus.Counter
	receiptsTotal   prometheus.Counter
	invoicesIssued  prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockline_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	salesCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockline_sales_committed_total",
		Help: "Sales that fully committed.",
	})
	salesRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_sales_rejected_total",
		Help: "Sales rejected before commit, by reason.",
	}, []string{"reason"})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockline_stock_conflicts_total",
		Help: "Stock adjustments retried after a serialization conflict.",
	})
	receipts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockline_purchase_receipts_total",
		Help: "Purchase orders received.",
	})
	invoices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockline_invoices_issued_total",
		Help: "Invoice numbers allocated.",
	})
	registry.MustRegister(requests, duration, salesCommitted, salesRejected, stockConflicts, receipts, invoices)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesCommitted:  salesCommitted,
		salesRejected:   salesRejected,
		stockConflicts:  stockConflicts,
		receiptsTotal:   receipts,
		invoicesIssued:  invoices,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SaleCommitted counts one committed sale.
func (m *Metrics) SaleCommitted() {
	if m != nil {
		m.salesCommitted.Inc()
	}
}

// SaleRejected counts one rejected sale by reason.
func (m *Metrics) SaleRejected(reason string) {
	if m != nil {
		m.salesRejected.WithLabelValues(reason).Inc()
	}
}

// StockConflict counts one retried stock adjustment.
func (m *Metrics) StockConflict() {
	if m != nil {
		m.stockConflicts.Inc()
	}
}

// PurchaseReceived counts one received purchase order.
func (m *Metrics) PurchaseReceived() {
	if m != nil {
		m.receiptsTotal.Inc()
	}
}

// InvoiceIssued counts one allocated invoice number.
func (m *Metrics) InvoiceIssued() {
	if m != nil {
		m.invoicesIssued.Inc()
	}
}

// Registerer exposes the registry for module-specific metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
