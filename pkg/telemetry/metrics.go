package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the fleet backend.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	outboxDispatch     *prometheus.CounterVec
	outboxDispatchTime *prometheus.HistogramVec
	outboxBacklog      prometheus.Gauge
	rentalTransitions  *prometheus.CounterVec
	rentalConflicts    prometheus.Counter
	maintenanceJobs    *prometheus.CounterVec
	invoicesIssued     *prometheus.CounterVec
	invoiceAmount      prometheus.Histogram
	paymentsRecorded   *prometheus.CounterVec
	ledgerEntries      *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	idempotentReplays  prometheus.Counter
}

// NewMetrics registers and returns Prometheus metrics for telemetry.
func NewMetrics() *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetcore_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	outboxDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_outbox_dispatch_total",
		Help: "Counts dispatcher batches by status.",
	}, []string{"status"})

	outboxDispatchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetcore_outbox_dispatch_duration_seconds",
		Help:    "Dispatcher batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	outboxBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetcore_outbox_backlog",
		Help: "Number of pending events in the outbox.",
	})

	rentalTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_rental_transitions_total",
		Help: "Rental lifecycle transitions by target status.",
	}, []string{"status"})

	rentalConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetcore_rental_conflicts_total",
		Help: "Rental bookings rejected because the vehicle period overlapped.",
	})

	maintenanceJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_maintenance_jobs_total",
		Help: "Maintenance job transitions by target status.",
	}, []string{"status"})

	invoicesIssued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_invoices_total",
			Help: "Invoices created by status.",
		},
		[]string{"status"},
	)

	invoiceAmount := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetcore_invoice_amount",
			Help:    "Invoice total distribution in whole pesos.",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		},
	)

	paymentsRecorded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_payments_total",
			Help: "Payments recorded by method code.",
		},
		[]string{"method"},
	)

	ledgerEntries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_ledger_entries_total",
			Help: "Journal entries posted by source.",
		},
		[]string{"source"},
	)

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_cache_lookups_total",
			Help: "Cache lookups by outcome.",
		},
		[]string{"cache", "outcome"},
	)

	rateLimited := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_rate_limited_total",
			Help: "Requests rejected by rate limiting per class.",
		},
		[]string{"class"},
	)

	idempotentReplays := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetcore_idempotent_replays_total",
			Help: "Mutating requests answered from the idempotency store.",
		},
	)

	prometheus.MustRegister(
		apiRequests,
		apiDuration,
		outboxDispatch,
		outboxDispatchTime,
		outboxBacklog,
		rentalTransitions,
		rentalConflicts,
		maintenanceJobs,
		invoicesIssued,
		invoiceAmount,
		paymentsRecorded,
		ledgerEntries,
		cacheLookups,
		rateLimited,
		idempotentReplays,
	)

	return &Metrics{
		apiRequests:        apiRequests,
		apiDuration:        apiDuration,
		outboxDispatch:     outboxDispatch,
		outboxDispatchTime: outboxDispatchTime,
		outboxBacklog:      outboxBacklog,
		rentalTransitions:  rentalTransitions,
		rentalConflicts:    rentalConflicts,
		maintenanceJobs:    maintenanceJobs,
		invoicesIssued:     invoicesIssued,
		invoiceAmount:      invoiceAmount,
		paymentsRecorded:   paymentsRecorded,
		ledgerEntries:      ledgerEntries,
		cacheLookups:       cacheLookups,
		rateLimited:        rateLimited,
		idempotentReplays:  idempotentReplays,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	routeLabel := sanitizeLabel(route)
	methodLabel := sanitizeLabel(method)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, status).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordOutboxBatch registers dispatch batch metrics.
func (m *Metrics) RecordOutboxBatch(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(status).Inc()
	m.outboxDispatchTime.WithLabelValues(status).Observe(duration.Seconds())
}

// SetOutboxBacklog updates the backlog gauge.
func (m *Metrics) SetOutboxBacklog(value float64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(value)
}

// ObserveRentalTransition counts a rental reaching the given status.
func (m *Metrics) ObserveRentalTransition(status string) {
	if m == nil {
		return
	}
	m.rentalTransitions.WithLabelValues(sanitizeLabel(status)).Inc()
}

// ObserveRentalConflict counts a booking rejected by the overlap guard.
func (m *Metrics) ObserveRentalConflict() {
	if m == nil {
		return
	}
	m.rentalConflicts.Inc()
}

// ObserveMaintenanceTransition counts a maintenance job reaching the given status.
func (m *Metrics) ObserveMaintenanceTransition(status string) {
	if m == nil {
		return
	}
	m.maintenanceJobs.WithLabelValues(sanitizeLabel(status)).Inc()
}

// ObserveInvoiceIssued records invoice creation stats by status and
// amount. totalAmount is in whole pesos.
func (m *Metrics) ObserveInvoiceIssued(status string, totalAmount int64) {
	if m == nil {
		return
	}
	m.invoicesIssued.WithLabelValues(sanitizeLabel(status)).Inc()
	m.invoiceAmount.Observe(float64(totalAmount))
}

// ObservePayment counts a recorded payment by method code.
func (m *Metrics) ObservePayment(method string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(sanitizeLabel(method)).Inc()
}

// ObserveLedgerEntry counts a posted journal entry by source module.
func (m *Metrics) ObserveLedgerEntry(source string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(sanitizeLabel(source)).Inc()
}

// ObserveCacheLookup counts a cache hit or miss for the named cache.
func (m *Metrics) ObserveCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(sanitizeLabel(cache), outcome).Inc()
}

// ObserveRateLimited counts a request rejected by the named limiter class.
func (m *Metrics) ObserveRateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(sanitizeLabel(class)).Inc()
}

// ObserveIdempotentReplay counts a request served from the idempotency store.
func (m *Metrics) ObserveIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
