// Package metrics holds the Prometheus collectors of the booking service.
// Collectors are registered on a caller-supplied registry so tests can use a
// fresh one per case.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Booking outcomes recorded by the reservation service.
const (
	OutcomeCreated   = "created"
	OutcomeConflict  = "conflict"
	OutcomeInvalid   = "invalid"
	OutcomeCancelled = "cancelled"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Metrics bundles the collectors.
type Metrics struct {
	BookingOperations *prometheus.CounterVec
	CreateTxDuration  prometheus.Histogram
	EventsPublished   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.  When reg is nil a
// private registry is used, which keeps the collectors functional but
// unexported.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		BookingOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Reservation operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		CreateTxDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_create_tx_duration_seconds",
			Help:    "Duration of the create transaction including the room lock wait",
			Buckets: prometheus.DefBuckets,
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_events_published_total",
			Help: "Booking events handed to the broker by result",
		}, []string{"event", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.BookingOperations, m.CreateTxDuration, m.EventsPublished, m.HTTPRequests, m.HTTPDuration)
	return m
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors, ready to be served on /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Booking records one reservation operation outcome.  It is safe on a nil
// receiver.
func (m *Metrics) Booking(operation, outcome string) {
	if m == nil {
		return
	}
	m.BookingOperations.WithLabelValues(operation, outcome).Inc()
}

// Event records the result of publishing one booking event.  It is safe on
// a nil receiver.
func (m *Metrics) Event(event string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(event, result).Inc()
}

// ObserveCreateTx records how long a create transaction took.  It is safe on
// a nil receiver.
func (m *Metrics) ObserveCreateTx(d time.Duration) {
	if m == nil {
		return
	}
	m.CreateTxDuration.Observe(d.Seconds())
}
