package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking flow
	BookingsCreated       *prometheus.CounterVec
	BookingTransitions    *prometheus.CounterVec
	Reconciliations       *prometheus.CounterVec
	PaymentInitiations    *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	UpstreamLatency       *prometheus.HistogramVec
	SlotQueries           *prometheus.CounterVec
	DiscountResolutions   *prometheus.CounterVec
	RefundsOnSlotConflict prometheus.Counter
	RefundsAfterClose     prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec
	OutboxEventsPurged      prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

type factory struct {
	namespace string
	subsystem string
	reg       prometheus.Registerer
}

// NewMetrics creates and registers all application metrics with the default registry.
func NewMetrics(namespace, subsystem string) *Metrics {
	return build(factory{namespace: namespace, subsystem: subsystem, reg: prometheus.DefaultRegisterer})
}

// New creates metrics that are not registered anywhere. Safe to call repeatedly, e.g. from tests.
func New(namespace string) *Metrics {
	return build(factory{namespace: namespace})
}

func build(f factory) *Metrics {
	auto := promauto.With(f.reg)

	return &Metrics{
		BookingsCreated: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "bookings_created_total",
			Help:      "Bookings created, by payment method",
		}, []string{"payment_method"}),
		BookingTransitions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "booking_transitions_total",
			Help:      "Booking state machine evaluations, by event and outcome",
		}, []string{"event", "outcome"}),
		Reconciliations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "payment_reconciliations_total",
			Help:      "Payment events reconciled, by trigger and outcome",
		}, []string{"source", "outcome"}),
		PaymentInitiations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "payment_initiations_total",
			Help:      "Payments started with the processor, by mode and status",
		}, []string{"mode", "status"}),
		NotificationsSent: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "notifications_total",
			Help:      "Notification emails, by kind and status",
		}, []string{"kind", "status"}),
		UpstreamLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of calls to external providers",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"upstream", "operation"}),
		SlotQueries: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "slot_queries_total",
			Help:      "Availability computations, by result",
		}, []string{"result"}),
		DiscountResolutions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "discount_resolutions_total",
			Help:      "Voucher lookups, by result",
		}, []string{"result"}),
		RefundsOnSlotConflict: auto.NewCounter(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "slot_conflict_refunds_total",
			Help:      "Payments refunded because the slot was taken",
		}),
		RefundsAfterClose: auto.NewCounter(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "late_payment_refunds_total",
			Help:      "Payments refunded because the booking was already cancelled",
		}),

		OutboxEventsProcessed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),
		OutboxEventsPurged: auto.NewCounter(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "outbox_events_purged_total",
			Help:      "Processed outbox events removed by housekeeping",
		}),

		DatabaseOperations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: f.namespace,
			Subsystem: f.subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
