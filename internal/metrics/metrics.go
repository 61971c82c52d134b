package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "servicehub"

var (
	// Reservations counts reservation attempts by outcome: created or an error kind.
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_reservations_total",
		Help:      "Booking reservation attempts by outcome.",
	}, []string{"outcome"})

	ReservationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "booking_reservation_duration_seconds",
		Help:      "Time spent in the reservation transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_transitions_total",
		Help:      "Booking status transitions by target status and outcome.",
	}, []string{"to", "outcome"})

	AuditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Audit events by delivery result.",
	}, []string{"result"})
)

// Outcome labels an operation result for the counters above.
func Outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

func Handler() http.Handler {
	return promhttp.Handler()
}
