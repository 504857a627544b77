package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for the booking engine.
type SchedulingMetrics struct {
	availabilityTotal   *prometheus.CounterVec
	availabilityLatency prometheus.Histogram
	bookingsTotal       *prometheus.CounterVec
	promotionsTotal     *prometheus.CounterVec
	lockContention      prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "scheduling",
			Name:      "availability_checks_total",
			Help:      "Availability checks by outcome (available or rejection reason)",
		}, []string{"outcome"}),
		availabilityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "physio",
			Subsystem: "scheduling",
			Name:      "availability_check_seconds",
			Help:      "Latency of availability checks including suggestion lookups",
			Buckets:   prometheus.DefBuckets,
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "scheduling",
			Name:      "booking_mutations_total",
			Help:      "Booking mutations by operation and result",
		}, []string{"op", "result"}),
		promotionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "scheduling",
			Name:      "waiting_list_promotions_total",
			Help:      "Waiting list promotion attempts by outcome",
		}, []string{"outcome"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "scheduling",
			Name:      "lock_contention_total",
			Help:      "Requests rejected because a scheduling lock was held",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.availabilityLatency, m.bookingsTotal, m.promotionsTotal, m.lockContention)
	return m
}

func (m *SchedulingMetrics) ObserveAvailability(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(outcome).Inc()
	m.availabilityLatency.Observe(took.Seconds())
}

func (m *SchedulingMetrics) ObserveBooking(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.bookingsTotal.WithLabelValues(op, result).Inc()
}

// ObservePromotion records promoted, none (empty waiting list), blocked or failed.
func (m *SchedulingMetrics) ObservePromotion(outcome string) {
	if m == nil {
		return
	}
	m.promotionsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}
