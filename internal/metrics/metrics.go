package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatrush_admission_issued_total",
			Help: "Admission tokens returned by issue, by resulting state",
		},
		[]string{"state"},
	)

	AdmissionPromoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatrush_admission_promoted_total",
			Help: "Tokens moved from waiting to active",
		},
	)

	AdmissionQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seatrush_admission_tokens",
			Help: "Tokens currently in the admission queue",
		},
		[]string{"queue_type"},
	)

	SeatHoldAcquire = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatrush_seat_hold_acquire_total",
			Help: "Seat hold acquire attempts by result",
		},
		[]string{"result"},
	)

	ReservationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatrush_reservation_transitions_total",
			Help: "Reservation status changes by target status",
		},
		[]string{"status"},
	)

	PaymentCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatrush_payment_commands_total",
			Help: "Payment commands processed by outcome",
		},
		[]string{"outcome"},
	)

	PaymentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatrush_payment_results_total",
			Help: "Payment results consumed by outcome",
		},
		[]string{"outcome"},
	)

	ConsumerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatrush_consumer_retries_total",
			Help: "Handler failures that withheld a commit and forced a retry",
		},
		[]string{"topic"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seatrush_sweep_duration_seconds",
			Help:    "Duration of background sweeps",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"sweeper"},
	)
)
