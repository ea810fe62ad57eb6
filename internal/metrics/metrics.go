package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatreg_delivery_attempts_total",
			Help: "Indicator delivery attempts by destination and result",
		},
		[]string{"destination", "result"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatreg_delivery_duration_seconds",
			Help:    "Duration of indicator delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	DeliveriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatreg_deliveries_in_flight",
			Help: "Delivery attempts currently running",
		},
	)

	OutcomeRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatreg_outcome_record_failures_total",
			Help: "Delivery outcomes that could not be stored",
		},
	)

	RegistryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatreg_registry_writes_total",
			Help: "Registry inserts and deletes by registry, operation and result",
		},
		[]string{"registry", "operation", "result"},
	)
)

// Delivery results.
const (
	ResultDelivered         = "delivered"
	ResultRejected          = "rejected"
	ResultMappingMissing    = "mapping_missing"
	ResultCredentialMissing = "credential_missing"
	ResultFailed            = "failed"
)
