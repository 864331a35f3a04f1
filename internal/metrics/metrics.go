package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/systmms/edgesecrets/pkg/secretstore"
)

var (
	// Store chain metrics
	storeLookupsTotal     *prometheus.CounterVec
	cacheFillsTotal       *prometheus.CounterVec
	remoteRequestsTotal   *prometheus.CounterVec
	remoteUnmatchedTotal  prometheus.Counter
	remotePendingRequests prometheus.Gauge

	// Delivery service metrics
	deliveryRequestsTotal *prometheus.CounterVec
	deliverySecretsTotal  prometheus.Counter
	deliveryDuration      prometheus.Histogram

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers all Prometheus metrics with the default registry.
// This should be called once at startup if metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		storeLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgesecrets_store_lookups_total",
				Help: "Local lookups per chain layer",
			},
			[]string{"layer", "result"},
		)

		cacheFillsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgesecrets_cache_fills_total",
				Help: "Writes of inner-store results into a cache layer",
			},
			[]string{"layer", "status"},
		)

		remoteRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgesecrets_remote_requests_total",
				Help: "Remote secret requests by outcome",
			},
			[]string{"outcome"},
		)

		remoteUnmatchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "edgesecrets_remote_unmatched_responses_total",
				Help: "Responses received for unknown or expired request ids",
			},
		)

		remotePendingRequests = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgesecrets_remote_pending_requests",
				Help: "Remote requests awaiting a response",
			},
		)

		deliveryRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgesecrets_delivery_requests_total",
				Help: "Device requests handled by the delivery service",
			},
			[]string{"status"},
		)

		deliverySecretsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "edgesecrets_delivery_secrets_total",
				Help: "Secrets delivered to devices",
			},
		)

		deliveryDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgesecrets_delivery_duration_seconds",
				Help:    "Time to answer a device request",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		metricsRegistered = true
	})
}

// StoreMetrics records store chain events. It satisfies
// secretstore.Observer and is a no-op until InitMetrics runs.
type StoreMetrics struct{}

// NewStoreMetrics creates a StoreMetrics
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{}
}

// Lookup records a local lookup on a layer
func (m *StoreMetrics) Lookup(layer string, hit bool) {
	if !metricsRegistered {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	storeLookupsTotal.WithLabelValues(layer, result).Inc()
}

// CacheFill records a cache-fill attempt
func (m *StoreMetrics) CacheFill(layer string, err error) {
	if !metricsRegistered {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	cacheFillsTotal.WithLabelValues(layer, status).Inc()
}

// RemoteOutcome records how a remote request ended
func (m *StoreMetrics) RemoteOutcome(outcome string) {
	if !metricsRegistered {
		return
	}
	remoteRequestsTotal.WithLabelValues(outcome).Inc()
}

// UnmatchedResponse records a response nobody was waiting for
func (m *StoreMetrics) UnmatchedResponse() {
	if !metricsRegistered {
		return
	}
	remoteUnmatchedTotal.Inc()
}

// PendingRequests records the size of the pending-request table
func (m *StoreMetrics) PendingRequests(n int) {
	if !metricsRegistered {
		return
	}
	remotePendingRequests.Set(float64(n))
}

var _ secretstore.Observer = (*StoreMetrics)(nil)

// DeliveryMetrics records delivery service events.
type DeliveryMetrics struct{}

// NewDeliveryMetrics creates a DeliveryMetrics
func NewDeliveryMetrics() *DeliveryMetrics {
	return &DeliveryMetrics{}
}

// RecordRequest records one handled device request
func (m *DeliveryMetrics) RecordRequest(status string, delivered int, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	deliveryRequestsTotal.WithLabelValues(status).Inc()
	deliverySecretsTotal.Add(float64(delivered))
	deliveryDuration.Observe(durationSeconds)
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
