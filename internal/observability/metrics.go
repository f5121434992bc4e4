// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	// Minting metrics
	MintsTotal        *prometheus.CounterVec
	MintFailuresTotal *prometheus.CounterVec
	MintDuration      prometheus.Histogram

	// Storage metering metrics
	StorageBytesCharged prometheus.Counter
	DepositRequired     prometheus.Histogram

	// Refund metrics
	RefundsTotal        prometheus.Counter
	RefundAmountTotal   prometheus.Counter
	RefundFailuresTotal prometheus.Counter

	// Journal metrics
	JournalAppendsTotal  prometheus.Counter
	JournalFailuresTotal prometheus.Counter

	// Feed metrics
	FeedSubscribers prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hades_registry"
	}

	return &Metrics{
		MintsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "minting",
			Name:      "mints_total",
			Help:      "Total number of successful mints by workflow",
		}, []string{"workflow"}),
		MintFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "minting",
			Name:      "mint_failures_total",
			Help:      "Total number of failed mint calls by reason",
		}, []string{"reason"}),
		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "minting",
			Name:      "duration_seconds",
			Help:      "Mint call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageBytesCharged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "storage_bytes_charged_total",
			Help:      "Total storage bytes charged to mint callers",
		}),
		DepositRequired: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "deposit_required",
			Help:      "Required deposit per mint call in payment units",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}),

		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "refunds_total",
			Help:      "Total number of refunds issued",
		}),
		RefundAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "refund_amount_total",
			Help:      "Total refunded amount in payment units",
		}),
		RefundFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "refund_failures_total",
			Help:      "Total number of refund transfers that failed after commit",
		}),

		JournalAppendsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "appends_total",
			Help:      "Total number of mint events appended to the journal",
		}),
		JournalFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "failures_total",
			Help:      "Total number of journal appends that failed",
		}),

		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of WebSocket feed subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
