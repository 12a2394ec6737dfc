package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Quote pipeline
	// ============================================
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramp_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"platform", "mode"},
	)

	QuoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ramp_quote_duration_seconds",
		Help:    "Quote aggregation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	BridgeQuoteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramp_bridge_quote_failures_total",
			Help: "Total number of failed cross-asset bridge price lookups",
		},
		[]string{"reason"},
	)

	// ============================================
	// Reconciliation
	// ============================================
	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramp_reconcile_outcomes_total",
			Help: "Payment reconciliation outcomes (auto, manual, none)",
		},
		[]string{"outcome"},
	)

	RecordSetExpiries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ramp_record_set_expiries_total",
		Help: "Record sets that expired before proof generation started",
	})

	// ============================================
	// Curator client
	// ============================================
	CuratorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramp_curator_retries_total",
			Help: "Curator call retry attempts by error kind",
		},
		[]string{"kind"},
	)

	CuratorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ramp_curator_call_duration_seconds",
			Help:    "Curator call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	// ============================================
	// Chain access
	// ============================================
	ChainCallFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramp_chain_call_failures_total",
			Help: "Failed escrow/ERC-20 calls by method",
		},
		[]string{"method"},
	)

	IntentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramp_intent_transitions_total",
			Help: "Intent lifecycle state transitions",
		},
		[]string{"machine", "state"},
	)

	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ramp_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})
)
