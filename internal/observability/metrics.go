package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the quonk ledger.
type Metrics struct {
	// Trades
	TradesExecuted *prometheus.CounterVec // side: buy|sell
	TradesRejected *prometheus.CounterVec // reason: error kind
	TradeVolume    *prometheus.CounterVec // side: buy|sell; settled cash moved

	// Observation
	ObservationsApplied prometheus.Counter
	TicksReceived       prometheus.Counter
	TicksDropped        *prometheus.CounterVec // reason: decode|observe

	// Quotes
	QuoteRequests prometheus.Counter
	QuoteFailures prometheus.Counter
	QuoteDuration prometheus.Histogram

	// Dispatch
	CommandDuration *prometheus.HistogramVec // command name
	CommandErrors   *prometheus.CounterVec   // command name
	Registrations   prometheus.Counter
}

// NewMetrics registers all metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TradesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quonk_trades_executed_total",
			Help: "Settled trades by side.",
		}, []string{"side"}),
		TradesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quonk_trades_rejected_total",
			Help: "Trades rejected before any state change, by failure kind.",
		}, []string{"reason"}),
		TradeVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quonk_trade_volume_total",
			Help: "Cash moved by settled trades, by side.",
		}, []string{"side"}),

		ObservationsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "quonk_observations_applied_total",
			Help: "Price observations applied to open positions.",
		}),
		TicksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "quonk_price_ticks_received_total",
			Help: "Price ticks received from the feed.",
		}),
		TicksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quonk_price_ticks_dropped_total",
			Help: "Price ticks dropped without being applied, by reason.",
		}, []string{"reason"}),

		QuoteRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "quonk_quote_requests_total",
			Help: "Quote lookups against the price source.",
		}),
		QuoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "quonk_quote_failures_total",
			Help: "Quote lookups that resolved no price.",
		}),
		QuoteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quonk_quote_duration_seconds",
			Help:    "Latency of quote lookups.",
			Buckets: prometheus.DefBuckets,
		}),

		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quonk_command_duration_seconds",
			Help:    "End-to-end latency of dispatched commands.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		CommandErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quonk_command_errors_total",
			Help: "Commands that returned a failure to the user.",
		}, []string{"command"}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "quonk_registrations_total",
			Help: "Successful member registrations.",
		}),
	}
}
