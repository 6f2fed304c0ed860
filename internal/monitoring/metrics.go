// Package monitoring exposes engine telemetry to Prometheus.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine decisions
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbot_actions_total",
			Help: "Risk engine actions by kind",
		},
		[]string{"kind"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbot_executions_total",
			Help: "Swap executions by side and result",
		},
		[]string{"side", "result"},
	)

	positionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbot_positions_closed_total",
			Help: "Closed positions by exit reason",
		},
		[]string{"reason"},
	)

	realisedPnL = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solbot_realised_pnl_pct",
			Help:    "Distribution of realised P/L percentage per closed position",
			Buckets: []float64{-50, -25, -12, -5, 0, 5, 25, 50, 100, 200, 400},
		},
		[]string{"reason"},
	)

	// Feed and gate
	priceFeedMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solbot_price_feed_misses_total",
			Help: "Ticks where a tracked token had no quote",
		},
	)

	safetyVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbot_safety_verdicts_total",
			Help: "Safety gate outcomes",
		},
		[]string{"outcome"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solbot_tick_duration_seconds",
			Help:    "Time spent evaluating all open positions for one price batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Derived state
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solbot_open_positions",
			Help: "Currently open positions",
		},
	)

	potentialTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solbot_potential_trades",
			Help: "Candidates awaiting the safety gate",
		},
	)

	winRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solbot_win_rate",
			Help: "Share of closed positions with positive P/L",
		},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solbot_current_price",
			Help: "Last observed USD price of a held token",
		},
		[]string{"symbol"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbot_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(positionsClosed)
	prometheus.MustRegister(realisedPnL)
	prometheus.MustRegister(priceFeedMisses)
	prometheus.MustRegister(safetyVerdicts)
	prometheus.MustRegister(tickDuration)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(potentialTrades)
	prometheus.MustRegister(winRate)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(errorsTotal)
}

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAction counts one engine action.
func RecordAction(kind string) {
	actionsTotal.WithLabelValues(kind).Inc()
}

// RecordExecution counts a buy or sell attempt.
func RecordExecution(side string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	executionsTotal.WithLabelValues(side, result).Inc()
}

// RecordClose records a fully closed position.
func RecordClose(reason string, pnlPct float64) {
	positionsClosed.WithLabelValues(reason).Inc()
	realisedPnL.WithLabelValues(reason).Observe(pnlPct)
}

// RecordFeedMiss counts a token skipped for lack of a quote.
func RecordFeedMiss() {
	priceFeedMisses.Inc()
}

// RecordVerdict counts a safety gate outcome: passed, rejected or transient.
func RecordVerdict(outcome string) {
	safetyVerdicts.WithLabelValues(outcome).Inc()
}

// ObserveTick records how long one evaluation pass took.
func ObserveTick(seconds float64) {
	tickDuration.Observe(seconds)
}

// UpdateSummary mirrors the derived metrics into gauges.
func UpdateSummary(open, potential int, rate float64) {
	openPositions.Set(float64(open))
	potentialTrades.Set(float64(potential))
	winRate.Set(rate)
}

// UpdatePrice updates the current price gauge for a held token.
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// ForgetPrice drops the price gauge of a token no longer held.
func ForgetPrice(symbol string) {
	currentPrice.DeleteLabelValues(symbol)
}

// RecordError records an error metric.
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
