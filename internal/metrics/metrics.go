// Package metrics exposes Prometheus instrumentation for the grid-bot
// daemon. Gauges and counters are registered at package init and served
// by an HTTP handler the caller mounts at /metrics, the same shape as
// metrics.go/main.go in the coinbase bot this is grounded on.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridbot_tick_duration_seconds",
			Help:    "Time spent running one bot's control loop tick.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bot_id"},
	)

	TickErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_tick_errors_total",
			Help: "Tick failures by bot, counted against the consecutive-error stop threshold.",
		},
		[]string{"bot_id"},
	)

	ActivePositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_active_positions",
			Help: "Positions currently not EMPTY/SOLD, per bot.",
		},
		[]string{"bot_id"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_trades_total",
			Help: "Trades executed, by bot and side (buy|sell).",
		},
		[]string{"bot_id", "side"},
	)

	ProfitEth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_profit_eth",
			Help: "Cumulative realized profit in ETH, per bot.",
		},
		[]string{"bot_id"},
	)

	CircuitBreakerTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_circuit_breaker_trips_total",
			Help: "Number of times the circuit breaker has tripped.",
		},
	)

	CircuitBreakerActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridbot_circuit_breaker_active",
			Help: "1 while the circuit breaker is tripped, 0 otherwise.",
		},
	)
)

func init() {
	prometheus.MustRegister(TickDuration, TickErrors, ActivePositions)
	prometheus.MustRegister(TradesTotal, ProfitEth)
	prometheus.MustRegister(CircuitBreakerTrips, CircuitBreakerActive)
}

// Handler returns the /metrics HTTP handler for the daemon's mux.
func Handler() http.Handler {
	return promhttp.Handler()
}
