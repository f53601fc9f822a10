package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_bot_signals_total", Help: "Signals emitted by the strategy"},
		[]string{"mode", "side"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_bot_cycles_total", Help: "Trading cycles by result"},
		[]string{"result"},
	)
	OrderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_bot_order_attempts_total", Help: "Entry submissions by result"},
		[]string{"result"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_bot_executions_total", Help: "Entry executions by final state"},
		[]string{"state"},
	)
	FlattenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_bot_flatten_total", Help: "Flatten runs by final status"},
		[]string{"status"},
	)
	HealthErrorStreak = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "futures_bot_health_error_streak", Help: "Consecutive failed health checks"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, CyclesTotal, OrderAttemptsTotal, ExecutionsTotal, FlattenTotal, HealthErrorStreak)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
