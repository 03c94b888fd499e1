// Package metrics exposes Prometheus counters and gauges for the tick
// pipeline, plus a /metrics HTTP endpoint that doubles as the health
// surface for operators.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "meanrev_ticks_total", Help: "Completed scheduler ticks"},
	)
	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "meanrev_snapshots_total", Help: "Market snapshots processed"},
	)
	FeedErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "meanrev_feed_errors_total", Help: "Failed feed fetches (tick skipped for affected markets)"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "meanrev_signals_total", Help: "Signals detected"},
		[]string{"strength", "direction"},
	)
	RejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "meanrev_rejects_total", Help: "Orders vetoed by the risk gate"},
		[]string{"reason"},
	)
	PositionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "meanrev_positions_opened_total", Help: "Paper positions opened"},
	)
	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "meanrev_positions_closed_total", Help: "Paper positions closed"},
		[]string{"status"},
	)
	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "meanrev_equity_usd", Help: "Current portfolio equity"},
	)
	ExposureUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "meanrev_exposure_usd", Help: "Open position cost basis"},
	)
	DrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "meanrev_drawdown_pct", Help: "Current drawdown from peak equity"},
	)
	BreakerTripped = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "meanrev_breaker_tripped", Help: "1 while the drawdown breaker blocks new orders"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, SnapshotsTotal, FeedErrorsTotal,
		SignalsTotal, RejectsTotal,
		PositionsOpened, PositionsClosed,
		EquityUSD, ExposureUSD, DrawdownPct, BreakerTripped,
	)
}

// Serve starts the metrics endpoint on addr. The returned server should
// be closed on shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
