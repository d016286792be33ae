package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the engine's Prometheus series, labelled by symbol.
type Metrics struct {
	BarsTotal        *prometheus.CounterVec
	BarsSkipped      *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
	TradesTotal      *prometheus.CounterVec
	ExitsTotal       *prometheus.CounterVec
	PersistErrors    *prometheus.CounterVec
	RealizedProfit   *prometheus.GaugeVec
	PositionOpen     *prometheus.GaugeVec
	IterationSeconds *prometheus.HistogramVec
}

// New creates the series and registers them on reg. A nil reg gets a
// private registry, which keeps tests and parallel engines apart.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		BarsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intraday_bars_total", Help: "Bars handed to the state machine"},
			[]string{"symbol"},
		),
		BarsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intraday_bars_skipped_total", Help: "Bars discarded as malformed or stale"},
			[]string{"symbol", "reason"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intraday_fetch_errors_total", Help: "Failed or empty bar fetches"},
			[]string{"symbol"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intraday_trades_total", Help: "Trades appended to the ledger"},
			[]string{"symbol", "side"},
		),
		ExitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intraday_exits_total", Help: "Closed positions by exit reason"},
			[]string{"symbol", "reason"},
		),
		PersistErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intraday_persist_errors_total", Help: "Failed ledger writes"},
			[]string{"symbol"},
		),
		RealizedProfit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "intraday_realized_profit", Help: "Sum of realized profit per unit"},
			[]string{"symbol"},
		),
		PositionOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "intraday_position_open", Help: "1 while a position is held"},
			[]string{"symbol"},
		),
		IterationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intraday_iteration_seconds",
				Help:    "Duration of one fetch-decide-persist iteration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
	}
	reg.MustRegister(
		m.BarsTotal, m.BarsSkipped, m.FetchErrors, m.TradesTotal, m.ExitsTotal,
		m.PersistErrors, m.RealizedProfit, m.PositionOpen, m.IterationSeconds,
	)
	return m
}

// Serve exposes g on addr under /metrics. Bind errors are returned; the
// server's Addr holds the bound address, which matters for ":0".
func Serve(addr string, g prometheus.Gatherer) (*http.Server, error) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}

// Shutdown stops a server returned by Serve.
func Shutdown(srv *http.Server) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
