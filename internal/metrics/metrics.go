// Package metrics exposes engine counters and gauges to Prometheus. Each
// Metrics has its own registry so tests and parallel backtests do not
// collide. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/intraday/portfolio"
)

const namespace = "intraday"

type Metrics struct {
	reg *prometheus.Registry

	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	Skipped      *prometheus.CounterVec
	Decisions    *prometheus.CounterVec
	Closed       *prometheus.CounterVec
	Errors       *prometheus.CounterVec

	Equity        prometheus.Gauge
	Exposure      prometheus.Gauge
	DailyLoss     prometheus.Gauge
	OpenPositions prometheus.Gauge
	Halted        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Engine ticks processed",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds", Help: "Wall time of one engine tick",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "symbols_skipped_total", Help: "Symbols skipped for a tick",
		}, []string{"reason"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total", Help: "Risk decisions by result and rejection code",
		}, []string{"result", "code"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "positions_closed_total", Help: "Terminal position transitions by status",
		}, []string{"status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total", Help: "Errors by kind",
		}, []string{"kind"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity", Help: "Balance plus unrealized P&L",
		}),
		Exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "exposure", Help: "Notional of pending and open positions",
		}),
		DailyLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_loss", Help: "Realized loss for the session",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions", Help: "Pending and open positions",
		}),
		Halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "halted", Help: "1 while new entries are halted",
		}),
	}
	m.reg.MustRegister(
		m.Ticks, m.TickDuration, m.Skipped, m.Decisions, m.Closed, m.Errors,
		m.Equity, m.Exposure, m.DailyLoss, m.OpenPositions, m.Halted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
}

func (m *Metrics) SkipSymbol(reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Decision(accepted bool, code string) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.Decisions.WithLabelValues(result, code).Inc()
}

func (m *Metrics) PositionClosed(status portfolio.Status) {
	if m == nil {
		return
	}
	m.Closed.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

// SetState copies the portfolio gauges.
func (m *Metrics) SetState(st portfolio.State) {
	if m == nil {
		return
	}
	m.Equity.Set(st.Equity)
	m.Exposure.Set(st.Exposure)
	m.DailyLoss.Set(st.DailyLoss)
	m.OpenPositions.Set(float64(st.OpenCount()))
	if st.Halted {
		m.Halted.Set(1)
	} else {
		m.Halted.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
