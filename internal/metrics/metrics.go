package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paper-trading-bot/internal/events"
)

// Collector turns engine events into Prometheus series. It subscribes to
// the bus; the engine itself never touches the metrics registry.
type Collector struct {
	signalsGenerated *prometheus.CounterVec
	signalsRejected  *prometheus.CounterVec
	positionsOpened  *prometheus.CounterVec
	positionsClosed  *prometheus.CounterVec
	riskHalts        *prometheus.CounterVec
	realizedPnL      prometheus.Counter
	capital          prometheus.Gauge
	openPositions    prometheus.Gauge
}

func NewCollector() *Collector {
	return &Collector{
		signalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_signals_generated_total",
			Help: "Signals chosen by arbitration, by source.",
		}, []string{"source"}),
		signalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_signals_rejected_total",
			Help: "Signals rejected, by reason code.",
		}, []string{"reason"}),
		positionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_positions_opened_total",
			Help: "Positions opened, by symbol.",
		}, []string{"symbol"}),
		positionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_positions_closed_total",
			Help: "Positions closed, by exit reason.",
		}, []string{"exit_reason"}),
		riskHalts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_risk_halts_total",
			Help: "Risk gate halt transitions, by state.",
		}, []string{"state"}),
		realizedPnL: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_realized_pnl_abs_total",
			Help: "Sum of absolute realized P&L settled.",
		}),
		capital: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_capital",
			Help: "Current account capital.",
		}),
		openPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_open_positions",
			Help: "Number of currently open positions.",
		}),
	}
}

// Attach subscribes the collector to the event bus.
func (c *Collector) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		c.signalsGenerated.WithLabelValues(stringField(e, "source")).Inc()
	})
	bus.Subscribe(events.EventSignalRejected, func(e events.Event) {
		c.signalsRejected.WithLabelValues(stringField(e, "reason")).Inc()
	})
	bus.Subscribe(events.EventPositionOpened, func(e events.Event) {
		c.positionsOpened.WithLabelValues(stringField(e, "symbol")).Inc()
		c.openPositions.Inc()
	})
	bus.Subscribe(events.EventPositionClosed, func(e events.Event) {
		c.positionsClosed.WithLabelValues(stringField(e, "exit_reason")).Inc()
		c.openPositions.Dec()
		if pnl, ok := e.Data["realized_pnl"].(float64); ok {
			if pnl < 0 {
				pnl = -pnl
			}
			c.realizedPnL.Add(pnl)
		}
	})
	bus.Subscribe(events.EventRiskHalted, func(e events.Event) {
		c.riskHalts.WithLabelValues(stringField(e, "state")).Inc()
	})
}

// SetCapital updates the capital gauge; called from the status path.
func (c *Collector) SetCapital(capital float64) {
	c.capital.Set(capital)
}

// SetOpenPositions pins the open-position gauge to the ledger's count.
func (c *Collector) SetOpenPositions(n int) {
	c.openPositions.Set(float64(n))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func stringField(e events.Event, key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return "unknown"
}
