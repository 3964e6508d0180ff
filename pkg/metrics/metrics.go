// Package metrics exports ledger activity to Prometheus.
package metrics

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

const namespace = "elastic"

// Collector turns ledger events and op outcomes into metrics. It implements ledger.EventSink.
type Collector struct {
	decimals uint8

	totalSupply  prometheus.Gauge
	currentPrice prometheus.Gauge
	lastRebase   prometheus.Gauge
	supplyChange prometheus.Gauge
	events       *prometheus.CounterVec
	ops          *prometheus.CounterVec

	prevSupply *uint256.Int
}

// NewCollector registers the ledger metrics on reg. Supply and price gauges are
// reported in whole tokens using decimals.
func NewCollector(reg prometheus.Registerer, decimals uint8) *Collector {
	f := promauto.With(reg)
	return &Collector{
		decimals: decimals,
		totalSupply: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_supply",
			Help:      "Total supply in whole tokens after the latest rebase",
		}),
		currentPrice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "current_price",
			Help:      "Latest oracle price in whole price units",
		}),
		lastRebase: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_rebase_timestamp_seconds",
			Help:      "Unix time of the latest rebase",
		}),
		supplyChange: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_rebase_supply_ratio",
			Help:      "New supply divided by previous supply for the latest rebase",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Number of ledger events by kind",
		}, []string{"kind"}),
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "ops_total",
			Help:      "Number of submitted ops by kind and result",
		}, []string{"kind", "result"}),
	}
}

// SetSupply primes the supply gauge, e.g. after restoring from disk.
func (c *Collector) SetSupply(supply *uint256.Int) {
	c.prevSupply = supply.Clone()
	c.totalSupply.Set(scaled(supply, c.decimals))
}

func (c *Collector) Emit(ev types.Event) {
	c.events.WithLabelValues(ev.Kind().String()).Inc()

	switch v := ev.(type) {
	case *types.RebasedEvent:
		if c.prevSupply != nil && !c.prevSupply.IsZero() {
			ratio := new(big.Float).Quo(new(big.Float).SetInt(v.TotalSupply.ToBig()), new(big.Float).SetInt(c.prevSupply.ToBig()))
			r, _ := ratio.Float64()
			c.supplyChange.Set(r)
		}
		c.SetSupply(&v.TotalSupply)
		c.lastRebase.Set(float64(v.Epoch.Unix()))
	case *types.PriceUpdatedEvent:
		// Prices use 18 decimals regardless of token decimals.
		c.currentPrice.Set(scaled(&v.Price, 18))
	}
}

// ObserveOp counts a submitted op by outcome label.
func (c *Collector) ObserveOp(kind types.OpKind, result string) {
	c.ops.WithLabelValues(kind.String(), result).Inc()
}

func scaled(v *uint256.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(v.ToBig())
	f.Quo(f, big.NewFloat(math.Pow10(int(decimals))))
	out, _ := f.Float64()
	return out
}
