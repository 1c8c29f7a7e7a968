// Package metrics exposes the order service counters on a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchbook"

// Operation labels for the latency histogram.
const (
	OpAdd     = "add"
	OpCancel  = "cancel"
	OpReduce  = "reduce"
	OpExecute = "execute"
)

type Metrics struct {
	registry *prometheus.Registry

	OrdersAccepted *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec
	Cancels        prometheus.Counter
	Trades         prometheus.Counter
	TradedShares   prometheus.Counter
	PublishErrors  *prometheus.CounterVec
	RestingOrders  prometheus.Gauge
	Latency        *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrdersAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_accepted_total",
			Help:      "Orders rested in the book.",
		}, []string{"side"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders refused by the book.",
		}, []string{"reason"}),
		Cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Resting orders canceled.",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}),
		TradedShares: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_shares_total",
			Help:      "Shares exchanged across all trades.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Trade batches a publisher failed to accept.",
		}, []string{"publisher"}),
		RestingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders currently in the book.",
		}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Book operation latency.",
			Buckets:   prometheus.ExponentialBuckets(50e-9, 2, 20),
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.OrdersAccepted,
		m.OrdersRejected,
		m.Cancels,
		m.Trades,
		m.TradedShares,
		m.PublishErrors,
		m.RestingOrders,
		m.Latency,
		collectors.NewGoCollector(),
	)
	return m
}

// Observe records the latency of op since start.
func (m *Metrics) Observe(op string, start time.Time) {
	m.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
