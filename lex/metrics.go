package lex

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the engine. All methods are nil-safe so the
// engine can run without instrumentation.
type Metrics struct {
	Operations    *prometheus.CounterVec
	OpDuration    *prometheus.HistogramVec
	ActiveMarkets prometheus.Gauge
	ProtocolFees  *prometheus.CounterVec
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by type and result.",
		}, []string{"op", "result"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ActiveMarkets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_markets",
			Help:      "Markets hosted by the engine.",
		}),
		ProtocolFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "protocol_fees_base_units_total",
			Help:      "Protocol fees collected, in base units.",
		}, []string{"market"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.Operations, m.OpDuration, m.ActiveMarkets, m.ProtocolFees)
	}
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) marketOpened() {
	if m == nil {
		return
	}
	m.ActiveMarkets.Inc()
}

func (m *Metrics) feeCollected(market string, fee *big.Int) {
	if m == nil || fee == nil || fee.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(fee).Float64()
	m.ProtocolFees.WithLabelValues(market).Add(value)
}
