package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "faucet"

// Result labels used for successful operations. Failures are labelled with the faucet
// error kind.
const ResultSuccess = "success"

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	// RecordRequest starts timing an operation on an asset; onDone receives the error
	// kind, empty on success.
	RecordRequest(op, asset string) (onDone func(kind string))
	// RecordAmount adds the display amount moved by a committed operation.
	RecordAmount(op, asset string, amount float64)
	// RecordDrift sets the difference between the custody balance and the vault balance.
	RecordDrift(asset string, drift float64)
}

type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	amounts  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	drift    *prometheus.GaugeVec

	info *prometheus.GaugeVec
	up   prometheus.Gauge
}

var _ Metricer = (*Metrics)(nil)

// NewMetrics registers the faucet metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,

		info: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "info",
			Help:      "Pseudo-metric tracking version info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "up",
			Help:      "1 if the faucet has finished starting up",
		}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Count of faucet operations by outcome",
		}, []string{"op", "asset", "result"}),

		amounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_total",
			Help:      "Total display amount moved by committed operations",
		}, []string{"op", "asset"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			Help:      "Duration of faucet operations, including token transfers",
		}, []string{"op", "asset"}),

		drift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "vault_drift",
			Help:      "Custody balance minus vault balance, in display units",
		}, []string{"asset"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordInfo sets a pseudo-metric that contains versioning info.
func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

// RecordUp sets the up metric to 1.
func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordRequest(op, asset string) (onDone func(kind string)) {
	timer := prometheus.NewTimer(m.duration.WithLabelValues(op, asset))
	return func(kind string) {
		timer.ObserveDuration()
		result := ResultSuccess
		if kind != "" {
			result = kind
		}
		m.requests.WithLabelValues(op, asset, result).Inc()
	}
}

func (m *Metrics) RecordAmount(op, asset string, amount float64) {
	m.amounts.WithLabelValues(op, asset).Add(amount)
}

func (m *Metrics) RecordDrift(asset string, drift float64) {
	m.drift.WithLabelValues(asset).Set(drift)
}
