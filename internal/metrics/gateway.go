// Package metrics exposes the prometheus counters of the authenticated request gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace string = "goalgrid_gateway"

// Outcomes of a refresh call
const (
	RefreshSuccess string = "success"
	RefreshFailure string = "failure"
)

type GatewayMetrics struct {
	refreshes    *prometheus.CounterVec
	terminations *prometheus.CounterVec
	retries      prometheus.Counter
}

// NewGatewayMetrics creates the counters and registers them with the registerer
func NewGatewayMetrics(registerer prometheus.Registerer) (*GatewayMetrics, error) {
	m := GatewayMetrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Number of credential refresh calls by outcome.",
		}, []string{"outcome"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Number of terminated sessions by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Number of requests re-sent after a successful refresh.",
		}),
	}
	for _, collector := range []prometheus.Collector{m.refreshes, m.terminations, m.retries} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *GatewayMetrics) Refresh(outcome string) {
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *GatewayMetrics) Termination(reason string) {
	m.terminations.WithLabelValues(reason).Inc()
}

func (m *GatewayMetrics) Retry() {
	m.retries.Inc()
}
