package broker

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vaultgate"

type metrics struct {
	requests         *prometheus.CounterVec
	pendingApprovals prometheus.Gauge
	decisions        *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Protocol requests handled, by message type and outcome code.",
		}, []string{"type", "code"}),
		pendingApprovals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "pending_approvals",
			Help:      "Approval requests waiting for a decision.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "approval_decisions_total",
			Help:      "Settled approval requests, by kind and final status.",
		}, []string{"kind", "status"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.requests, m.pendingApprovals, m.decisions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeRequest(t string, code string) {
	if code == "" {
		code = "OK"
	}
	m.requests.WithLabelValues(t, code).Inc()
}
