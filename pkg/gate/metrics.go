package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAllow = "allow"
	outcomeDeny  = "deny"
)

type metrics struct {
	decisions *prometheus.CounterVec
}

// newMetrics builds the gate's collectors and registers them with reg. A
// nil reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accessgate",
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Authorization decisions by outcome and denial code.",
			},
			[]string{"outcome", "code"},
		),
	}
}
