package b2c

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "b2c"

// Redemption results recorded by Metrics.
const (
	RedemptionSuccess        = "success"
	RedemptionReauthRequired = "reauth_required"
	RedemptionError          = "error"
	RedemptionCacheError     = "cache_error"
)

// Metrics are the Orchestrator's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	remoteFailures  *prometheus.CounterVec
	codeRedemptions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	const op = "b2c.NewMetrics"
	m := &Metrics{
		remoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remote_failures_total",
			Help:      "Remote authentication failures by recovery action and whether a classification rule matched.",
		}, []string{"action", "matched"}),
		codeRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "code_redemptions_total",
			Help:      "Authorization code redemptions by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.remoteFailures, m.codeRedemptions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%s: unable to register collector: %w", op, err)
		}
	}
	return m, nil
}

func (m *Metrics) remoteFailure(action RecoveryAction, matched bool) {
	if m == nil {
		return
	}
	m.remoteFailures.WithLabelValues(action.String(), strconv.FormatBool(matched)).Inc()
}

func (m *Metrics) codeRedemption(result string) {
	if m == nil {
		return
	}
	m.codeRedemptions.WithLabelValues(result).Inc()
}
