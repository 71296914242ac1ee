package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eduportal"

var (
	upgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "upgrades_total",
		Help:      "Membership upgrade attempts by target plan and result code.",
	}, []string{"plan", "result"})

	renewals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "renewals_total",
		Help:      "Auto-renewal attempts by plan and result code.",
	}, []string{"plan", "result"})

	expired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "expired_total",
		Help:      "Memberships transitioned to expired by the sweep.",
	})

	reconcile = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "reconcile_required_total",
		Help:      "Partial failures that need manual or automated reconciliation.",
	}, []string{"stage"})

	gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payment_gateway",
		Name:      "charge_duration_seconds",
		Help:      "Latency of payment gateway charge calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"status"})

	sweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Scheduled sweep runs by job and outcome.",
	}, []string{"job", "outcome"})
)

// ObserveUpgrade records the result code ("success" or an error code) of an upgrade.
func ObserveUpgrade(plan, result string) {
	upgrades.WithLabelValues(plan, result).Inc()
}

func ObserveRenewal(plan, result string) {
	renewals.WithLabelValues(plan, result).Inc()
}

func AddExpired(n int) {
	if n > 0 {
		expired.Add(float64(n))
	}
}

// ReconcileRequired counts a partial failure at the given stage, e.g. "profile_update".
func ReconcileRequired(stage string) {
	reconcile.WithLabelValues(stage).Inc()
}

func ObserveGatewayCharge(status string, d time.Duration) {
	gatewayLatency.WithLabelValues(status).Observe(d.Seconds())
}

func ObserveSweep(job, outcome string) {
	sweeps.WithLabelValues(job, outcome).Inc()
}
