package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "corestack", Name: "auth_attempts_total", Help: "Authentication attempts by mode (token|session) and result (ok|denied)."},
		[]string{"mode", "result"},
	)
	GateDenied = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "corestack", Name: "gate_denied_total", Help: "Requests rejected by the service-key gate."},
	)
	StorageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "corestack", Name: "storage_ops_total", Help: "Document store operations by kind and outcome."},
		[]string{"op", "outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "corestack", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "corestack", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AuthAttempts, GateDenied, StorageOps, RateLimitAllowed, RateLimitRejected)
}
