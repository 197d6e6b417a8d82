package guard

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded on the counter below.
const (
	ReasonRateLimit   = "rate_limit"
	ReasonPeerLimit   = "peer_rate_limit"
	ReasonProtocol    = "protocol_violation"
	ReasonUnknownKind = "unknown_kind"
)

var (
	// Registry holds the gossamer metrics, kept separate from the default
	// registry so embedding applications control what they expose.
	Registry = prometheus.NewRegistry()

	// DroppedMessages counts inbound messages dropped before dispatch.
	// Dropped messages are never queued; the counter is the only trace they
	// leave.
	DroppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossamer",
			Name:      "dropped_messages_total",
			Help:      "Inbound messages dropped before reaching the protocol handlers.",
		},
		[]string{"reason"},
	)

	// DeadConfirmations counts Dead verdicts confirmed by the quorum policy.
	DeadConfirmations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossamer",
			Name:      "dead_confirmations_total",
			Help:      "Dead verdicts accepted as authoritative by the quorum policy.",
		},
	)
)

func init() {
	Registry.MustRegister(DroppedMessages, DeadConfirmations)
}

// MetricsHandler exposes the gossamer registry; the HTTP service mounts it
// at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
