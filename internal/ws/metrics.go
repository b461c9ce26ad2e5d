// Prometheus collectors for the relay core. Registered once at package init,
// mirroring how the HTTP middleware registers its collectors.
package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	// connsActive gauges the number of live WebSocket connections across
	// all rooms.
	connsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Current number of live WebSocket connections.",
		},
	)

	// broadcastsTotal counts broadcast invocations (one per accepted
	// message, regardless of room size).
	broadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_messages_broadcast_total",
			Help: "Total number of messages fanned out to rooms.",
		},
	)

	// deliveryFailures counts per-target delivery failures during fan-out
	// (each one also prunes the failing connection).
	deliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_broadcast_failures_total",
			Help: "Total number of failed per-connection deliveries during broadcast.",
		},
	)
)

func init() {
	prometheus.MustRegister(connsActive, broadcastsTotal, deliveryFailures)
}
