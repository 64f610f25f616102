package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-mirrored gauges and counters. These track the same events
// as Counters but are exposed for scraping; Publish copies a Snapshot
// into them rather than being updated directly on the hot path.
var (
	bytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_bytes_sent_total",
		Help: "Total bytes sent across all connections",
	})
	bytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_bytes_received_total",
		Help: "Total bytes received across all connections",
	})
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stoq_connections_active",
		Help: "Number of currently open connections",
	})
	connectionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_connection_failures_total",
		Help: "Total connection establishment failures",
	})
	packetsTokenizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_packets_tokenized_total",
		Help: "Total packets that received a validation token",
	})
	tokenValidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_token_validation_failures_total",
		Help: "Total packet token validation failures",
	})
	shardsReassembledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_shards_reassembled_total",
		Help: "Total packets successfully reassembled from shards",
	})
	shardingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_sharding_errors_total",
		Help: "Total sharding and reassembly errors",
	})
	hopRoutesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_hop_routes_total",
		Help: "Total hop records added to packets",
	})
	packetDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_packet_drops_total",
		Help: "Total packets dropped",
	})
	adaptationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoq_adaptations_total",
		Help: "Total adaptive tier transitions applied",
	})

	lastSnapshot Snapshot
)

// Publish copies a Snapshot's deltas into the Prometheus counters and
// sets the connections-active gauge. Call this periodically (e.g. once
// per adaptation tick) rather than on every counter increment.
func Publish(snap Snapshot) {
	bytesSentTotal.Add(float64(snap.BytesSent - lastSnapshot.BytesSent))
	bytesReceivedTotal.Add(float64(snap.BytesReceived - lastSnapshot.BytesReceived))
	connectionFailuresTotal.Add(float64(snap.ConnectionFailures - lastSnapshot.ConnectionFailures))
	packetsTokenizedTotal.Add(float64(snap.PacketsTokenized - lastSnapshot.PacketsTokenized))
	tokenValidationFailuresTotal.Add(float64(snap.TokenValidationFailed - lastSnapshot.TokenValidationFailed))
	shardsReassembledTotal.Add(float64(snap.ShardsReassembled - lastSnapshot.ShardsReassembled))
	shardingErrorsTotal.Add(float64((snap.ShardingErrors + snap.ReassemblyErrors) - (lastSnapshot.ShardingErrors + lastSnapshot.ReassemblyErrors)))
	hopRoutesTotal.Add(float64(snap.HopRoutes - lastSnapshot.HopRoutes))
	packetDropsTotal.Add(float64(snap.PacketDrops - lastSnapshot.PacketDrops))
	adaptationsTotal.Add(float64(snap.Adaptations - lastSnapshot.Adaptations))

	connectionsActive.Set(float64(snap.ActiveConnections()))

	lastSnapshot = snap
}
