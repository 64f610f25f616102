package metrics

import "sync/atomic"

// Counters holds lock-free atomic counters for every STOQ transport
// event worth tracking. A single Counters instance is shared across a
// transport's connections.
type Counters struct {
	bytesSent             atomic.Uint64
	bytesReceived         atomic.Uint64
	connectionsOpened     atomic.Uint64
	connectionsClosed     atomic.Uint64
	connectionFailures    atomic.Uint64
	packetsTokenized      atomic.Uint64
	tokenValidationFailed atomic.Uint64
	packetsSharded        atomic.Uint64
	shardsReassembled     atomic.Uint64
	shardingErrors        atomic.Uint64
	reassemblyErrors      atomic.Uint64
	hopRoutes             atomic.Uint64
	packetDrops           atomic.Uint64
	adaptations           atomic.Uint64
}

// New returns a fresh, zeroed Counters instance.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) RecordBytesSent(n uint64)     { c.bytesSent.Add(n) }
func (c *Counters) RecordBytesReceived(n uint64) { c.bytesReceived.Add(n) }

func (c *Counters) RecordConnectionOpened()  { c.connectionsOpened.Add(1) }
func (c *Counters) RecordConnectionClosed()  { c.connectionsClosed.Add(1) }
func (c *Counters) RecordConnectionFailure() { c.connectionFailures.Add(1) }

func (c *Counters) RecordPacketTokenized()      { c.packetsTokenized.Add(1) }
func (c *Counters) RecordTokenValidationFailed() { c.tokenValidationFailed.Add(1) }

func (c *Counters) RecordPacketSharded(shards uint32) { c.packetsSharded.Add(uint64(shards)) }
func (c *Counters) RecordShardsReassembled()          { c.shardsReassembled.Add(1) }
func (c *Counters) RecordShardingError()              { c.shardingErrors.Add(1) }
func (c *Counters) RecordReassemblyError()            { c.reassemblyErrors.Add(1) }

func (c *Counters) RecordHopRoute()   { c.hopRoutes.Add(1) }
func (c *Counters) RecordPacketDrop() { c.packetDrops.Add(1) }
func (c *Counters) RecordAdaptation() { c.adaptations.Add(1) }

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	BytesSent             uint64
	BytesReceived         uint64
	ConnectionsOpened     uint64
	ConnectionsClosed     uint64
	ConnectionFailures    uint64
	PacketsTokenized      uint64
	TokenValidationFailed uint64
	PacketsSharded        uint64
	ShardsReassembled     uint64
	ShardingErrors        uint64
	ReassemblyErrors      uint64
	HopRoutes             uint64
	PacketDrops           uint64
	Adaptations           uint64
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:             c.bytesSent.Load(),
		BytesReceived:         c.bytesReceived.Load(),
		ConnectionsOpened:     c.connectionsOpened.Load(),
		ConnectionsClosed:     c.connectionsClosed.Load(),
		ConnectionFailures:    c.connectionFailures.Load(),
		PacketsTokenized:      c.packetsTokenized.Load(),
		TokenValidationFailed: c.tokenValidationFailed.Load(),
		PacketsSharded:        c.packetsSharded.Load(),
		ShardsReassembled:     c.shardsReassembled.Load(),
		ShardingErrors:        c.shardingErrors.Load(),
		ReassemblyErrors:      c.reassemblyErrors.Load(),
		HopRoutes:             c.hopRoutes.Load(),
		PacketDrops:           c.packetDrops.Load(),
		Adaptations:           c.adaptations.Load(),
	}
}

// ActiveConnections returns the number of connections currently open.
func (s Snapshot) ActiveConnections() uint64 {
	if s.ConnectionsClosed > s.ConnectionsOpened {
		return 0
	}
	return s.ConnectionsOpened - s.ConnectionsClosed
}
