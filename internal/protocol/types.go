package protocol

import "net"

// PacketToken identifies a packet by an unkeyed hash of its contents,
// a monotonic sequence number, and a creation timestamp. Validation
// compares only the hash; the timestamp is not checked.
type PacketToken struct {
	Hash      [32]byte
	Sequence  uint64
	Timestamp uint64
}

// PacketShard is one fragment of an application packet that exceeded the
// negotiated max shard size.
type PacketShard struct {
	ShardID     uint32
	TotalShards uint32
	Sequence    uint32
	Data        []byte
	PacketHash  [32]byte
}

// HopInfo records a relay point a packet traversed, for diagnostics and
// routing extensions built on top of STOQ.
type HopInfo struct {
	Address   net.IP // always a 16-byte IPv6 address
	Port      uint16
	Timestamp uint64
	Metadata  map[string]string
}

// SeedPriority ranks how aggressively a seed node should be used for
// replication.
type SeedPriority uint8

const (
	SeedPriorityLow SeedPriority = iota
	SeedPriorityNormal
	SeedPriorityHigh
	SeedPriorityCritical
)

// SeedNode is a single candidate node advertised for shard replication.
type SeedNode struct {
	Address     net.IP // always a 16-byte IPv6 address
	Port        uint16
	Reliability uint8 // 0-255, higher is more reliable
}

// SeedInfo describes the set of seed nodes and replication policy for a
// packet's shards.
type SeedInfo struct {
	Nodes             []SeedNode
	ReplicationFactor uint32
	Priority          SeedPriority
}
