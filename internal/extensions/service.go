package extensions

import (
	"sync/atomic"

	"github.com/stoq-transport/stoq/internal/metrics"
	"github.com/stoq-transport/stoq/internal/protocol"
)

// Service is the default implementation of the STOQ protocol
// extensions: tokenization, sharding/reassembly, hop tracking, and seed
// info lookup, each recording outcomes to a shared Counters instance.
type Service struct {
	sequence       atomic.Uint64
	alg            protocol.TokenAlgorithm
	metrics        *metrics.Counters
	compressShards bool
}

// NewService returns an extensions service using alg for tokenization
// and hashing. metrics may be nil to disable instrumentation.
// compressShards applies zstd compression to a packet before it is
// sharded; ReassembleShards returns the still-compressed wire bytes, so
// callers must decompress once after reassembly completes (see
// DecompressShard).
func NewService(alg protocol.TokenAlgorithm, m *metrics.Counters, compressShards bool) *Service {
	return &Service{alg: alg, metrics: m, compressShards: compressShards}
}

// CompressionEnabled reports whether this service compresses packets
// before sharding, so callers know whether a reassembled packet still
// needs DecompressShard applied.
func (s *Service) CompressionEnabled() bool {
	return s.compressShards
}

// TokenizePacket generates the next sequential token for data.
func (s *Service) TokenizePacket(data []byte) protocol.PacketToken {
	seq := s.sequence.Add(1) - 1
	token := NewToken(s.alg, data, seq)
	if s.metrics != nil {
		s.metrics.RecordPacketTokenized()
	}
	return token
}

// ValidateToken checks token against data, recording a failure metric
// on mismatch.
func (s *Service) ValidateToken(data []byte, token protocol.PacketToken) bool {
	valid := ValidateToken(s.alg, data, token)
	if !valid && s.metrics != nil {
		s.metrics.RecordTokenValidationFailed()
	}
	return valid
}

// ShardPacket fragments data into shards no larger than maxShardSize,
// compressing it first if this service was configured to do so.
func (s *Service) ShardPacket(data []byte, maxShardSize int) ([]protocol.PacketShard, error) {
	if s.compressShards {
		compressed, err := CompressShard(data)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordShardingError()
			}
			return nil, err
		}
		data = compressed
	}

	shards, err := ShardPacket(s.alg, data, maxShardSize)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordShardingError()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordPacketSharded(uint32(len(shards)))
	}
	return shards, nil
}

// ReassembleShards rebuilds the original packet from shards.
func (s *Service) ReassembleShards(shards []protocol.PacketShard) ([]byte, error) {
	data, err := ReassembleShards(s.alg, shards)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordReassemblyError()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordShardsReassembled()
	}
	return data, nil
}

// AddHopInfo appends a hop record to the packet's routing chain.
func (s *Service) AddHopInfo(p *Packet, hop protocol.HopInfo) {
	p.Hops = append(p.Hops, hop)
	if s.metrics != nil {
		s.metrics.RecordHopRoute()
	}
}

// GetSeedInfo returns the packet's seed distribution info, if any.
func (s *Service) GetSeedInfo(p *Packet) *protocol.SeedInfo {
	return p.SeedInfo
}
