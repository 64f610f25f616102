package extensions

import (
	"crypto/rand"
	"encoding/binary"
	"sort"

	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
	"github.com/stoq-transport/stoq/internal/protocol"
)

// ShardPacket splits data into fragments no larger than maxShardSize,
// each carrying the hash of the complete original packet so shards can
// be validated on reassembly.
func ShardPacket(alg protocol.TokenAlgorithm, data []byte, maxShardSize int) ([]protocol.PacketShard, error) {
	if maxShardSize <= 0 {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindShardingError, "maximum shard size must be greater than 0", nil)
	}

	packetHash := sum256(alg, data)
	totalShards := (len(data) + maxShardSize - 1) / maxShardSize
	if totalShards == 0 {
		totalShards = 1
	}

	shardID, err := randomUint32()
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindShardingError, "failed to generate shard id", err)
	}

	shards := make([]protocol.PacketShard, 0, totalShards)
	for i := 0; i*maxShardSize < len(data) || (i == 0 && len(data) == 0); i++ {
		start := i * maxShardSize
		end := start + maxShardSize
		if end > len(data) {
			end = len(data)
		}

		chunk := make([]byte, end-start)
		copy(chunk, data[start:end])

		shards = append(shards, protocol.PacketShard{
			ShardID:     shardID,
			TotalShards: uint32(totalShards),
			Sequence:    uint32(i),
			Data:        chunk,
			PacketHash:  packetHash,
		})

		if end >= len(data) {
			break
		}
	}

	return shards, nil
}

// ReassembleShards validates and concatenates shards back into the
// original packet data. All shards must share the same shard id,
// packet hash, and total count, and every sequence number from 0 to
// total-1 must be present exactly once.
func ReassembleShards(alg protocol.TokenAlgorithm, shards []protocol.PacketShard) ([]byte, error) {
	if len(shards) == 0 {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "no shards to reassemble", nil)
	}

	shardID := shards[0].ShardID
	packetHash := shards[0].PacketHash
	totalShards := shards[0].TotalShards

	for _, s := range shards {
		if s.ShardID != shardID {
			return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "mismatched shard ids", nil)
		}
		if s.PacketHash != packetHash {
			return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "mismatched packet hashes", nil)
		}
		if s.TotalShards != totalShards {
			return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "mismatched total shard counts", nil)
		}
	}

	sorted := append([]protocol.PacketShard(nil), shards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	if uint32(len(sorted)) != totalShards {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "missing shards", nil)
	}
	for i, s := range sorted {
		if s.Sequence != uint32(i) {
			return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "missing shard sequence", nil)
		}
	}

	var total int
	for _, s := range sorted {
		total += len(s.Data)
	}
	result := make([]byte, 0, total)
	for _, s := range sorted {
		result = append(result, s.Data...)
	}

	if sum256(alg, result) != packetHash {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "reassembled data hash mismatch", nil)
	}

	return result, nil
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
