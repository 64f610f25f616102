package protocol

import "time"

// Frame type identifiers for STOQ custom QUIC frames. These live in the
// private-use frame type range so they never collide with frame types
// defined by the base QUIC spec or future IETF extensions.
const (
	FrameTypeToken           uint64 = 0xfe000001
	FrameTypeShard           uint64 = 0xfe000002
	FrameTypeHop             uint64 = 0xfe000003
	FrameTypeSeed            uint64 = 0xfe000004
	FrameTypeFalconSignature uint64 = 0xfe000005
	FrameTypeFalconKey       uint64 = 0xfe000006
)

// Transport parameter identifiers negotiated during the QUIC handshake.
// 0xfe00-0xfeff is reserved for STOQ, with the first five ids assigned
// to well-known parameters and the remainder available for custom use.
const (
	ParamExtensionsEnabled uint64 = 0xfe00
	ParamFalconEnabled     uint64 = 0xfe01
	ParamFalconPublicKey   uint64 = 0xfe02
	ParamMaxShardSize      uint64 = 0xfe03
	ParamTokenAlgorithm    uint64 = 0xfe04

	CustomParamRangeStart uint64 = 0xfe00
	CustomParamRangeEnd   uint64 = 0xfeff
)

// Buffer sizes used when sizing shard and reassembly buffers. Shard sizes
// are bounded by the negotiated max_shard_size parameter, so these are
// fallbacks for when a connection has not yet completed negotiation.
const (
	BufferSizeSmall     = 8 * 1024
	BufferSizeMedium    = 64 * 1024
	BufferSizeLarge     = 1024 * 1024
	BufferSizeVeryLarge = 4 * 1024 * 1024

	DefaultBufferSize = BufferSizeMedium
)

// Shard size thresholds for buffer selection.
const (
	SmallShardThreshold  = 2 * 1024
	MediumShardThreshold = 16 * 1024
	LargeShardThreshold  = 256 * 1024
)

// DefaultMaxShardSize is the MTU-safe default before negotiation occurs.
const DefaultMaxShardSize = 1400

// Timeouts governing connection and stream lifecycle.
const (
	ReadTimeout  = 30 * time.Second
	WriteTimeout = 30 * time.Second
	IdleTimeout  = 5 * time.Minute
)

// GetOptimalBufferSize returns the best buffer size for a shard of the
// given size.
func GetOptimalBufferSize(shardSize int) int {
	switch {
	case shardSize < SmallShardThreshold:
		return BufferSizeSmall
	case shardSize < MediumShardThreshold:
		return BufferSizeMedium
	case shardSize < LargeShardThreshold:
		return BufferSizeLarge
	default:
		return BufferSizeVeryLarge
	}
}
