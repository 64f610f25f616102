package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Frame is a decoded STOQ custom QUIC frame. Exactly one of the typed
// fields is populated, selected by Type.
type Frame struct {
	Type uint64

	Token     *TokenFrame
	Shard     *ShardFrame
	Hop       *HopFrame
	Seed      *SeedFrame
	FalconSig *FalconSigFrame
	FalconKey *FalconKeyFrame

	// Unknown holds the raw payload for frame types not recognized by
	// this build, preserved for forward compatibility.
	Unknown []byte
}

// TokenFrame carries a packet token alongside the stream it authenticates.
type TokenFrame struct {
	Token    PacketToken
	StreamID *uint64
}

// ShardFrame carries one fragment of a sharded packet.
type ShardFrame struct {
	Shard    PacketShard
	StreamID *uint64
}

// HopFrame records a relay hop and the hop-count budget remaining.
type HopFrame struct {
	Hop      HopInfo
	HopCount uint8
	MaxHops  uint8
}

// SeedFrame advertises seed node distribution info for a packet.
type SeedFrame struct {
	SeedInfo SeedInfo
	PacketID [32]byte
}

// FalconSigFrame carries a post-quantum signature over one or more prior
// frame types.
type FalconSigFrame struct {
	SignatureData []byte
	KeyID         string
	SignedFrames  []uint64
}

// FalconKeyFrame carries a post-quantum public key used to verify
// FalconSigFrame signatures. Variant is 0 for Falcon512, 1 for Falcon1024.
type FalconKeyFrame struct {
	KeyData []byte
	KeyID   string
	Variant uint8
}

// Encode serializes the frame to its wire representation: a varint frame
// type followed by frame-specific data.
func (f *Frame) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeVarInt(&buf, f.Type); err != nil {
		return nil, err
	}

	switch f.Type {
	case FrameTypeToken:
		if f.Token == nil {
			return nil, fmt.Errorf("protocol: token frame type set but Token is nil")
		}
		encodeTokenFrame(&buf, f.Token)
	case FrameTypeShard:
		if f.Shard == nil {
			return nil, fmt.Errorf("protocol: shard frame type set but Shard is nil")
		}
		encodeShardFrame(&buf, f.Shard)
	case FrameTypeHop:
		if f.Hop == nil {
			return nil, fmt.Errorf("protocol: hop frame type set but Hop is nil")
		}
		if err := encodeHopFrame(&buf, f.Hop); err != nil {
			return nil, err
		}
	case FrameTypeSeed:
		if f.Seed == nil {
			return nil, fmt.Errorf("protocol: seed frame type set but Seed is nil")
		}
		if err := encodeSeedFrame(&buf, f.Seed); err != nil {
			return nil, err
		}
	case FrameTypeFalconSignature:
		if f.FalconSig == nil {
			return nil, fmt.Errorf("protocol: falcon signature frame type set but FalconSig is nil")
		}
		if err := encodeFalconSigFrame(&buf, f.FalconSig); err != nil {
			return nil, err
		}
	case FrameTypeFalconKey:
		if f.FalconKey == nil {
			return nil, fmt.Errorf("protocol: falcon key frame type set but FalconKey is nil")
		}
		encodeFalconKeyFrame(&buf, f.FalconKey)
	default:
		buf.Write(f.Unknown)
	}

	return buf.Bytes(), nil
}

// DecodeFrame parses a single frame from data. It never returns a
// wrapped "unknown frame" error; frame types this build does not
// recognize are returned as a Frame with Unknown populated.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("protocol: empty frame data")
	}

	frameType, n, err := DecodeVarInt(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode frame type: %w", err)
	}
	rest := data[n:]

	f := &Frame{Type: frameType}
	switch frameType {
	case FrameTypeToken:
		tf, err := decodeTokenFrame(rest)
		if err != nil {
			return nil, err
		}
		f.Token = tf
	case FrameTypeShard:
		sf, err := decodeShardFrame(rest)
		if err != nil {
			return nil, err
		}
		f.Shard = sf
	case FrameTypeHop:
		hf, err := decodeHopFrame(rest)
		if err != nil {
			return nil, err
		}
		f.Hop = hf
	case FrameTypeSeed:
		sf, err := decodeSeedFrame(rest)
		if err != nil {
			return nil, err
		}
		f.Seed = sf
	case FrameTypeFalconSignature:
		ff, err := decodeFalconSigFrame(rest)
		if err != nil {
			return nil, err
		}
		f.FalconSig = ff
	case FrameTypeFalconKey:
		fk, err := decodeFalconKeyFrame(rest)
		if err != nil {
			return nil, err
		}
		f.FalconKey = fk
	default:
		f.Unknown = append([]byte(nil), rest...)
	}

	return f, nil
}

func encodeTokenFrame(buf *bytes.Buffer, f *TokenFrame) {
	buf.Write(f.Token.Hash[:])
	writeUint64(buf, f.Token.Sequence)
	writeUint64(buf, f.Token.Timestamp)

	if f.StreamID != nil {
		buf.WriteByte(1)
		_ = EncodeVarInt(buf, *f.StreamID)
	} else {
		buf.WriteByte(0)
	}
}

func decodeTokenFrame(data []byte) (*TokenFrame, error) {
	const fixed = 32 + 8 + 8 + 1
	if len(data) < fixed {
		return nil, fmt.Errorf("protocol: token frame too short")
	}

	var hash [32]byte
	copy(hash[:], data[:32])
	sequence := binary.BigEndian.Uint64(data[32:40])
	timestamp := binary.BigEndian.Uint64(data[40:48])
	hasStream := data[48]
	rest := data[49:]

	tf := &TokenFrame{Token: PacketToken{Hash: hash, Sequence: sequence, Timestamp: timestamp}}
	if hasStream == 1 {
		id, _, err := DecodeVarInt(rest)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode token stream id: %w", err)
		}
		tf.StreamID = &id
	}
	return tf, nil
}

func encodeShardFrame(buf *bytes.Buffer, f *ShardFrame) {
	writeUint32(buf, f.Shard.ShardID)
	writeUint32(buf, f.Shard.TotalShards)
	writeUint32(buf, f.Shard.Sequence)
	buf.Write(f.Shard.PacketHash[:])
	writeUint32(buf, uint32(len(f.Shard.Data)))
	buf.Write(f.Shard.Data)

	if f.StreamID != nil {
		buf.WriteByte(1)
		_ = EncodeVarInt(buf, *f.StreamID)
	} else {
		buf.WriteByte(0)
	}
}

func decodeShardFrame(data []byte) (*ShardFrame, error) {
	const head = 4 + 4 + 4 + 32 + 4
	if len(data) < head {
		return nil, fmt.Errorf("protocol: shard frame too short")
	}

	shardID := binary.BigEndian.Uint32(data[0:4])
	totalShards := binary.BigEndian.Uint32(data[4:8])
	sequence := binary.BigEndian.Uint32(data[8:12])
	var packetHash [32]byte
	copy(packetHash[:], data[12:44])
	dataLen := binary.BigEndian.Uint32(data[44:48])

	rest := data[48:]
	if uint32(len(rest)) < dataLen+1 {
		return nil, fmt.Errorf("protocol: shard data truncated")
	}
	shardData := append([]byte(nil), rest[:dataLen]...)
	rest = rest[dataLen:]

	hasStream := rest[0]
	rest = rest[1:]

	sf := &ShardFrame{Shard: PacketShard{
		ShardID:     shardID,
		TotalShards: totalShards,
		Sequence:    sequence,
		Data:        shardData,
		PacketHash:  packetHash,
	}}
	if hasStream == 1 {
		id, _, err := DecodeVarInt(rest)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode shard stream id: %w", err)
		}
		sf.StreamID = &id
	}
	return sf, nil
}

func encodeHopFrame(buf *bytes.Buffer, f *HopFrame) error {
	addr := f.Hop.Address.To16()
	if addr == nil {
		return fmt.Errorf("protocol: hop address is not a valid IPv6 address")
	}
	buf.Write(addr)
	writeUint16(buf, f.Hop.Port)
	writeUint64(buf, f.Hop.Timestamp)

	writeUint32(buf, uint32(len(f.Hop.Metadata)))
	for k, v := range f.Hop.Metadata {
		writeUint32(buf, uint32(len(k)))
		buf.WriteString(k)
		writeUint32(buf, uint32(len(v)))
		buf.WriteString(v)
	}

	buf.WriteByte(f.HopCount)
	buf.WriteByte(f.MaxHops)
	return nil
}

func decodeHopFrame(data []byte) (*HopFrame, error) {
	const head = 16 + 2 + 8 + 4
	if len(data) < head {
		return nil, fmt.Errorf("protocol: hop frame too short")
	}

	addr := make(net.IP, 16)
	copy(addr, data[0:16])
	port := binary.BigEndian.Uint16(data[16:18])
	timestamp := binary.BigEndian.Uint64(data[18:26])
	metadataLen := binary.BigEndian.Uint32(data[26:30])
	rest := data[30:]

	metadata := make(map[string]string, metadataLen)
	for i := uint32(0); i < metadataLen; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("protocol: hop metadata truncated")
		}
		keyLen := binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
		if uint32(len(rest)) < keyLen {
			return nil, fmt.Errorf("protocol: hop metadata key truncated")
		}
		key := string(rest[:keyLen])
		rest = rest[keyLen:]

		if len(rest) < 4 {
			return nil, fmt.Errorf("protocol: hop metadata truncated")
		}
		valLen := binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
		if uint32(len(rest)) < valLen {
			return nil, fmt.Errorf("protocol: hop metadata value truncated")
		}
		value := string(rest[:valLen])
		rest = rest[valLen:]

		metadata[key] = value
	}

	if len(rest) < 2 {
		return nil, fmt.Errorf("protocol: hop counts missing")
	}
	hopCount := rest[0]
	maxHops := rest[1]

	return &HopFrame{
		Hop: HopInfo{
			Address:   addr,
			Port:      port,
			Timestamp: timestamp,
			Metadata:  metadata,
		},
		HopCount: hopCount,
		MaxHops:  maxHops,
	}, nil
}

func encodeSeedFrame(buf *bytes.Buffer, f *SeedFrame) error {
	buf.Write(f.PacketID[:])

	writeUint32(buf, uint32(len(f.SeedInfo.Nodes)))
	for _, node := range f.SeedInfo.Nodes {
		addr := node.Address.To16()
		if addr == nil {
			return fmt.Errorf("protocol: seed node address is not a valid IPv6 address")
		}
		buf.Write(addr)
		writeUint16(buf, node.Port)
		buf.WriteByte(node.Reliability)
	}

	writeUint32(buf, f.SeedInfo.ReplicationFactor)
	buf.WriteByte(byte(f.SeedInfo.Priority))
	return nil
}

func decodeSeedFrame(data []byte) (*SeedFrame, error) {
	const head = 32 + 4
	if len(data) < head {
		return nil, fmt.Errorf("protocol: seed frame too short")
	}

	var packetID [32]byte
	copy(packetID[:], data[0:32])
	nodesLen := binary.BigEndian.Uint32(data[32:36])
	rest := data[36:]

	nodes := make([]SeedNode, 0, nodesLen)
	for i := uint32(0); i < nodesLen; i++ {
		const nodeSize = 16 + 2 + 1
		if len(rest) < nodeSize {
			return nil, fmt.Errorf("protocol: seed node data truncated")
		}
		addr := make(net.IP, 16)
		copy(addr, rest[0:16])
		port := binary.BigEndian.Uint16(rest[16:18])
		reliability := rest[18]
		rest = rest[nodeSize:]

		nodes = append(nodes, SeedNode{Address: addr, Port: port, Reliability: reliability})
	}

	if len(rest) < 4+1 {
		return nil, fmt.Errorf("protocol: seed info truncated")
	}
	replicationFactor := binary.BigEndian.Uint32(rest[0:4])
	priorityByte := rest[4]
	priority := SeedPriorityNormal
	switch priorityByte {
	case 0:
		priority = SeedPriorityLow
	case 1:
		priority = SeedPriorityNormal
	case 2:
		priority = SeedPriorityHigh
	case 3:
		priority = SeedPriorityCritical
	}

	return &SeedFrame{
		SeedInfo: SeedInfo{
			Nodes:             nodes,
			ReplicationFactor: replicationFactor,
			Priority:          priority,
		},
		PacketID: packetID,
	}, nil
}

func encodeFalconSigFrame(buf *bytes.Buffer, f *FalconSigFrame) error {
	writeUint32(buf, uint32(len(f.KeyID)))
	buf.WriteString(f.KeyID)

	writeUint32(buf, uint32(len(f.SignatureData)))
	buf.Write(f.SignatureData)

	writeUint32(buf, uint32(len(f.SignedFrames)))
	for _, ft := range f.SignedFrames {
		if err := EncodeVarInt(buf, ft); err != nil {
			return err
		}
	}
	return nil
}

func decodeFalconSigFrame(data []byte) (*FalconSigFrame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("protocol: falcon signature frame too short")
	}
	keyIDLen := binary.BigEndian.Uint32(data[0:4])
	rest := data[4:]
	if uint32(len(rest)) < keyIDLen+4 {
		return nil, fmt.Errorf("protocol: key id truncated")
	}
	keyID := string(rest[:keyIDLen])
	rest = rest[keyIDLen:]

	sigLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < sigLen+4 {
		return nil, fmt.Errorf("protocol: signature data truncated")
	}
	sigData := append([]byte(nil), rest[:sigLen]...)
	rest = rest[sigLen:]

	framesLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]

	signedFrames := make([]uint64, 0, framesLen)
	for i := uint32(0); i < framesLen; i++ {
		ft, n, err := DecodeVarInt(rest)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode signed frame type: %w", err)
		}
		signedFrames = append(signedFrames, ft)
		rest = rest[n:]
	}

	return &FalconSigFrame{
		KeyID:         keyID,
		SignatureData: sigData,
		SignedFrames:  signedFrames,
	}, nil
}

func encodeFalconKeyFrame(buf *bytes.Buffer, f *FalconKeyFrame) {
	writeUint32(buf, uint32(len(f.KeyID)))
	buf.WriteString(f.KeyID)
	buf.WriteByte(f.Variant)
	writeUint32(buf, uint32(len(f.KeyData)))
	buf.Write(f.KeyData)
}

func decodeFalconKeyFrame(data []byte) (*FalconKeyFrame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("protocol: falcon key frame too short")
	}
	keyIDLen := binary.BigEndian.Uint32(data[0:4])
	rest := data[4:]
	if uint32(len(rest)) < keyIDLen+1+4 {
		return nil, fmt.Errorf("protocol: key id truncated")
	}
	keyID := string(rest[:keyIDLen])
	rest = rest[keyIDLen:]

	variant := rest[0]
	rest = rest[1:]

	keyLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < keyLen {
		return nil, fmt.Errorf("protocol: key data truncated")
	}
	keyData := append([]byte(nil), rest[:keyLen]...)

	return &FalconKeyFrame{
		KeyID:   keyID,
		Variant: variant,
		KeyData: keyData,
	}, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
