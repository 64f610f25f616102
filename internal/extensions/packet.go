package extensions

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/stoq-transport/stoq/internal/protocol"
)

// Packet is an application packet carrying the full set of STOQ
// protocol extension metadata: an optional validation token, the chain
// of hops it traversed, optional seed distribution info, and free-form
// metadata.
type Packet struct {
	Data     []byte
	Token    *protocol.PacketToken
	Hops     []protocol.HopInfo
	SeedInfo *protocol.SeedInfo
	Metadata map[string]string
}

// NewPacket wraps data in a Packet with no extensions applied yet.
func NewPacket(data []byte) *Packet {
	return &Packet{Data: data, Metadata: map[string]string{}}
}

// Serialize encodes the packet for transmission: length-prefixed data,
// an optional token, the hop chain, optional seed info, and metadata.
func (p *Packet) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	writeU32(&buf, uint32(len(p.Data)))

	if p.Token != nil {
		buf.WriteByte(1)
		writeU64(&buf, p.Token.Sequence)
		writeU64(&buf, p.Token.Timestamp)
		buf.Write(p.Token.Hash[:])
	} else {
		buf.WriteByte(0)
	}

	writeU32(&buf, uint32(len(p.Hops)))
	for _, hop := range p.Hops {
		addr := hop.Address.To16()
		if addr == nil {
			return nil, fmt.Errorf("extensions: hop address is not valid IPv6")
		}
		buf.Write(addr)
		writeU16(&buf, hop.Port)
		writeU64(&buf, hop.Timestamp)
		writeU32(&buf, uint32(len(hop.Metadata)))
		for k, v := range hop.Metadata {
			writeU32(&buf, uint32(len(k)))
			buf.WriteString(k)
			writeU32(&buf, uint32(len(v)))
			buf.WriteString(v)
		}
	}

	if p.SeedInfo != nil {
		buf.WriteByte(1)
		writeU32(&buf, uint32(len(p.SeedInfo.Nodes)))
		for _, n := range p.SeedInfo.Nodes {
			addr := n.Address.To16()
			if addr == nil {
				return nil, fmt.Errorf("extensions: seed node address is not valid IPv6")
			}
			buf.Write(addr)
			writeU16(&buf, n.Port)
			buf.WriteByte(n.Reliability)
		}
		writeU32(&buf, p.SeedInfo.ReplicationFactor)
		buf.WriteByte(byte(p.SeedInfo.Priority))
	} else {
		buf.WriteByte(0)
	}

	writeU32(&buf, uint32(len(p.Metadata)))
	for k, v := range p.Metadata {
		writeU32(&buf, uint32(len(k)))
		buf.WriteString(k)
		writeU32(&buf, uint32(len(v)))
		buf.WriteString(v)
	}

	buf.Write(p.Data)

	return buf.Bytes(), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
