package extensions

import (
	"net"
	"testing"

	"github.com/stoq-transport/stoq/internal/protocol"
)

func TestPacketSerializeNonEmpty(t *testing.T) {
	p := NewPacket([]byte("test data"))
	token := NewToken(protocol.TokenAlgorithmSha256, p.Data, 1)
	p.Token = &token
	p.Metadata["key1"] = "value1"

	encoded, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatal("expected non-empty serialization")
	}
}

func TestAddHopInfo(t *testing.T) {
	svc := NewService(protocol.TokenAlgorithmSha256, nil, false)
	p := NewPacket([]byte("test"))

	svc.AddHopInfo(p, protocol.HopInfo{
		Address:   net.IPv6loopback,
		Port:      9292,
		Timestamp: 12345,
		Metadata:  map[string]string{},
	})

	if len(p.Hops) != 1 {
		t.Fatalf("expected 1 hop, got %d", len(p.Hops))
	}
}

func TestPacketSerializeWithHopsAndSeedInfo(t *testing.T) {
	p := NewPacket([]byte("payload"))
	p.Hops = []protocol.HopInfo{{
		Address:   net.IPv6loopback,
		Port:      4433,
		Timestamp: 1,
		Metadata:  map[string]string{"relay": "1"},
	}}
	p.SeedInfo = &protocol.SeedInfo{
		Nodes:             []protocol.SeedNode{{Address: net.IPv6loopback, Port: 4433, Reliability: 100}},
		ReplicationFactor: 1,
		Priority:          protocol.SeedPriorityNormal,
	}

	encoded, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatal("expected non-empty serialization")
	}
}
