package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stoq-transport/stoq/internal/protocol"
)

func TestAdvertiseRejectsIPv4(t *testing.T) {
	_, err := Advertise("stoq-test", net.ParseIP("127.0.0.1"), 4433, 200)
	if err == nil {
		t.Fatal("expected error advertising with an IPv4 address")
	}
}

func TestAdvertiseAndBrowse(t *testing.T) {
	ip := net.ParseIP("::1")
	port := 54322

	adv, err := Advertise("stoq-test-node", ip, port, 220)
	if err != nil {
		t.Fatalf("advertise failed: %v", err)
	}
	defer adv.Close()

	time.Sleep(200 * time.Millisecond)

	ctx := context.Background()
	nodes, err := Browse(ctx, 1*time.Second)
	if err != nil {
		t.Fatalf("browse failed: %v", err)
	}

	found := false
	for _, n := range nodes {
		if n.Port == port && n.Reliability == 220 {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected to find advertised seed node, got %+v", nodes)
	}
}

func TestSeedInfoFromNodes(t *testing.T) {
	nodes := []Node{
		{Name: "a", Address: net.ParseIP("2001:db8::1"), Port: 4433, Reliability: 200},
		{Name: "b", Address: net.ParseIP("2001:db8::2"), Port: 4433, Reliability: 150},
	}

	info := SeedInfo(nodes, protocol.SeedPriorityHigh)
	if len(info.Nodes) != 2 {
		t.Fatalf("expected 2 seed nodes, got %d", len(info.Nodes))
	}
	if info.ReplicationFactor != 2 {
		t.Errorf("expected replication factor 2, got %d", info.ReplicationFactor)
	}
	if info.Priority != protocol.SeedPriorityHigh {
		t.Errorf("expected high priority, got %v", info.Priority)
	}
}
