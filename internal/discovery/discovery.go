// Package discovery advertises and browses for STOQ seed nodes over
// mDNS, feeding discovered nodes into a connection's seed distribution
// info.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/stoq-transport/stoq/internal/protocol"
)

const serviceType = "_stoq._udp"

// Advertiser represents an active mDNS advertisement for a seed node.
type Advertiser struct {
	server *zeroconf.Server
}

// Node describes a discovered STOQ seed node.
type Node struct {
	Name        string
	Address     net.IP
	Port        int
	Reliability uint8
}

// Advertise publishes this node as a STOQ seed over mDNS. reliability
// is a 0-255 score advertised in the TXT record for peers deciding
// replication priority.
func Advertise(instance string, ip net.IP, port int, reliability uint8) (*Advertiser, error) {
	if ip == nil {
		return nil, fmt.Errorf("discovery: ip is required")
	}
	if ip.To4() != nil {
		return nil, fmt.Errorf("discovery: seed advertisement requires an IPv6 address, got %s", ip)
	}

	txt := []string{
		"reliability=" + strconv.Itoa(int(reliability)),
		"ip=" + ip.String(),
	}

	srv, err := zeroconf.Register(instance, serviceType, "local.", port, txt, nil)
	if err != nil {
		return nil, err
	}

	return &Advertiser{server: srv}, nil
}

// Close stops advertising this node.
func (a *Advertiser) Close() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Browse discovers STOQ seed nodes via mDNS for up to timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Node, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var results []Node

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if len(e.AddrIPv6) == 0 {
				continue
			}
			reliability := parseReliability(attr(e, "reliability"))
			results = append(results, Node{
				Name:        e.Instance,
				Address:     e.AddrIPv6[0],
				Port:        e.Port,
				Reliability: reliability,
			})
		}
	}()

	err = resolver.Browse(ctx, serviceType, "local.", entries)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	<-ctx.Done()
	<-done

	return results, nil
}

// SeedInfo builds a protocol.SeedInfo from discovered nodes, capping
// replication to the number of nodes found.
func SeedInfo(nodes []Node, priority protocol.SeedPriority) protocol.SeedInfo {
	seedNodes := make([]protocol.SeedNode, 0, len(nodes))
	for _, n := range nodes {
		seedNodes = append(seedNodes, protocol.SeedNode{
			Address:     n.Address,
			Port:        uint16(n.Port),
			Reliability: n.Reliability,
		})
	}
	return protocol.SeedInfo{
		Nodes:             seedNodes,
		ReplicationFactor: uint32(len(seedNodes)),
		Priority:          priority,
	}
}

func parseReliability(s string) uint8 {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 255 {
		return 0
	}
	return uint8(v)
}

func attr(e *zeroconf.ServiceEntry, key string) string {
	prefix := key + "="
	for _, t := range e.Text {
		if len(t) >= len(prefix) && t[:len(prefix)] == prefix {
			return t[len(prefix):]
		}
	}
	return ""
}
