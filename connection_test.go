package stoq

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stoq-transport/stoq/internal/adaptive"
)

func TestConnectionParametersStartAtStandardTier(t *testing.T) {
	server, client, clientConn, serverConn := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	if clientConn.Tier() != adaptive.TierStandard || serverConn.Tier() != adaptive.TierStandard {
		t.Fatalf("expected both newly registered connections to start at the Standard tier, got client=%v server=%v",
			clientConn.Tier(), serverConn.Tier())
	}
}

// TestConnectReusesPooledConnection covers ReturnToPool: a second
// Connect call to the same peer address returns the exact connection
// already pooled rather than dialing a new one.
func TestConnectReusesPooledConnection(t *testing.T) {
	server, client, clientConn, _ := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	id := clientConn.ID()
	client.ReturnToPool(clientConn)

	remote := clientConn.RemoteAddr().(*net.UDPAddr)
	again, err := client.Connect(context.Background(), remote.IP.String(), remote.Port)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if again.ID() != id {
		t.Fatalf("expected pooled connection to be reused, got a different id: %q want %q", again.ID(), id)
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	server, client, clientConn, _ := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	if err := clientConn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := clientConn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !clientConn.IsClosed() {
		t.Fatal("expected connection to report closed")
	}
}

func TestConnectionContextCancelledAfterClose(t *testing.T) {
	server, client, clientConn, _ := newLoopbackPair(t)
	defer func() { _ = server.Shutdown(context.Background()) }()
	defer func() { _ = client.Shutdown(context.Background()) }()

	ctx := clientConn.Context()
	_ = clientConn.Close()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected connection context to be cancelled after Close")
	}
}

func TestNegotiatedParametersZeroBeforeHandshake(t *testing.T) {
	var c Connection
	params := c.NegotiatedParameters()
	if params.MaxShardSize != 0 || params.FalconEnabled {
		t.Fatalf("expected zero-value parameters before any handshake, got %+v", params)
	}
}
