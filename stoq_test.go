package stoq

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stoq-transport/stoq/internal/adaptive"
	"github.com/stoq-transport/stoq/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BindAddress = "::1"
	cfg.Port = 0
	cfg.MaxIdleTimeout = 5 * time.Second
	return cfg
}

// newLoopbackPair starts a server transport and a client transport
// connected to it, returning both and a cleanup func.
func newLoopbackPair(t *testing.T) (server *Transport, client *Transport, conn *Connection, peer *Connection) {
	t.Helper()
	return newLoopbackPairWithConfigs(t, testConfig(), testConfig())
}

// newLoopbackPairWithConfigs is newLoopbackPair with caller-supplied
// configs, used by tests that need to vary a setting (e.g. a pairing
// code) between the two sides.
func newLoopbackPairWithConfigs(t *testing.T, serverCfg, clientCfg *config.Config) (server *Transport, client *Transport, conn *Connection, peer *Connection) {
	t.Helper()

	server, err := New(serverCfg)
	if err != nil {
		t.Fatalf("new server transport: %v", err)
	}

	client, err = New(clientCfg)
	if err != nil {
		_ = server.Shutdown(context.Background())
		t.Fatalf("new client transport: %v", err)
	}

	addr := server.LocalAddr().(*net.UDPAddr)

	type acceptResult struct {
		conn *Connection
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := server.Accept(ctx)
		acceptCh <- acceptResult{c, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, err := client.Connect(ctx, addr.IP.String(), addr.Port)
	if err != nil {
		_ = client.Shutdown(context.Background())
		_ = server.Shutdown(context.Background())
		t.Fatalf("connect: %v", err)
	}

	res := <-acceptCh
	if res.err != nil {
		_ = client.Shutdown(context.Background())
		_ = server.Shutdown(context.Background())
		t.Fatalf("accept: %v", res.err)
	}

	return server, client, clientConn, res.conn
}

// TestConnectAcceptHandshake covers S1: a client connects to a server
// over IPv6 and both sides agree on negotiated parameters without
// either side crashing or blocking past the handshake exchange.
func TestConnectAcceptHandshake(t *testing.T) {
	server, client, clientConn, serverConn := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	if clientConn.IsClosed() || serverConn.IsClosed() {
		t.Fatal("expected both connections to be open after handshake")
	}

	clientParams := clientConn.NegotiatedParameters()
	serverParams := serverConn.NegotiatedParameters()
	if clientParams.MaxShardSize != serverParams.MaxShardSize {
		t.Errorf("expected both sides to agree on max shard size, got client=%d server=%d",
			clientParams.MaxShardSize, serverParams.MaxShardSize)
	}
}

// TestSendReceiveRoundTrip covers S2: a small payload sent from the
// client arrives intact at the server.
func TestSendReceiveRoundTrip(t *testing.T) {
	server, client, clientConn, serverConn := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	payload := []byte("hello over stoq")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Send(ctx, clientConn, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()
	got, err := server.Receive(recvCtx, serverConn)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

// TestSendReceiveShardedPayload covers S3: a payload larger than the
// negotiated datagram size is transparently sharded and reassembled.
func TestSendReceiveShardedPayload(t *testing.T) {
	server, client, clientConn, serverConn := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	payload := bytes.Repeat([]byte{0xAB}, 30000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Send(ctx, clientConn, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()
	got, err := server.Receive(recvCtx, serverConn)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

// TestUpdateLiveConfigAppliesWithoutReconnect covers S7: pushing a new
// parameter set to a live connection takes effect immediately, with no
// reconnect and no change to the connection's identity.
func TestUpdateLiveConfigAppliesWithoutReconnect(t *testing.T) {
	server, client, clientConn, _ := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	before := clientConn.ID()
	performanceParams := adaptive.ConnectionParameters{
		StreamWindow:    16 * 1024 * 1024,
		MaxDatagramSize: 9000,
		MaxStreams:      200,
	}

	client.UpdateLiveConfig(performanceParams)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if clientConn.Parameters().StreamWindow == performanceParams.StreamWindow {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if clientConn.Parameters().StreamWindow != performanceParams.StreamWindow {
		t.Fatalf("expected live config to apply within 2s, stream window = %d",
			clientConn.Parameters().StreamWindow)
	}
	if clientConn.ID() != before || clientConn.IsClosed() {
		t.Fatal("expected live config to apply without reconnecting")
	}
}

// TestConnectRejectsIPv4 covers the invariant that STOQ refuses any
// non-IPv6 endpoint before ever touching the network.
func TestConnectRejectsIPv4(t *testing.T) {
	transport, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = transport.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := transport.Connect(ctx, "127.0.0.1", 4433); err == nil {
		t.Fatal("expected connect to an IPv4 address to fail")
	}
}

// TestNewRejectsIPv4BindAddress covers the same invariant at
// construction time.
func TestNewRejectsIPv4BindAddress(t *testing.T) {
	cfg := testConfig()
	cfg.BindAddress = "127.0.0.1"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected New to reject an IPv4 bind address")
	}
}

// TestSendOnClosedConnection covers the invariant that a closed
// connection refuses further sends rather than panicking or silently
// dropping data.
func TestSendOnClosedConnection(t *testing.T) {
	server, client, clientConn, serverConn := newLoopbackPair(t)
	defer func() { _ = server.Shutdown(context.Background()) }()

	_ = clientConn.Close()
	_ = serverConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Send(ctx, clientConn, []byte("x")); err == nil {
		t.Fatal("expected send on a closed connection to fail")
	}
	_ = client.Shutdown(context.Background())
}

// TestEnableMultiplexingRoundRobin covers S6: sends over a multiplexed
// group land on distinct underlying connections in round-robin order.
func TestEnableMultiplexingRoundRobin(t *testing.T) {
	server, err := New(testConfig())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer func() { _ = server.Shutdown(context.Background()) }()

	client, err := New(testConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer func() { _ = client.Shutdown(context.Background()) }()

	addr := server.LocalAddr().(*net.UDPAddr)

	const n = 3
	acceptedCh := make(chan int, n)
	go func() {
		for i := 0; i < n; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := server.Accept(ctx); err == nil {
				acceptedCh <- 1
			}
			cancel()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.EnableMultiplexing(ctx, addr.IP.String(), addr.Port, n); err != nil {
		t.Fatalf("enable multiplexing: %v", err)
	}

	accepted := 0
	deadline := time.After(5 * time.Second)
	for accepted < n {
		select {
		case <-acceptedCh:
			accepted++
		case <-deadline:
			t.Fatalf("expected %d accepted connections, got %d", n, accepted)
		}
	}

	for i := 0; i < n; i++ {
		sendCtx, sendCancel := context.WithTimeout(context.Background(), time.Second)
		err := client.SendMultiplexed(sendCtx, addr.IP.String(), addr.Port, []byte("ping"))
		sendCancel()
		if err != nil {
			t.Fatalf("send multiplexed %d: %v", i, err)
		}
	}
}

// TestEventsHandlerNilWithoutHub covers the invariant that a transport
// built with no event hub option exposes no handler, rather than a
// handler that panics when mounted.
func TestEventsHandlerNilWithoutHub(t *testing.T) {
	transport, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = transport.Shutdown(context.Background()) }()

	if transport.EventsHandler() != nil {
		t.Fatal("expected nil events handler without WithEventHub")
	}
}

// TestBufferPoolStatsDisabledWhenPoolingOff covers the invariant that
// disabling memory pooling in config makes BufferPoolStats report the
// zero value instead of panicking on a nil pool.
func TestBufferPoolStatsDisabledWhenPoolingOff(t *testing.T) {
	cfg := testConfig()
	cfg.EnableMemoryPool = false
	transport, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = transport.Shutdown(context.Background()) }()

	stats := transport.BufferPoolStats()
	if stats != (BufferPoolStats{}) {
		t.Errorf("expected zero-value stats with pooling disabled, got %+v", stats)
	}
}

// TestShutdownIsIdempotent covers the invariant that Shutdown can be
// called more than once without error.
func TestShutdownIsIdempotent(t *testing.T) {
	transport, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := transport.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := transport.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

// TestPairingBootstrapDerivesSharedKeyOnBothSides covers the optional
// PAKE pairing bootstrap (S8): when both sides are configured with the
// same pairing code, Connect/Accept derive matching connection-level
// shared keys during the handshake exchange.
func TestPairingBootstrapDerivesSharedKeyOnBothSides(t *testing.T) {
	serverCfg := testConfig()
	serverCfg.PairingCode = "123456"
	clientCfg := testConfig()
	clientCfg.PairingCode = "123456"

	server, client, clientConn, serverConn := newLoopbackPairWithConfigs(t, serverCfg, clientCfg)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	clientKey, ok := clientConn.PairingKey()
	if !ok {
		t.Fatal("expected client connection to have a pairing key")
	}
	serverKey, ok := serverConn.PairingKey()
	if !ok {
		t.Fatal("expected server connection to have a pairing key")
	}
	if !bytes.Equal(clientKey, serverKey) {
		t.Fatal("expected client and server to derive the same pairing key")
	}
}

// TestPairingSkippedWithoutCode covers the additive requirement that a
// transport configured without a pairing code never attempts one.
func TestPairingSkippedWithoutCode(t *testing.T) {
	server, client, clientConn, serverConn := newLoopbackPair(t)
	defer func() { _ = client.Shutdown(context.Background()) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	if _, ok := clientConn.PairingKey(); ok {
		t.Fatal("expected no pairing key without a configured pairing code")
	}
	if _, ok := serverConn.PairingKey(); ok {
		t.Fatal("expected no pairing key without a configured pairing code")
	}
}
