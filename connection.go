package stoq

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/stoq-transport/stoq/internal/adaptive"
	"github.com/stoq-transport/stoq/internal/protocol"
)

// Connection wraps a single QUIC connection, pairing it with the
// per-connection adaptation controller that tracks and retunes its
// live network parameters. A Connection does not hold a back-pointer
// to the Transport that owns it: callers needing transport-level
// capabilities (the buffer pool, metrics, extensions service) receive
// them explicitly from the Transport method that hands out the
// Connection.
type Connection struct {
	id         string
	qc         *quic.Conn
	controller *adaptive.Controller

	pooled atomic.Bool

	reassembly sync.Map // [32]byte packetHash -> *shardAssembly

	// pendingToken holds a token announced by a TokenFrame until the
	// payload it covers arrives, so Receive can validate it in one
	// place instead of threading it through the caller.
	pendingToken atomic.Pointer[protocol.PacketToken]

	negotiatedParams atomic.Pointer[protocol.Parameters]

	// pairingKey holds the shared secret derived from the optional PAKE
	// pairing bootstrap, if the transport was configured with a pairing
	// code. Nil when pairing was not used on this connection.
	pairingKey atomic.Pointer[[]byte]

	closed atomic.Bool
}

// ID returns the stable identifier this connection was registered
// under with the adaptation manager.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the peer's network address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.qc.RemoteAddr()
}

// Parameters returns the connection's current live transport
// parameters, as tuned by the adaptation controller.
func (c *Connection) Parameters() adaptive.ConnectionParameters {
	return c.controller.Parameters()
}

// Tier returns the connection's current network tier classification.
func (c *Connection) Tier() adaptive.Tier {
	return c.controller.Tier()
}

// Controller exposes the connection's adaptation controller for
// callers that need direct access (e.g. to feed it measurement
// samples from a custom RTT probe).
func (c *Connection) Controller() *adaptive.Controller {
	return c.controller
}

// Context returns a context bound to the underlying QUIC connection's
// lifetime: it is cancelled once the connection closes.
func (c *Connection) Context() context.Context {
	return c.qc.Context()
}

// IsClosed reports whether Close has been called on this connection.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// OpenStream opens a new bidirectional stream.
func (c *Connection) OpenStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &Stream{id: uint64(qs.StreamID()), conn: c, qs: qs}, nil
}

// AcceptStream waits for the peer to open a new bidirectional stream.
func (c *Connection) AcceptStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &Stream{id: uint64(qs.StreamID()), conn: c, qs: qs}, nil
}

// NegotiatedParameters returns the protocol parameter set agreed with
// the peer during the post-handshake exchange, or the zero value if
// the exchange has not completed.
func (c *Connection) NegotiatedParameters() protocol.Parameters {
	if p := c.negotiatedParams.Load(); p != nil {
		return *p
	}
	return protocol.Parameters{}
}

// PairingKey returns the shared secret derived from the PAKE pairing
// bootstrap, and whether one was performed on this connection at all.
func (c *Connection) PairingKey() ([]byte, bool) {
	if k := c.pairingKey.Load(); k != nil {
		return *k, true
	}
	return nil, false
}

// Close closes the connection with code 0 and reason "shutdown".
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.qc.CloseWithError(0, "shutdown")
}

// shardAssembly tracks partially-received shards for one packet_hash
// until every shard has arrived and the original payload can be
// reassembled.
type shardAssembly struct {
	mu         sync.Mutex
	total      uint32
	shards     map[uint32]protocol.PacketShard
	packetHash [32]byte
}
