// Package stoq implements a secure transport over QUIC/IPv6 with a set
// of custom extensions layered on top of the base protocol: packet
// tokenization, oversize-packet sharding, hop tracking, seed discovery,
// and optional post-quantum handshake authentication. It composes the
// sub-packages under internal/ into a single façade around
// github.com/quic-go/quic-go's raw (non-HTTP3) connection API.
package stoq

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/stoq-transport/stoq/internal/adaptive"
	"github.com/stoq-transport/stoq/internal/certs"
	"github.com/stoq-transport/stoq/internal/config"
	"github.com/stoq-transport/stoq/internal/discovery"
	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
	"github.com/stoq-transport/stoq/internal/eventstream"
	"github.com/stoq-transport/stoq/internal/extensions"
	"github.com/stoq-transport/stoq/internal/handshake"
	"github.com/stoq-transport/stoq/internal/logging"
	"github.com/stoq-transport/stoq/internal/metrics"
	"github.com/stoq-transport/stoq/internal/network"
	"github.com/stoq-transport/stoq/internal/pairing"
	"github.com/stoq-transport/stoq/internal/pq"
	"github.com/stoq-transport/stoq/internal/protocol"
)

// alpn is the ALPN token STOQ connections negotiate over TLS.
const alpn = "stoq/1.0"

// maxMetadataFrames caps how many consecutive extension frames Receive
// will process on one connection before giving up and reporting an
// error, so a peer streaming nothing but metadata frames can't wedge a
// caller in an unbounded loop.
const maxMetadataFrames = 16

// Option configures a Transport at construction time.
type Option func(*transportOptions)

type transportOptions struct {
	ca       certs.CertificateAuthority
	eventHub *eventstream.Hub
	tokenAlg *protocol.TokenAlgorithm
}

func (o transportOptions) tokenAlgorithm() protocol.TokenAlgorithm {
	if o.tokenAlg != nil {
		return *o.tokenAlg
	}
	return protocol.TokenAlgorithmSha256
}

// WithCertificateAuthority configures peer certificate verification
// against ca instead of accepting any presented certificate. Without
// this option the transport runs with a promiscuous verifier: it is
// documented as unsafe for anything beyond local testing.
func WithCertificateAuthority(ca certs.CertificateAuthority) Option {
	return func(o *transportOptions) { o.ca = ca }
}

// WithEventHub attaches an eventstream.Hub so tier transitions are
// broadcast to connected dashboard clients. The transport never starts
// its own HTTP server for it; mount EventsHandler on one of your own.
func WithEventHub(hub *eventstream.Hub) Option {
	return func(o *transportOptions) { o.eventHub = hub }
}

// WithTokenAlgorithm overrides the default SHA-256 packet tokenization
// algorithm.
func WithTokenAlgorithm(alg protocol.TokenAlgorithm) Option {
	return func(o *transportOptions) { o.tokenAlg = &alg }
}

// multiplexGroup is a set of parallel connections to the same peer,
// used to spread one logical stream of sends across several QUIC
// connections.
type multiplexGroup struct {
	conns []*Connection
	next  atomic.Uint64
}

// Transport is a STOQ endpoint: it can dial outbound connections,
// accept inbound ones, and carry application data over either,
// enriched with the protocol's token/shard/hop/seed extensions and
// adaptive parameter tuning.
type Transport struct {
	cfg  *config.Config
	opts transportOptions

	bindIP        net.IP
	udpConn       *net.UDPConn
	quicTransport *quic.Transport
	listener      *quic.Listener
	quicConfig    *quic.Config
	serverTLS     *tls.Config
	clientTLS     *tls.Config

	bufferPool      *BufferPool
	metrics         *metrics.Counters
	extSvc          *extensions.Service
	adaptiveManager *adaptive.Manager
	pqTransport     *pq.Transport
	handshakeExt    *handshake.Extension
	eventHub        *eventstream.Hub
	shaper          *adaptive.Shaper
	localParams     protocol.Parameters

	pool      sync.Map // string -> *Connection
	multiplex sync.Map // string -> *multiplexGroup

	advertiser       *discovery.Advertiser
	discoveryEnabled atomic.Bool

	closed atomic.Bool
}

// New binds a UDP/IPv6 socket at cfg.BindAddress:cfg.Port, builds a
// self-signed TLS identity (peer certificates are checked against a
// CertificateAuthority when one is configured), and starts a QUIC
// listener on it.
func New(cfg *config.Config, opts ...Option) (*Transport, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var options transportOptions
	for _, opt := range opts {
		opt(&options)
	}

	ip := net.ParseIP(cfg.BindAddress)
	if err := network.ValidateIPv6Endpoint(ip); err != nil {
		return nil, err
	}

	udpConn, err := listenTunedUDP6(ip, cfg)
	if err != nil {
		return nil, err
	}

	cert, err := certs.GenerateSelfSigned(ip, cfg.CertRotationInterval)
	if err != nil {
		_ = udpConn.Close()
		return nil, stoqerrors.NewTransportError(stoqerrors.KindCryptoInit, "generate self-signed certificate", err)
	}

	serverTLS := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.NoClientCert,
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
	clientTLS := &tls.Config{
		InsecureSkipVerify: true, // nolint:gosec // promiscuous by default, see WithCertificateAuthority
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	if options.ca != nil {
		// RequireAnyClientCert skips Go's own chain verification (there
		// is no ClientCAs pool); VerifyPeerCertificate runs regardless
		// and is where CA trust is actually enforced, on both ends.
		verify := certs.VerifyWithCA(context.Background(), options.ca, "")
		clientTLS.VerifyPeerCertificate = verify
		serverTLS.ClientAuth = tls.RequireAnyClientCert
		serverTLS.VerifyPeerCertificate = verify
	}

	quicCfg := buildQUICConfig(cfg)

	qt := &quic.Transport{Conn: udpConn}
	listener, err := qt.Listen(serverTLS, quicCfg)
	if err != nil {
		_ = udpConn.Close()
		return nil, stoqerrors.NewTransportError(stoqerrors.KindCryptoInit, "start quic listener", err)
	}

	m := metrics.New()
	extSvc := extensions.NewService(options.tokenAlgorithm(), m, cfg.EnableCompression)

	var eventHub *eventstream.Hub
	if options.eventHub != nil {
		eventHub = options.eventHub
	}

	adaptiveMgr := adaptive.NewManager(adaptive.DefaultAdaptationInterval, m, eventHubTransitionFunc(eventHub))

	var pqTransport *pq.Transport
	if cfg.EnablePQCrypto {
		variant := pq.VariantFalcon512
		if cfg.PQVariant == config.PQVariantFalcon1024 {
			variant = pq.VariantFalcon1024
		}
		pqTransport = pq.NewTransport(variant)
		if _, err := pqTransport.GenerateLocalKeypair(); err != nil {
			_ = listener.Close()
			_ = udpConn.Close()
			return nil, stoqerrors.NewTransportError(stoqerrors.KindCryptoInit, "generate post-quantum keypair", err)
		}
	}
	handshakeExt := handshake.NewExtension(pqTransport, cfg.EnablePQCrypto, cfg.EnablePQCrypto)

	var shaper *adaptive.Shaper
	if cfg.EnableRateLimit {
		shaper = adaptive.NewShaper(cfg.RateLimitMbps, cfg.MaxDatagramSize)
	}

	localParams := protocol.ClientDefaultParameters()
	localParams.MaxShardSize = uint32(cfg.MaxShardSize)
	localParams.TokenAlgorithm = options.tokenAlgorithm()
	localParams.FalconEnabled = cfg.EnablePQCrypto
	if pqTransport != nil {
		if pub, ok := pqTransport.GetLocalPublicKey(); ok {
			localParams.FalconPublicKey = pq.ExportPublicKey(pub)
		}
	}

	var bufPool *BufferPool
	if cfg.EnableMemoryPool {
		bufPool = NewBufferPool(cfg.MaxDatagramSize, cfg.MemoryPoolSize)
	}

	return &Transport{
		cfg:             cfg,
		opts:            options,
		bindIP:          ip,
		udpConn:         udpConn,
		quicTransport:   qt,
		listener:        listener,
		quicConfig:      quicCfg,
		serverTLS:       serverTLS,
		clientTLS:       clientTLS,
		bufferPool:      bufPool,
		metrics:         m,
		extSvc:          extSvc,
		adaptiveManager: adaptiveMgr,
		pqTransport:     pqTransport,
		handshakeExt:    handshakeExt,
		eventHub:        eventHub,
		shaper:          shaper,
		localParams:     localParams,
	}, nil
}

// listenTunedUDP6 binds a UDP/IPv6 socket, applying the configured
// send/receive buffer sizes and forcing IPV6_V6ONLY. Every tuning step
// is best-effort: a failed setsockopt is logged and otherwise ignored,
// never fatal to the bind itself.
func listenTunedUDP6(ip net.IP, cfg *config.Config) (*net.UDPConn, error) {
	addr := (&net.UDPAddr{IP: ip, Port: cfg.Port}).String()

	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			return rc.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
					logging.Warn("failed to set IPV6_V6ONLY", zap.Error(err))
				}
				if cfg.SendBufferSize > 0 {
					if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBufferSize); err != nil {
						logging.Warn("failed to set SO_SNDBUF", zap.Error(err))
					}
				}
				if cfg.ReceiveBufferSize > 0 {
					if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.ReceiveBufferSize); err != nil {
						logging.Warn("failed to set SO_RCVBUF", zap.Error(err))
					}
				}
			})
		},
	}

	packetConn, err := lc.ListenPacket(context.Background(), "udp6", addr)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindBind, "bind udp6 socket "+addr, err)
	}
	return packetConn.(*net.UDPConn), nil
}

func buildQUICConfig(cfg *config.Config) *quic.Config {
	recvWindow := uint64(cfg.ReceiveBufferSize)
	if recvWindow == 0 {
		recvWindow = uint64(protocol.BufferSizeLarge)
	}
	return &quic.Config{
		MaxIdleTimeout:                 cfg.MaxIdleTimeout,
		KeepAlivePeriod:                cfg.MaxIdleTimeout / 2,
		InitialStreamReceiveWindow:     recvWindow,
		MaxStreamReceiveWindow:         recvWindow * 2,
		InitialConnectionReceiveWindow: recvWindow * 2,
		MaxConnectionReceiveWindow:     recvWindow * 4,
		MaxIncomingStreams:             int64(cfg.MaxConcurrentStreams),
		MaxIncomingUniStreams:          int64(cfg.MaxConcurrentStreams / 2),
		EnableDatagrams:                true,
		Allow0RTT:                      cfg.Enable0RTT,
	}
}

func eventHubTransitionFunc(hub *eventstream.Hub) adaptive.TransitionFunc {
	if hub == nil {
		return nil
	}
	return hub.OnTransition
}

// LocalAddr returns the address of the transport's bound UDP socket,
// useful when New was given port 0 and the OS assigned one.
func (t *Transport) LocalAddr() net.Addr {
	return t.udpConn.LocalAddr()
}

func (t *Transport) wrapConnection(id string, qc *quic.Conn) *Connection {
	conn := &Connection{id: id, qc: qc, controller: t.adaptiveManager.Register(id)}
	conn.pooled.Store(true)
	t.metrics.RecordConnectionOpened()
	return conn
}

// Connect dials host:port over QUIC/IPv6, reusing a pooled connection
// to the same address if one is open. host must be an IPv6 literal.
func (t *Transport) Connect(ctx context.Context, host string, port int) (*Connection, error) {
	ip := net.ParseIP(host)
	if err := network.ValidateIPv6Endpoint(ip); err != nil {
		return nil, err
	}
	addr := &net.UDPAddr{IP: ip, Port: port}
	key := addr.String()

	if v, ok := t.pool.Load(key); ok {
		conn := v.(*Connection)
		if !conn.IsClosed() {
			return conn, nil
		}
		t.pool.Delete(key)
	}

	qc, err := t.quicTransport.Dial(ctx, addr, t.clientTLS, t.quicConfig)
	if err != nil {
		t.metrics.RecordConnectionFailure()
		return nil, stoqerrors.NewTransportError(stoqerrors.KindConnectFailed, "dial "+key, err)
	}

	conn := t.wrapConnection(key, qc)
	if err := t.performHandshakeExchange(ctx, conn, true); err != nil {
		_ = conn.Close()
		t.metrics.RecordConnectionFailure()
		return nil, err
	}

	t.pool.Store(key, conn)
	return conn, nil
}

// Accept waits for the next inbound connection. The peer's address
// must be IPv6; anything else is refused before the handshake
// extension exchange runs.
func (t *Transport) Accept(ctx context.Context) (*Connection, error) {
	qc, err := t.listener.Accept(ctx)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindAcceptFailed, "accept", err)
	}

	remote, ok := qc.RemoteAddr().(*net.UDPAddr)
	if !ok || network.ValidateIPv6Endpoint(remote.IP) != nil {
		_ = qc.CloseWithError(0, "unsupported address family")
		return nil, stoqerrors.NewTransportError(stoqerrors.KindUnsupportedAddressFamily, "remote address is not IPv6", nil)
	}

	conn := t.wrapConnection(remote.String(), qc)
	if err := t.performHandshakeExchange(ctx, conn, false); err != nil {
		_ = conn.Close()
		return nil, err
	}

	t.pool.Store(conn.ID(), conn)
	return conn, nil
}

// ReturnToPool makes conn available for reuse by a future Connect call
// to the same peer, instead of closing it once a caller is done with
// it for now.
func (t *Transport) ReturnToPool(conn *Connection) {
	if conn == nil || conn.IsClosed() {
		return
	}
	conn.pooled.Store(true)
	t.pool.Store(conn.ID(), conn)
}

// performHandshakeExchange runs once per connection, immediately after
// the QUIC/TLS handshake completes, over a dedicated bidirectional
// stream: if a pairing code is configured, both sides first run a PAKE
// pairing bootstrap over that same stream, then exchange their offered
// protocol.Parameters and, if post-quantum signing is configured, a
// hybrid authenticator over a TLS exporter value unique to this
// connection. quic-go's public API does not expose a hook into the raw
// transport parameter extension, so this exchange happens at the
// application layer instead of inside the QUIC handshake proper.
func (t *Transport) performHandshakeExchange(ctx context.Context, conn *Connection, isClient bool) error {
	var stream *Stream
	var err error
	if isClient {
		stream, err = conn.OpenStream(ctx)
	} else {
		stream, err = conn.AcceptStream(ctx)
	}
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "open handshake exchange stream", err)
	}
	defer stream.Close()

	if t.cfg.PairingCode != "" {
		sharedKey, err := pairing.Bootstrap(stream, t.cfg.PairingCode, !isClient)
		if err != nil {
			return err
		}
		conn.pairingKey.Store(&sharedKey)
	}

	localParams := t.localParams
	paramsWire, err := localParams.EncodeWire()
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindMalformedParameter, "encode local parameters", err)
	}
	if err := writeLengthPrefixed(stream, paramsWire); err != nil {
		return err
	}

	peerParamsWire, err := readLengthPrefixed(stream)
	if err != nil {
		return err
	}
	peerParams, err := protocol.DecodeWire(peerParamsWire)
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindMalformedParameter, "decode peer parameters", err)
	}

	if t.cfg.EnablePQCrypto && peerParams.FalconPublicKey != nil {
		if err := t.handshakeExt.ImportPeerKey(conn.ID(), peerParams.FalconPublicKey); err != nil {
			return stoqerrors.NewTransportError(stoqerrors.KindPqVerifyFailed, "import peer post-quantum key", err)
		}
	}

	binding, err := handshakeBinding(conn)
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindCryptoInit, "derive handshake binding", err)
	}

	authData, err := t.handshakeExt.CreateHybridAuthenticator(binding)
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindPqRequiredMissing, "build hybrid authenticator", err)
	}
	if err := writeLengthPrefixed(stream, authData); err != nil {
		return err
	}

	peerAuthData, err := readLengthPrefixed(stream)
	if err != nil {
		return err
	}
	valid, err := t.handshakeExt.VerifyHybridAuthenticator(conn.ID(), peerAuthData, binding)
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindPqVerifyFailed, "verify peer hybrid authenticator", err)
	}
	if !valid {
		return stoqerrors.NewTransportError(stoqerrors.KindPqVerifyFailed, "peer hybrid authenticator rejected", nil)
	}

	var negotiated protocol.Parameters
	if isClient {
		negotiated = protocol.Negotiate(localParams, peerParams)
	} else {
		negotiated = protocol.Negotiate(peerParams, localParams)
	}
	conn.negotiatedParams.Store(&negotiated)
	return nil
}

// handshakeBinding derives a value both peers compute identically from
// the already-established TLS session, used to bind the post-quantum
// signature exchange to this specific connection without needing
// access to quic-go's internal handshake transcript.
func handshakeBinding(conn *Connection) ([]byte, error) {
	state := conn.qc.ConnectionState()
	return state.TLS.ExportKeyingMaterial("stoq-handshake-binding", nil, 32)
}

func writeLengthPrefixed(s *Stream, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := s.Write(lenBuf[:]); err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "write handshake length", err)
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := s.Write(data); err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "write handshake data", err)
	}
	return nil
}

func readLengthPrefixed(s *Stream) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s, lenBuf[:]); err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "read handshake length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(s, data); err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "read handshake data", err)
	}
	return data, nil
}

// Send transmits data over conn. Payloads within the negotiated
// maximum datagram size go out as QUIC datagrams; larger payloads open
// an ephemeral stream. If sharding is enabled and data exceeds the
// datagram size, it is fragmented into ShardFrames instead, batched
// cfg.FrameBatchSize at a time.
func (t *Transport) Send(ctx context.Context, conn *Connection, data []byte) error {
	if conn.IsClosed() {
		return stoqerrors.NewTransportError(stoqerrors.KindClosed, "connection closed", nil)
	}

	if t.shaper != nil {
		if err := t.shaper.WaitN(ctx, len(data)); err != nil {
			return stoqerrors.NewTransportError(stoqerrors.KindCancelled, "rate limit wait", err)
		}
	}

	params := conn.Parameters()
	maxDatagram := int(params.MaxDatagramSize)

	token := t.extSvc.TokenizePacket(data)
	if err := t.sendFrame(ctx, conn, &protocol.Frame{Type: protocol.FrameTypeToken, Token: &protocol.TokenFrame{Token: token}}); err != nil {
		return err
	}

	if t.cfg.EnableSharding && len(data) > maxDatagram {
		return t.sendSharded(ctx, conn, data, maxDatagram)
	}

	buf, pooled := t.acquireSendBuffer()
	payload := data
	if pooled {
		n := copy(buf, data)
		payload = buf[:n]
	}

	var sendErr error
	if len(payload) <= maxDatagram {
		sendErr = conn.qc.SendDatagram(payload)
	} else {
		var stream *Stream
		stream, sendErr = conn.OpenStream(ctx)
		if sendErr == nil {
			_, sendErr = stream.Write(payload)
			if sendErr == nil {
				sendErr = stream.Close()
			}
		}
	}

	if pooled {
		t.bufferPool.Release(buf)
	}
	if sendErr != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindDatagramIO, "send payload", sendErr)
	}

	t.metrics.RecordBytesSent(uint64(len(data)))
	return nil
}

func (t *Transport) acquireSendBuffer() ([]byte, bool) {
	if t.bufferPool == nil {
		return nil, false
	}
	return t.bufferPool.Acquire()
}

func (t *Transport) sendSharded(ctx context.Context, conn *Connection, data []byte, maxShardSize int) error {
	shards, err := t.extSvc.ShardPacket(data, maxShardSize)
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindShardingError, "shard payload", err)
	}

	batch := t.cfg.FrameBatchSize
	if batch <= 0 {
		batch = len(shards)
	}
	for i := 0; i < len(shards); i += batch {
		end := i + batch
		if end > len(shards) {
			end = len(shards)
		}
		for _, shard := range shards[i:end] {
			frame := &protocol.Frame{Type: protocol.FrameTypeShard, Shard: &protocol.ShardFrame{Shard: shard}}
			if err := t.sendFrame(ctx, conn, frame); err != nil {
				return err
			}
		}
	}

	t.metrics.RecordBytesSent(uint64(len(data)))
	return nil
}

// sendFrame encodes and sends a single metadata frame as a datagram,
// falling back to an ephemeral stream if the datagram send fails (most
// commonly because the encoded frame exceeds the path's datagram size
// limit).
func (t *Transport) sendFrame(ctx context.Context, conn *Connection, frame *protocol.Frame) error {
	raw, err := frame.Encode()
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindMalformedFrame, "encode frame", err)
	}

	if err := conn.qc.SendDatagram(raw); err == nil {
		return nil
	}

	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindDatagramIO, "send frame", err)
	}
	defer stream.Close()
	if _, err := stream.Write(raw); err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "send frame via stream fallback", err)
	}
	return nil
}

// Receive returns the next application payload delivered on conn.
// Extension frames (tokens, shards) interleaved on the same connection
// are consumed and processed internally rather than returned to the
// caller: a frame is recognized by its leading type identifier
// decoding to one of STOQ's known frame types; anything else is
// treated as raw application payload. A token frame's token is checked
// against the very next raw payload that arrives; a payload that fails
// validation is dropped and counted rather than returned, and Receive
// keeps waiting for the next one. Payloads reassembled from shard
// frames are returned without a token check.
func (t *Transport) Receive(ctx context.Context, conn *Connection) ([]byte, error) {
	if conn.IsClosed() {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindClosed, "connection closed", nil)
	}

	for i := 0; i < maxMetadataFrames; i++ {
		raw, err := t.receiveRaw(ctx, conn)
		if err != nil {
			return nil, err
		}

		frame, ferr := protocol.DecodeFrame(raw)
		if ferr != nil || frame.Unknown != nil || !isMetadataFrameType(frame.Type) {
			if valid, ok := t.checkPendingToken(conn, raw); ok && !valid {
				t.metrics.RecordPacketDrop()
				continue
			}
			t.metrics.RecordBytesReceived(uint64(len(raw)))
			return raw, nil
		}

		payload, done, derr := t.dispatchMetadataFrame(conn, frame)
		if derr != nil {
			logging.Warn("dropping malformed extension frame", zap.Error(derr))
			t.metrics.RecordPacketDrop()
			continue
		}
		if done {
			t.metrics.RecordBytesReceived(uint64(len(payload)))
			return payload, nil
		}
	}

	return nil, stoqerrors.NewTransportError(stoqerrors.KindMalformedFrame, "too many extension frames without a payload", nil)
}

// checkPendingToken validates raw against a token announced by an
// earlier TokenFrame, if one is outstanding. ok is false when there was
// nothing to check.
func (t *Transport) checkPendingToken(conn *Connection, raw []byte) (valid bool, ok bool) {
	tok := conn.pendingToken.Swap(nil)
	if tok == nil {
		return false, false
	}
	return t.extSvc.ValidateToken(raw, *tok), true
}

func (t *Transport) dispatchMetadataFrame(conn *Connection, frame *protocol.Frame) (payload []byte, done bool, err error) {
	switch frame.Type {
	case protocol.FrameTypeToken:
		if frame.Token != nil {
			tok := frame.Token.Token
			conn.pendingToken.Store(&tok)
		}
		return nil, false, nil
	case protocol.FrameTypeShard:
		if frame.Shard == nil {
			return nil, false, fmt.Errorf("stoq: shard frame missing shard data")
		}
		return t.dispatchShardFrame(conn, frame.Shard)
	default:
		// Hop, seed, and post-quantum frames received outside the
		// handshake exchange stream are informational only in the
		// data-plane loop; tolerate and skip them.
		return nil, false, nil
	}
}

func (t *Transport) dispatchShardFrame(conn *Connection, sf *protocol.ShardFrame) ([]byte, bool, error) {
	shard := sf.Shard

	v, _ := conn.reassembly.LoadOrStore(shard.PacketHash, &shardAssembly{
		total:      shard.TotalShards,
		shards:     make(map[uint32]protocol.PacketShard),
		packetHash: shard.PacketHash,
	})
	asm := v.(*shardAssembly)

	asm.mu.Lock()
	asm.shards[shard.Sequence] = shard
	complete := uint32(len(asm.shards)) >= asm.total
	var collected []protocol.PacketShard
	if complete {
		collected = make([]protocol.PacketShard, 0, len(asm.shards))
		for _, s := range asm.shards {
			collected = append(collected, s)
		}
	}
	asm.mu.Unlock()

	if !complete {
		return nil, false, nil
	}

	conn.reassembly.Delete(shard.PacketHash)
	data, err := t.extSvc.ReassembleShards(collected)
	if err != nil {
		return nil, false, err
	}

	if t.extSvc.CompressionEnabled() {
		data, err = extensions.DecompressShard(data)
		if err != nil {
			return nil, false, err
		}
	}

	return data, true, nil
}

func isMetadataFrameType(ft uint64) bool {
	switch ft {
	case protocol.FrameTypeToken, protocol.FrameTypeShard, protocol.FrameTypeHop,
		protocol.FrameTypeSeed, protocol.FrameTypeFalconSignature, protocol.FrameTypeFalconKey:
		return true
	default:
		return false
	}
}

// receiveRaw waits for either a QUIC datagram or a new bidirectional
// stream, whichever arrives first, and returns its full content.
// Sends and this receive loop don't announce in advance which channel
// they'll use, so both are raced rather than picked up front.
// recvResult carries the outcome of one racing datagram or stream read
// in receiveRaw.
type recvResult struct {
	data []byte
	err  error
}

func (t *Transport) receiveRaw(ctx context.Context, conn *Connection) ([]byte, error) {
	datagramCh := make(chan recvResult, 1)
	streamCh := make(chan recvResult, 1)

	go func() {
		b, err := conn.qc.ReceiveDatagram(ctx)
		datagramCh <- recvResult{b, err}
	}()
	go func() {
		s, err := conn.qc.AcceptStream(ctx)
		if err != nil {
			streamCh <- recvResult{nil, err}
			return
		}
		data, err := io.ReadAll(&Stream{id: uint64(s.StreamID()), conn: conn, qs: s})
		streamCh <- recvResult{data, err}
	}()

	select {
	case r := <-datagramCh:
		if r.err == nil {
			return r.data, nil
		}
		return awaitOther(ctx, streamCh)
	case r := <-streamCh:
		if r.err == nil {
			return r.data, nil
		}
		return awaitOther(ctx, datagramCh)
	case <-ctx.Done():
		return nil, stoqerrors.NewTransportError(stoqerrors.KindCancelled, "receive cancelled", ctx.Err())
	}
}

func awaitOther(ctx context.Context, ch <-chan recvResult) ([]byte, error) {
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, stoqerrors.NewTransportError(stoqerrors.KindDatagramIO, "receive", r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, stoqerrors.NewTransportError(stoqerrors.KindCancelled, "receive cancelled", ctx.Err())
	}
}

// Shutdown closes every pooled and multiplexed connection, stops LAN
// advertisement, and tears down the listener and underlying socket.
func (t *Transport) Shutdown(_ context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.pool.Range(func(key, value any) bool {
		_ = value.(*Connection).Close()
		t.metrics.RecordConnectionClosed()
		t.pool.Delete(key)
		return true
	})
	t.multiplex.Range(func(key, value any) bool {
		for _, c := range value.(*multiplexGroup).conns {
			_ = c.Close()
			t.metrics.RecordConnectionClosed()
		}
		t.multiplex.Delete(key)
		return true
	})

	if t.advertiser != nil {
		t.advertiser.Close()
	}
	if t.listener != nil {
		_ = t.listener.Close()
	}
	if t.quicTransport != nil {
		_ = t.quicTransport.Close()
	}
	return t.udpConn.Close()
}

// EnableMultiplexing opens n parallel connections to host:port and
// registers them as a round-robin group that SendMultiplexed draws
// from.
func (t *Transport) EnableMultiplexing(ctx context.Context, host string, port, n int) error {
	if n <= 0 {
		return fmt.Errorf("stoq: multiplexing requires n > 0, got %d", n)
	}
	ip := net.ParseIP(host)
	if err := network.ValidateIPv6Endpoint(ip); err != nil {
		return err
	}
	addr := &net.UDPAddr{IP: ip, Port: port}
	key := addr.String()

	group := &multiplexGroup{conns: make([]*Connection, 0, n)}
	for i := 0; i < n; i++ {
		qc, err := t.quicTransport.Dial(ctx, addr, t.clientTLS, t.quicConfig)
		if err != nil {
			for _, c := range group.conns {
				_ = c.Close()
			}
			t.metrics.RecordConnectionFailure()
			return stoqerrors.NewTransportError(stoqerrors.KindConnectFailed, "multiplex dial", err)
		}
		conn := t.wrapConnection(fmt.Sprintf("%s#%d", key, i), qc)
		if err := t.performHandshakeExchange(ctx, conn, true); err != nil {
			_ = conn.Close()
			for _, c := range group.conns {
				_ = c.Close()
			}
			return err
		}
		group.conns = append(group.conns, conn)
	}

	t.multiplex.Store(key, group)
	return nil
}

// SendMultiplexed sends data over the next connection, round-robin, in
// the multiplex group previously opened for host:port.
func (t *Transport) SendMultiplexed(ctx context.Context, host string, port int, data []byte) error {
	ip := net.ParseIP(host)
	if err := network.ValidateIPv6Endpoint(ip); err != nil {
		return err
	}
	key := (&net.UDPAddr{IP: ip, Port: port}).String()

	v, ok := t.multiplex.Load(key)
	if !ok {
		return fmt.Errorf("stoq: no multiplex group open for %s", key)
	}
	group := v.(*multiplexGroup)
	if len(group.conns) == 0 {
		return fmt.Errorf("stoq: multiplex group for %s is empty", key)
	}

	idx := group.next.Add(1) % uint64(len(group.conns))
	return t.Send(ctx, group.conns[idx], data)
}

// StartAdaptation runs the adaptation manager's periodic re-evaluation
// loop until ctx is cancelled.
func (t *Transport) StartAdaptation(ctx context.Context) {
	go t.adaptiveManager.Run(ctx)
}

// AutoDetectTiers forces an immediate re-evaluation of every
// registered connection, returning how many changed tier.
func (t *Transport) AutoDetectTiers() int {
	return t.adaptiveManager.AutoDetectTiers()
}

// SetAdaptationEnabled toggles the adaptation manager globally.
func (t *Transport) SetAdaptationEnabled(enabled bool) {
	t.adaptiveManager.SetEnabled(enabled)
}

// SetConnectionTier forces connectionID to tier immediately, reporting
// whether that connection was registered.
func (t *Transport) SetConnectionTier(connectionID string, tier adaptive.Tier) bool {
	return t.adaptiveManager.SetConnectionTier(connectionID, tier)
}

// ForceConnectionAdaptation re-evaluates connectionID immediately,
// bypassing hysteresis.
func (t *Transport) ForceConnectionAdaptation(connectionID string) bool {
	return t.adaptiveManager.ForceConnectionAdaptation(connectionID)
}

// UpdateLiveConfig pushes params to every currently registered
// connection, taking effect immediately without a reconnect.
func (t *Transport) UpdateLiveConfig(params adaptive.ConnectionParameters) {
	t.adaptiveManager.ApplyLiveConfig(params)
}

// EnableLANDiscovery toggles mDNS advertisement of this node as a STOQ
// seed. Discovery is off by default; callers that want it must opt in
// explicitly.
func (t *Transport) EnableLANDiscovery(enable bool) error {
	if !enable {
		if t.advertiser != nil {
			t.advertiser.Close()
			t.advertiser = nil
		}
		t.discoveryEnabled.Store(false)
		return nil
	}

	adv, err := discovery.Advertise(t.cfg.DiscoveryName, t.bindIP, t.cfg.Port, 255)
	if err != nil {
		return err
	}
	t.advertiser = adv
	t.discoveryEnabled.Store(true)
	return nil
}

// DiscoverSeeds browses for STOQ seed nodes over mDNS for up to
// timeout and ranks them under priority.
func (t *Transport) DiscoverSeeds(ctx context.Context, timeout time.Duration, priority protocol.SeedPriority) (protocol.SeedInfo, error) {
	nodes, err := discovery.Browse(ctx, timeout)
	if err != nil {
		return protocol.SeedInfo{}, err
	}
	return discovery.SeedInfo(nodes, priority), nil
}

// EventsHandler exposes the configured event hub as a mountable
// http.Handler, or nil if none was supplied via WithEventHub. The
// transport never starts an HTTP server of its own.
func (t *Transport) EventsHandler() http.Handler {
	if t.eventHub == nil {
		return nil
	}
	return t.eventHub
}

// Metrics returns a snapshot of every transport-wide counter.
func (t *Transport) Metrics() metrics.Snapshot {
	return t.metrics.Snapshot()
}

// BufferPoolStats reports the send-path buffer pool's hit/miss/
// outstanding counters, or the zero value if pooling is disabled.
func (t *Transport) BufferPoolStats() BufferPoolStats {
	if t.bufferPool == nil {
		return BufferPoolStats{}
	}
	return t.bufferPool.Stats()
}
