// Package handshake provides post-quantum signing for the exchange that
// follows the QUIC handshake: it signs connection-bound TLS data with a
// FALCON-tagged signature and verifies a peer's, combining both into a
// hybrid authenticator alongside the traditional TLS certificate
// verification QUIC already performs.
package handshake

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stoq-transport/stoq/internal/logging"
	"github.com/stoq-transport/stoq/internal/pq"
)

// Extension wraps a post-quantum transport and a cache of peer public
// keys to authenticate handshake transcripts.
type Extension struct {
	transport     *pq.Transport
	peerKeys      sync.Map // string -> *pq.PublicKey
	requireFalcon bool
	hybridMode    bool
}

// NewExtension returns a handshake extension. transport may be nil to
// disable post-quantum signing entirely; requireFalcon then controls
// whether that absence is treated as an error.
func NewExtension(transport *pq.Transport, requireFalcon, hybridMode bool) *Extension {
	return &Extension{transport: transport, requireFalcon: requireFalcon, hybridMode: hybridMode}
}

// AddSignature signs handshakeData with the local post-quantum key and
// returns its wire-exported form, or an empty slice if no transport is
// configured and signing is not required.
func (e *Extension) AddSignature(handshakeData []byte) ([]byte, error) {
	if e.transport == nil {
		if e.requireFalcon {
			return nil, fmt.Errorf("handshake: post-quantum signing required but not available")
		}
		return nil, nil
	}

	sig, err := e.transport.SignHandshakeData(handshakeData)
	if err != nil {
		return nil, err
	}

	exported := pq.ExportSignature(sig)
	logging.Debug("added post-quantum signature to handshake", zap.Int("bytes", len(exported)))
	return exported, nil
}

// VerifySignature checks a peer's exported signature against
// handshakeData using the cached public key for peerID.
func (e *Extension) VerifySignature(peerID string, signatureData, handshakeData []byte) (bool, error) {
	if e.transport == nil {
		if e.requireFalcon {
			return false, fmt.Errorf("handshake: post-quantum verification required but not available")
		}
		return true, nil
	}

	sig, err := pq.ImportSignature(signatureData)
	if err != nil {
		return false, fmt.Errorf("handshake: malformed signature from %s: %w", peerID, err)
	}

	v, ok := e.peerKeys.Load(peerID)
	if !ok {
		logging.Warn("no public key cached for peer", zap.String("peer_id", peerID))
		return false, nil
	}
	peerKey := v.(*pq.PublicKey)

	engine := pq.NewEngine(peerKey.Variant)
	valid, err := engine.Verify(peerKey, sig, handshakeData)
	if err != nil {
		return false, err
	}

	if valid {
		logging.Info("post-quantum signature verified", zap.String("peer_id", peerID))
	} else {
		logging.Warn("post-quantum signature verification failed", zap.String("peer_id", peerID))
	}
	return valid, nil
}

// ExportPublicKey returns the wire-exported local public key, or
// (nil, false) if no transport or local key is configured.
func (e *Extension) ExportPublicKey() ([]byte, bool) {
	if e.transport == nil {
		return nil, false
	}
	pub, ok := e.transport.GetLocalPublicKey()
	if !ok {
		return nil, false
	}
	return pq.ExportPublicKey(pub), true
}

// ImportPeerKey parses and caches a peer's exported public key.
func (e *Extension) ImportPeerKey(peerID string, keyData []byte) error {
	pub, err := pq.ImportPublicKey(keyData)
	if err != nil {
		return fmt.Errorf("handshake: importing key for %s: %w", peerID, err)
	}
	e.peerKeys.Store(peerID, pub)
	logging.Debug("imported peer public key", zap.String("peer_id", peerID))
	return nil
}

// CreateHybridAuthenticator bundles tlsData with an optional
// post-quantum signature over it: 4-byte TLS length | TLS bytes |
// 1-byte has-signature flag | [4-byte signature length | signature
// bytes].
func (e *Extension) CreateHybridAuthenticator(tlsData []byte) ([]byte, error) {
	buf := make([]byte, 0, len(tlsData)+16)

	lenField := make([]byte, 4)
	binary.BigEndian.PutUint32(lenField, uint32(len(tlsData)))
	buf = append(buf, lenField...)
	buf = append(buf, tlsData...)

	sig, err := e.AddSignature(tlsData)
	if err != nil || len(sig) == 0 {
		return append(buf, 0), nil
	}

	buf = append(buf, 1)
	sigLenField := make([]byte, 4)
	binary.BigEndian.PutUint32(sigLenField, uint32(len(sig)))
	buf = append(buf, sigLenField...)
	buf = append(buf, sig...)

	return buf, nil
}

// VerifyHybridAuthenticator validates an authenticator built by
// CreateHybridAuthenticator against the locally expected TLS bytes.
// In hybrid mode, a present post-quantum signature must also verify;
// outside hybrid mode it is treated as an optional enhancement.
func (e *Extension) VerifyHybridAuthenticator(peerID string, authData, expectedTLS []byte) (bool, error) {
	if len(authData) < 5 {
		return false, fmt.Errorf("handshake: authenticator too short")
	}

	tlsLen := int(binary.BigEndian.Uint32(authData[0:4]))
	if len(authData) < 4+tlsLen+1 {
		return false, fmt.Errorf("handshake: authenticator TLS section truncated")
	}

	tlsData := authData[4 : 4+tlsLen]
	if string(tlsData) != string(expectedTLS) {
		return false, nil
	}

	offset := 4 + tlsLen
	hasSig := authData[offset] == 1
	offset++

	if !hasSig {
		if e.requireFalcon {
			return false, nil
		}
		return true, nil
	}

	if len(authData) < offset+4 {
		return false, fmt.Errorf("handshake: authenticator signature header truncated")
	}
	sigLen := int(binary.BigEndian.Uint32(authData[offset : offset+4]))
	offset += 4
	if len(authData) < offset+sigLen {
		return false, fmt.Errorf("handshake: authenticator signature truncated")
	}

	valid, err := e.VerifySignature(peerID, authData[offset:offset+sigLen], tlsData)
	if err != nil {
		return false, err
	}

	if e.hybridMode {
		return valid, nil
	}
	return true, nil
}
