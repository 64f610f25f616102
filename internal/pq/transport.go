package pq

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// minSignatureWireLen is the smallest possible exported signature:
// 1-byte variant + 2-byte length + 0 signature bytes + 32-byte hash +
// 8-byte timestamp.
const minSignatureWireLen = 1 + 2 + 32 + 8

// Transport manages the local signing identity and a set of trusted
// peer public keys for handshake authentication.
type Transport struct {
	mu          sync.RWMutex
	variant     Variant
	engine      *Engine
	localKey    *PrivateKey
	localPublic *PublicKey
	trusted     map[string]*PublicKey
}

// NewTransport returns a Transport for the given variant with no local
// keypair and no trusted keys.
func NewTransport(variant Variant) *Transport {
	return &Transport{
		variant: variant,
		engine:  NewEngine(variant),
		trusted: make(map[string]*PublicKey),
	}
}

// GenerateLocalKeypair creates and installs a fresh local signing
// identity, returning the public key to advertise to peers.
func (t *Transport) GenerateLocalKeypair() (*PublicKey, error) {
	priv, pub, err := t.engine.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.localKey = priv
	t.localPublic = pub
	t.mu.Unlock()

	return pub, nil
}

// SetLocalKeypair installs a previously generated local identity.
func (t *Transport) SetLocalKeypair(priv *PrivateKey, pub *PublicKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localKey = priv
	t.localPublic = pub
}

// AddTrustedKey registers a peer's public key under keyID for later
// signature verification.
func (t *Transport) AddTrustedKey(keyID string, key *PublicKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key.KeyID = keyID
	t.trusted[keyID] = key
}

// GetLocalPublicKey returns the installed local public key, if any.
func (t *Transport) GetLocalPublicKey() (*PublicKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.localPublic, t.localPublic != nil
}

// SignHandshakeData signs data with the local private key.
func (t *Transport) SignHandshakeData(data []byte) (*Signature, error) {
	t.mu.RLock()
	local := t.localKey
	t.mu.RUnlock()

	if local == nil {
		return nil, fmt.Errorf("pq: no local keypair installed")
	}
	return t.engine.Sign(local, data)
}

// VerifyHandshakeSignature verifies signature against data using the
// trusted key registered under keyID.
func (t *Transport) VerifyHandshakeSignature(keyID string, data []byte, signature *Signature) (bool, error) {
	t.mu.RLock()
	key, ok := t.trusted[keyID]
	t.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("pq: no trusted key registered for %q", keyID)
	}
	return t.engine.Verify(key, signature, data)
}

// ExportSignature serializes signature to the wire format:
// 1-byte variant | 2-byte length | signature bytes | 32-byte hash |
// 8-byte timestamp (unix seconds, big-endian).
func ExportSignature(sig *Signature) []byte {
	buf := make([]byte, 1+2+len(sig.SignatureData)+32+8)

	buf[0] = byte(sig.Variant)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(sig.SignatureData)))
	copy(buf[3:3+len(sig.SignatureData)], sig.SignatureData)
	copy(buf[3+len(sig.SignatureData):3+len(sig.SignatureData)+32], sig.MessageHash[:])
	binary.BigEndian.PutUint64(buf[3+len(sig.SignatureData)+32:], uint64(sig.SignedAt.Unix()))

	return buf
}

// ImportSignature parses the wire format produced by ExportSignature.
func ImportSignature(data []byte) (*Signature, error) {
	if len(data) < minSignatureWireLen {
		return nil, fmt.Errorf("pq: signature too short: %d bytes, need at least %d", len(data), minSignatureWireLen)
	}

	var variant Variant
	switch data[0] {
	case 0:
		variant = VariantFalcon512
	case 1:
		variant = VariantFalcon1024
	default:
		return nil, fmt.Errorf("pq: unknown variant byte %d", data[0])
	}

	sigLen := int(binary.BigEndian.Uint16(data[1:3]))
	offset := 3

	if len(data) < offset+sigLen+32+8 {
		return nil, fmt.Errorf("pq: signature length field %d overruns buffer of %d bytes", sigLen, len(data))
	}

	sigData := make([]byte, sigLen)
	copy(sigData, data[offset:offset+sigLen])
	offset += sigLen

	var hash [32]byte
	copy(hash[:], data[offset:offset+32])
	offset += 32

	ts := binary.BigEndian.Uint64(data[offset : offset+8])

	return &Signature{
		Variant:       variant,
		SignatureData: sigData,
		MessageHash:   hash,
		SignedAt:      time.Unix(int64(ts), 0),
	}, nil
}
