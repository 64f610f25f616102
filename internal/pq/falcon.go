// Package pq implements the post-quantum signature layer used to sign
// and verify QUIC handshake data.
//
// The wire format and API surface here follow the FALCON-512/1024
// naming the protocol specifies, but the cryptographic backend is
// CRYSTALS-Dilithium (via github.com/cloudflare/circl/sign/dilithium):
// no pure-Go FALCON implementation exists anywhere in this module's
// dependency corpus. Dilithium mode2 and mode5 are both NIST-selected
// lattice-based signature schemes at comparable security levels to
// FALCON-512 (NIST level I) and FALCON-1024 (NIST level V)
// respectively, so the Variant tag's security intent is preserved even
// though the underlying primitive differs from the name.
package pq

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign/dilithium"
)

// Variant selects the signature strength used for handshake signing.
type Variant uint8

const (
	VariantFalcon512 Variant = iota
	VariantFalcon1024
)

func (v Variant) mode() dilithium.Mode {
	switch v {
	case VariantFalcon1024:
		return dilithium.Mode5
	default:
		return dilithium.Mode2
	}
}

func (v Variant) String() string {
	switch v {
	case VariantFalcon512:
		return "falcon512"
	case VariantFalcon1024:
		return "falcon1024"
	default:
		return "unknown"
	}
}

// PublicKeySize returns the serialized public key length for v.
func (v Variant) PublicKeySize() int { return v.mode().PublicKeySize() }

// SignatureSize returns the maximum serialized signature length for v.
func (v Variant) SignatureSize() int { return v.mode().SignatureSize() }

// SecurityLevelBits returns the approximate classical security level,
// matching the levels the protocol documents for FALCON-512/1024.
func (v Variant) SecurityLevelBits() int {
	if v == VariantFalcon1024 {
		return 256
	}
	return 128
}

// PublicKey is a post-quantum public key used to verify handshake
// signatures.
type PublicKey struct {
	Variant   Variant
	KeyData   []byte
	CreatedAt time.Time
	KeyID     string
}

// NewPublicKey validates keyData against the expected size for variant.
func NewPublicKey(variant Variant, keyData []byte) (*PublicKey, error) {
	if len(keyData) != variant.PublicKeySize() {
		return nil, fmt.Errorf("pq: invalid public key size: expected %d, got %d", variant.PublicKeySize(), len(keyData))
	}
	return &PublicKey{Variant: variant, KeyData: keyData, CreatedAt: time.Now()}, nil
}

// Fingerprint returns a SHA-256 digest of the key bytes, suitable for
// short human-readable identification.
func (k *PublicKey) Fingerprint() [32]byte {
	return sha256.Sum256(k.KeyData)
}

// PrivateKey is a post-quantum private key used to sign handshake data.
// Key material is never logged or serialized outside explicit export.
type PrivateKey struct {
	Variant   Variant
	keyData   []byte
	PublicKey PublicKey
}

// Signature is a post-quantum signature over a handshake message.
type Signature struct {
	Variant       Variant
	SignatureData []byte
	MessageHash   [32]byte
	SignedAt      time.Time
}

// Engine generates keys and signs/verifies data for a fixed variant.
type Engine struct {
	variant Variant
}

// NewEngine returns an Engine for the given variant.
func NewEngine(variant Variant) *Engine {
	return &Engine{variant: variant}
}

// GenerateKeypair creates a new post-quantum key pair.
func (e *Engine) GenerateKeypair() (*PrivateKey, *PublicKey, error) {
	mode := e.variant.mode()
	pub, priv, err := mode.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("pq: keypair generation failed: %w", err)
	}

	publicKey, err := NewPublicKey(e.variant, pub.Bytes())
	if err != nil {
		return nil, nil, err
	}

	privateKey := &PrivateKey{
		Variant:   e.variant,
		keyData:   priv.Bytes(),
		PublicKey: *publicKey,
	}

	return privateKey, publicKey, nil
}

// Sign signs data with privateKey, hashing data to a fixed 32-byte
// digest before signing, matching the wire format's MessageHash field.
func (e *Engine) Sign(privateKey *PrivateKey, data []byte) (*Signature, error) {
	if privateKey.Variant != e.variant {
		return nil, fmt.Errorf("pq: private key variant %s does not match engine variant %s", privateKey.Variant, e.variant)
	}

	messageHash := sha256.Sum256(data)

	mode := e.variant.mode()
	sk := mode.PrivateKeyFromBytes(privateKey.keyData)
	sigData := mode.Sign(sk, messageHash[:])

	return &Signature{
		Variant:       e.variant,
		SignatureData: sigData,
		MessageHash:   messageHash,
		SignedAt:      time.Now(),
	}, nil
}

// Verify checks that signature authenticates data under publicKey.
func (e *Engine) Verify(publicKey *PublicKey, signature *Signature, data []byte) (bool, error) {
	if publicKey.Variant != signature.Variant {
		return false, nil
	}

	computedHash := sha256.Sum256(data)
	if computedHash != signature.MessageHash {
		return false, nil
	}

	mode := signature.Variant.mode()
	pk := mode.PublicKeyFromBytes(publicKey.KeyData)

	return mode.Verify(pk, computedHash[:], signature.SignatureData), nil
}
