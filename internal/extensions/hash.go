// Package extensions implements the STOQ protocol extensions layered
// on top of raw QUIC: packet tokenization, sharding/reassembly, hop
// tracking, and seed distribution info.
package extensions

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"

	"github.com/stoq-transport/stoq/internal/protocol"
)

// newHasher returns a fresh hash.Hash for the negotiated token
// algorithm. SHA-384 and SHA3-256/BLAKE3 are supported alongside the
// SHA-256 default so a connection can negotiate a stronger tokenizer
// without a protocol change.
func newHasher(alg protocol.TokenAlgorithm) hash.Hash {
	switch alg {
	case protocol.TokenAlgorithmSha384:
		return sha512.New384()
	case protocol.TokenAlgorithmSha3_256:
		return sha3.New256()
	case protocol.TokenAlgorithmBlake3:
		return blake3.New(32, nil)
	default:
		return sha256.New()
	}
}

// sum256 hashes data with the negotiated algorithm, truncating or
// padding to 32 bytes to fit the fixed-size wire format used by
// PacketToken and PacketShard. SHA-256, SHA3-256, and BLAKE3 (at its
// default 32-byte output) all produce exactly 32 bytes natively;
// SHA-384 is truncated to its first 32 bytes.
func sum256(alg protocol.TokenAlgorithm, data []byte) [32]byte {
	h := newHasher(alg)
	h.Write(data)
	sum := h.Sum(nil)

	var out [32]byte
	copy(out[:], sum[:32])
	return out
}
