package extensions

import (
	"crypto/subtle"
	"time"

	"github.com/stoq-transport/stoq/internal/protocol"
)

// NewToken computes a packet token over data using alg, stamping it
// with sequence and the current time.
func NewToken(alg protocol.TokenAlgorithm, data []byte, sequence uint64) protocol.PacketToken {
	return protocol.PacketToken{
		Hash:      sum256(alg, data),
		Sequence:  sequence,
		Timestamp: uint64(time.Now().Unix()),
	}
}

// ValidateToken reports whether token authenticates data under alg.
// Comparison is constant-time to avoid leaking hash prefix matches via
// timing.
func ValidateToken(alg protocol.TokenAlgorithm, data []byte, token protocol.PacketToken) bool {
	computed := sum256(alg, data)
	return subtle.ConstantTimeCompare(computed[:], token.Hash[:]) == 1
}
