// Package pairing implements the pairing bootstrap: a short
// human-readable code authenticates a password-authenticated key
// exchange (PAKE), run over a stream of an already established QUIC
// connection, that derives a shared secret both peers hold.
package pairing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/schollz/pake/v3"

	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
)

const maxMessageSize = 64 * 1024

// confirmationTranscript is the fixed label both sides MAC once the
// shared key is derived, proving they computed the same key without
// revealing it.
const confirmationTranscript = "stoq-pairing-confirmation"

// State wraps an in-progress PAKE exchange for one side of a pairing.
type State struct {
	p *pake.Pake
}

// Initialize starts the PAKE protocol with the given shared code.
// isServer selects the role: the node that generated and displayed the
// code is the server side.
func Initialize(code string, isServer bool) (*State, error) {
	role := 0
	if isServer {
		role = 1
	}
	p, err := pake.InitCurve([]byte(code), role, "p256")
	if err != nil {
		return nil, err
	}
	return &State{p: p}, nil
}

// Bytes returns the public message to send to the peer.
func (s *State) Bytes() []byte {
	return s.p.Bytes()
}

// ComputeSharedKey processes the peer's message and returns the
// resulting 32-byte shared key.
func (s *State) ComputeSharedKey(peerMessage []byte) ([]byte, error) {
	if err := s.p.Update(peerMessage); err != nil {
		return nil, err
	}
	return s.p.SessionKey()
}

// GenerateConfirmation computes an HMAC of message under key, used by
// each side to prove it derived the same shared key.
func GenerateConfirmation(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// VerifyConfirmation checks a peer-supplied confirmation HMAC.
func VerifyConfirmation(key, message, confirmation []byte) error {
	expected := GenerateConfirmation(key, message)
	if !hmac.Equal(expected, confirmation) {
		return errors.New("pairing: key confirmation failed")
	}
	return nil
}

// GenerateToken returns a secure 32-byte hex-encoded bootstrap token.
func GenerateToken(randReader io.Reader) (string, error) {
	if randReader == nil {
		randReader = rand.Reader
	}
	b := make([]byte, 32)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Bootstrap runs a full PAKE pairing exchange over rw, which should be
// the first QUIC stream opened after the TLS handshake completes, and
// returns the derived shared key once both sides have confirmed it. It
// blocks until the exchange either succeeds or fails; a confirmation
// mismatch returns a KindPairingFailed error rather than attempting to
// interpret it as a transport-level failure.
func Bootstrap(rw io.ReadWriter, code string, isServer bool) ([]byte, error) {
	state, err := Initialize(code, isServer)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindPairingFailed, "initialize pake state", err)
	}

	if err := writeFrame(rw, state.Bytes()); err != nil {
		return nil, err
	}
	peerMsg, err := readFrame(rw)
	if err != nil {
		return nil, err
	}

	key, err := state.ComputeSharedKey(peerMsg)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindPairingFailed, "compute shared key", err)
	}

	transcript := []byte(confirmationTranscript)
	if err := writeFrame(rw, GenerateConfirmation(key, transcript)); err != nil {
		return nil, err
	}
	peerConfirmation, err := readFrame(rw)
	if err != nil {
		return nil, err
	}
	if err := VerifyConfirmation(key, transcript, peerConfirmation); err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindPairingFailed, "verify peer confirmation", err)
	}

	return key, nil
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "write pairing frame length", err)
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "write pairing frame", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "read pairing frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessageSize {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindPairingFailed, "pairing frame too large", nil)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "read pairing frame", err)
	}
	return buf, nil
}

// GenerateCode returns a short human-readable pairing code in the
// format NNNNNN (six decimal digits), meant to be read aloud or typed
// by a user during an out-of-band pairing step.
func GenerateCode(randReader io.Reader) (string, error) {
	if randReader == nil {
		randReader = rand.Reader
	}
	n, err := rand.Int(randReader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
