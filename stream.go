package stoq

import (
	"io"

	"github.com/quic-go/quic-go"

	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
)

// Stream is a single bidirectional QUIC stream belonging to a
// Connection. Bytes written to a Stream arrive at the peer in write
// order; there is no ordering guarantee relative to any other stream
// or datagram on the same connection.
type Stream struct {
	id   uint64
	conn *Connection
	qs   *quic.Stream
}

// ID returns the QUIC stream identifier.
func (s *Stream) ID() uint64 {
	return s.id
}

// Read reads from the stream, returning io.EOF once the peer has
// finished writing.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.qs.Read(p)
	if err != nil && err != io.EOF {
		return n, stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "stream read", err)
	}
	return n, err
}

// Write writes to the stream.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.qs.Write(p)
	if err != nil {
		return n, stoqerrors.NewTransportError(stoqerrors.KindStreamIO, "stream write", err)
	}
	return n, nil
}

// Close closes the write side of the stream, signaling to the peer
// that no more data is coming.
func (s *Stream) Close() error {
	return s.qs.Close()
}

// CancelRead aborts the read side with the given application error
// code, used to discard a stream whose frame turned out malformed.
func (s *Stream) CancelRead(code uint64) {
	s.qs.CancelRead(quic.StreamErrorCode(code))
}
