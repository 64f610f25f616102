package extensions

import (
	"testing"

	"github.com/stoq-transport/stoq/internal/protocol"
)

func TestTokenValidation(t *testing.T) {
	data := []byte("test packet data")
	token := NewToken(protocol.TokenAlgorithmSha256, data, 1)

	if !ValidateToken(protocol.TokenAlgorithmSha256, data, token) {
		t.Error("expected token to validate against original data")
	}
	if ValidateToken(protocol.TokenAlgorithmSha256, []byte("different data"), token) {
		t.Error("expected token to reject different data")
	}
}

func TestTokenValidationAcrossAlgorithms(t *testing.T) {
	algs := []protocol.TokenAlgorithm{
		protocol.TokenAlgorithmSha256,
		protocol.TokenAlgorithmSha384,
		protocol.TokenAlgorithmSha3_256,
		protocol.TokenAlgorithmBlake3,
	}
	data := []byte("cross algorithm test data")

	for _, alg := range algs {
		token := NewToken(alg, data, 0)
		if !ValidateToken(alg, data, token) {
			t.Errorf("algorithm %v: token failed to validate", alg)
		}
	}
}

func TestServiceTokenizeIncrementsSequence(t *testing.T) {
	svc := NewService(protocol.TokenAlgorithmSha256, nil, false)
	data := []byte("packet")

	t1 := svc.TokenizePacket(data)
	t2 := svc.TokenizePacket(data)

	if t1.Sequence == t2.Sequence {
		t.Error("expected sequence numbers to increment")
	}
	if !svc.ValidateToken(data, t1) {
		t.Error("expected first token to validate")
	}
}
