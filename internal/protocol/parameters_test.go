package protocol

import (
	"bytes"
	"testing"
)

func TestParameterWireRoundTrip(t *testing.T) {
	params := Parameters{
		ExtensionsEnabled: true,
		FalconEnabled:     true,
		FalconPublicKey:   []byte{1, 2, 3, 4, 5},
		MaxShardSize:      2048,
		TokenAlgorithm:    TokenAlgorithmBlake3,
		Custom:            map[uint64][]byte{},
	}

	encoded, err := params.EncodeWire()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoding")
	}

	decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.ExtensionsEnabled != params.ExtensionsEnabled {
		t.Errorf("extensions_enabled mismatch")
	}
	if decoded.FalconEnabled != params.FalconEnabled {
		t.Errorf("falcon_enabled mismatch")
	}
	if !bytes.Equal(decoded.FalconPublicKey, params.FalconPublicKey) {
		t.Errorf("falcon_public_key mismatch: got %v, want %v", decoded.FalconPublicKey, params.FalconPublicKey)
	}
	if decoded.MaxShardSize != params.MaxShardSize {
		t.Errorf("max_shard_size mismatch: got %d, want %d", decoded.MaxShardSize, params.MaxShardSize)
	}
	if decoded.TokenAlgorithm != params.TokenAlgorithm {
		t.Errorf("token_algorithm mismatch: got %v, want %v", decoded.TokenAlgorithm, params.TokenAlgorithm)
	}
}

// TestParameterNegotiation mirrors the canonical client/server negotiation
// scenario: client offers a large shard size and SHA-256, server caps the
// shard size and mandates BLAKE3 while contributing its Falcon public key.
func TestParameterNegotiation(t *testing.T) {
	client := Parameters{
		ExtensionsEnabled: true,
		FalconEnabled:     true,
		MaxShardSize:      9000,
		TokenAlgorithm:    TokenAlgorithmSha256,
		Custom:            map[uint64][]byte{},
	}

	server := Parameters{
		ExtensionsEnabled: true,
		FalconEnabled:     true,
		FalconPublicKey:   []byte{10, 20, 30},
		MaxShardSize:      1500,
		TokenAlgorithm:    TokenAlgorithmBlake3,
		Custom:            map[uint64][]byte{},
	}

	negotiated := Negotiate(client, server)

	if !negotiated.ExtensionsEnabled {
		t.Error("expected extensions enabled")
	}
	if !negotiated.FalconEnabled {
		t.Error("expected falcon enabled")
	}
	if negotiated.MaxShardSize != 1500 {
		t.Errorf("expected negotiated max_shard_size 1500, got %d", negotiated.MaxShardSize)
	}
	if negotiated.TokenAlgorithm != TokenAlgorithmBlake3 {
		t.Errorf("expected negotiated token_algorithm blake3, got %v", negotiated.TokenAlgorithm)
	}
	if !bytes.Equal(negotiated.FalconPublicKey, []byte{10, 20, 30}) {
		t.Errorf("expected negotiated falcon_public_key [10 20 30], got %v", negotiated.FalconPublicKey)
	}
}

func TestParameterNegotiationDisablesOnDisagreement(t *testing.T) {
	client := DefaultParameters()
	client.ExtensionsEnabled = true
	client.FalconEnabled = true

	server := DefaultParameters()
	server.ExtensionsEnabled = true
	server.FalconEnabled = false

	negotiated := Negotiate(client, server)
	if negotiated.FalconEnabled {
		t.Error("expected falcon disabled when either side declines")
	}
}

func TestParameterNegotiationMergesCustomServerWins(t *testing.T) {
	client := DefaultParameters()
	client.Custom[0xfe10] = []byte("client-value")

	server := DefaultParameters()
	server.Custom[0xfe10] = []byte("server-value")
	server.Custom[0xfe11] = []byte("server-only")

	negotiated := Negotiate(client, server)
	if string(negotiated.Custom[0xfe10]) != "server-value" {
		t.Errorf("expected server value to win conflict, got %q", negotiated.Custom[0xfe10])
	}
	if string(negotiated.Custom[0xfe11]) != "server-only" {
		t.Errorf("expected server-only custom param to be present")
	}
}

func TestParameterCompatibility(t *testing.T) {
	a := DefaultParameters()
	a.ExtensionsEnabled = true
	a.FalconEnabled = false

	b := DefaultParameters()
	b.ExtensionsEnabled = true
	b.FalconEnabled = false

	if !a.IsCompatible(b) {
		t.Error("expected compatible parameter sets")
	}

	c := DefaultParameters()
	c.ExtensionsEnabled = false

	if a.IsCompatible(c) {
		t.Error("expected incompatible parameter sets when extensions disagree")
	}
}

func TestTokenAlgorithmFromIDRejectsUnknown(t *testing.T) {
	if _, ok := TokenAlgorithmFromID(99); ok {
		t.Error("expected unknown token algorithm id to be rejected")
	}
}
