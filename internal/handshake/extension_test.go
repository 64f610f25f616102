package handshake

import (
	"testing"

	"github.com/stoq-transport/stoq/internal/pq"
)

func setupTransport(t *testing.T, variant pq.Variant) *pq.Transport {
	t.Helper()
	transport := pq.NewTransport(variant)
	if _, err := transport.GenerateLocalKeypair(); err != nil {
		t.Fatalf("generate local keypair: %v", err)
	}
	return transport
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	serverTransport := setupTransport(t, pq.VariantFalcon1024)
	server := NewExtension(serverTransport, false, false)
	client := NewExtension(setupTransport(t, pq.VariantFalcon512), false, false)

	handshakeData := []byte("client-hello || server-hello")
	sig, err := server.AddSignature(handshakeData)
	if err != nil {
		t.Fatalf("add signature: %v", err)
	}
	if len(sig) == 0 {
		t.Fatal("expected non-empty signature")
	}

	keyWire, ok := server.ExportPublicKey()
	if !ok {
		t.Fatal("expected server to export a public key")
	}
	if err := client.ImportPeerKey("server", keyWire); err != nil {
		t.Fatalf("import peer key: %v", err)
	}

	valid, err := client.VerifySignature("server", sig, handshakeData)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid {
		t.Error("expected signature to verify")
	}
}

func TestAddSignatureWithoutTransportRequiredFails(t *testing.T) {
	ext := NewExtension(nil, true, false)
	if _, err := ext.AddSignature([]byte("data")); err == nil {
		t.Error("expected error when post-quantum signing is required but unavailable")
	}
}

func TestAddSignatureWithoutTransportOptionalSucceeds(t *testing.T) {
	ext := NewExtension(nil, false, false)
	sig, err := ext.AddSignature([]byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Error("expected nil signature when post-quantum signing is optional and unavailable")
	}
}

func TestVerifySignatureUnknownPeerFails(t *testing.T) {
	transport := setupTransport(t, pq.VariantFalcon512)
	ext := NewExtension(transport, false, false)

	dummySignature := make([]byte, 43) // minimum valid wire length, content irrelevant to this path
	valid, err := ext.VerifySignature("nobody", dummySignature, []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if valid {
		t.Error("expected verification against unknown peer to fail")
	}
}

func TestHybridAuthenticatorRoundTrip(t *testing.T) {
	serverTransport := setupTransport(t, pq.VariantFalcon512)
	server := NewExtension(serverTransport, false, true)
	client := NewExtension(setupTransport(t, pq.VariantFalcon512), false, true)

	keyWire, _ := server.ExportPublicKey()
	if err := client.ImportPeerKey("server", keyWire); err != nil {
		t.Fatalf("import peer key: %v", err)
	}

	tlsData := []byte("tls-transcript-bytes")
	auth, err := server.CreateHybridAuthenticator(tlsData)
	if err != nil {
		t.Fatalf("create authenticator: %v", err)
	}

	valid, err := client.VerifyHybridAuthenticator("server", auth, tlsData)
	if err != nil {
		t.Fatalf("verify authenticator: %v", err)
	}
	if !valid {
		t.Error("expected hybrid authenticator to verify")
	}
}

func TestHybridAuthenticatorRejectsTLSMismatch(t *testing.T) {
	serverTransport := setupTransport(t, pq.VariantFalcon512)
	server := NewExtension(serverTransport, false, true)
	client := NewExtension(nil, false, true)

	keyWire, _ := server.ExportPublicKey()
	_ = client.ImportPeerKey("server", keyWire)

	auth, err := server.CreateHybridAuthenticator([]byte("original"))
	if err != nil {
		t.Fatalf("create authenticator: %v", err)
	}

	valid, err := client.VerifyHybridAuthenticator("server", auth, []byte("tampered"))
	if err != nil {
		t.Fatalf("verify authenticator: %v", err)
	}
	if valid {
		t.Error("expected TLS mismatch to fail verification")
	}
}
