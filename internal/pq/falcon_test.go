package pq

import (
	"bytes"
	"testing"
)

func TestEngineSignVerifyRoundTrip(t *testing.T) {
	for _, variant := range []Variant{VariantFalcon512, VariantFalcon1024} {
		variant := variant
		t.Run(variant.String(), func(t *testing.T) {
			engine := NewEngine(variant)

			priv, pub, err := engine.GenerateKeypair()
			if err != nil {
				t.Fatalf("generate keypair: %v", err)
			}

			data := []byte("handshake transcript bytes")
			sig, err := engine.Sign(priv, data)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}

			ok, err := engine.Verify(pub, sig, data)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if !ok {
				t.Error("expected signature to verify")
			}
		})
	}
}

func TestEngineVerifyRejectsTamperedData(t *testing.T) {
	engine := NewEngine(VariantFalcon512)
	priv, pub, err := engine.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	sig, err := engine.Sign(priv, []byte("original"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := engine.Verify(pub, sig, []byte("tampered"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("expected signature to fail verification against different data")
	}
}

func TestEngineSignRejectsVariantMismatch(t *testing.T) {
	engine512 := NewEngine(VariantFalcon512)
	engine1024 := NewEngine(VariantFalcon1024)

	priv, _, err := engine512.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	if _, err := engine1024.Sign(priv, []byte("data")); err == nil {
		t.Error("expected variant mismatch error")
	}
}

func TestNewPublicKeyRejectsWrongSize(t *testing.T) {
	if _, err := NewPublicKey(VariantFalcon512, []byte("too short")); err == nil {
		t.Error("expected error for undersized public key")
	}
}

func TestExportImportSignatureRoundTrip(t *testing.T) {
	engine := NewEngine(VariantFalcon1024)
	priv, pub, err := engine.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	data := []byte("exported over the wire")
	sig, err := engine.Sign(priv, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	wire := ExportSignature(sig)
	if len(wire) < minSignatureWireLen {
		t.Fatalf("exported signature shorter than minimum: %d", len(wire))
	}

	imported, err := ImportSignature(wire)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if imported.Variant != sig.Variant {
		t.Errorf("variant mismatch: got %v, want %v", imported.Variant, sig.Variant)
	}
	if imported.MessageHash != sig.MessageHash {
		t.Error("message hash mismatch")
	}
	if !bytes.Equal(imported.SignatureData, sig.SignatureData) {
		t.Error("signature data mismatch")
	}

	ok, err := engine.Verify(pub, imported, data)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected re-imported signature to verify")
	}
}

func TestImportSignatureRejectsShortBuffer(t *testing.T) {
	if _, err := ImportSignature([]byte{0, 0, 1}); err == nil {
		t.Error("expected error for undersized buffer")
	}
}

func TestImportSignatureRejectsUnknownVariant(t *testing.T) {
	wire := make([]byte, minSignatureWireLen)
	wire[0] = 0xff
	if _, err := ImportSignature(wire); err == nil {
		t.Error("expected error for unknown variant byte")
	}
}

func TestTransportSignAndVerifyHandshake(t *testing.T) {
	server := NewTransport(VariantFalcon512)
	client := NewTransport(VariantFalcon512)

	serverPub, err := server.GenerateLocalKeypair()
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}
	client.AddTrustedKey("server", serverPub)

	transcript := []byte("client hello || server hello")
	sig, err := server.SignHandshakeData(transcript)
	if err != nil {
		t.Fatalf("sign handshake: %v", err)
	}

	ok, err := client.VerifyHandshakeSignature("server", transcript, sig)
	if err != nil {
		t.Fatalf("verify handshake: %v", err)
	}
	if !ok {
		t.Error("expected handshake signature to verify")
	}
}

func TestTransportVerifyRejectsUnknownKeyID(t *testing.T) {
	client := NewTransport(VariantFalcon512)
	_, err := client.VerifyHandshakeSignature("nobody", []byte("data"), &Signature{})
	if err == nil {
		t.Error("expected error verifying against unknown key id")
	}
}

func TestTransportSignWithoutLocalKeyFails(t *testing.T) {
	transport := NewTransport(VariantFalcon512)
	if _, err := transport.SignHandshakeData([]byte("data")); err == nil {
		t.Error("expected error signing without a local keypair")
	}
}
