package pq

import "testing"

func TestExportImportPublicKeyRoundTrip(t *testing.T) {
	engine := NewEngine(VariantFalcon512)
	_, pub, err := engine.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	pub.KeyID = "node-a"

	wire := ExportPublicKey(pub)
	imported, err := ImportPublicKey(wire)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if imported.Variant != pub.Variant {
		t.Errorf("variant mismatch")
	}
	if imported.KeyID != "node-a" {
		t.Errorf("expected key id to round trip, got %q", imported.KeyID)
	}
	if string(imported.KeyData) != string(pub.KeyData) {
		t.Error("key data mismatch")
	}
}

func TestExportImportPublicKeyWithoutKeyID(t *testing.T) {
	engine := NewEngine(VariantFalcon1024)
	_, pub, err := engine.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	wire := ExportPublicKey(pub)
	imported, err := ImportPublicKey(wire)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.KeyID != "" {
		t.Errorf("expected no key id, got %q", imported.KeyID)
	}
}

func TestImportPublicKeyRejectsShortBuffer(t *testing.T) {
	if _, err := ImportPublicKey([]byte{0, 0, 0}); err == nil {
		t.Error("expected error for undersized buffer")
	}
}
