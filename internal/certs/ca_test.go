package certs

import (
	"context"
	"net"
	"testing"
)

func TestStaticCAAcceptsKnownFingerprint(t *testing.T) {
	cert, err := GenerateSelfSigned(net.IPv6loopback, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	fp := fingerprintHex(cert.Leaf)
	ca := NewStaticCA([]string{fp})

	if err := ca.Validate(context.Background(), cert.Leaf, "peer-1"); err != nil {
		t.Errorf("expected known fingerprint to validate, got %v", err)
	}
}

func TestStaticCARejectsUnknownFingerprint(t *testing.T) {
	cert, err := GenerateSelfSigned(net.IPv6loopback, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	ca := NewStaticCA([]string{"deadbeef"})
	if err := ca.Validate(context.Background(), cert.Leaf, "peer-1"); err == nil {
		t.Error("expected unknown fingerprint to be rejected")
	}
}

func TestVerifyWithCARejectsEmptyCertList(t *testing.T) {
	ca := NewStaticCA(nil)
	verify := VerifyWithCA(context.Background(), ca, "peer-1")
	if err := verify(nil, nil); err == nil {
		t.Error("expected empty certificate list to be rejected")
	}
}
