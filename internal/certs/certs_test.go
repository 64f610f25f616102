package certs

import (
	"net"
	"testing"
	"time"
)

func TestGenerateSelfSigned(t *testing.T) {
	cert, err := GenerateSelfSigned(net.IPv6loopback, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("expected parsed leaf certificate")
	}
	if !cert.Leaf.NotAfter.After(time.Now()) {
		t.Error("expected certificate to be valid now")
	}

	found := false
	for _, ip := range cert.Leaf.IPAddresses {
		if ip.Equal(net.IPv6loopback) {
			found = true
		}
	}
	if !found {
		t.Error("expected certificate to cover the bound IPv6 address")
	}
}

func TestGenerateSelfSignedDefaultsValidity(t *testing.T) {
	cert, err := GenerateSelfSigned(nil, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if cert.Leaf.NotAfter.Sub(cert.Leaf.NotBefore) != DefaultValidity {
		t.Errorf("expected default validity %v, got %v", DefaultValidity, cert.Leaf.NotAfter.Sub(cert.Leaf.NotBefore))
	}
}

func TestTLSConfig(t *testing.T) {
	cfg, err := TLSConfig(net.IPv6loopback, []string{"stoq/1"})
	if err != nil {
		t.Fatalf("tls config: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(cfg.Certificates))
	}
	if cfg.NextProtos[0] != "stoq/1" {
		t.Errorf("expected ALPN protocol to be set")
	}
}
