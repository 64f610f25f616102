package network

import (
	"net"
	"testing"

	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
)

func TestValidateIPv6EndpointAccepts(t *testing.T) {
	if err := ValidateIPv6Endpoint(net.ParseIP("2001:db8::1")); err != nil {
		t.Errorf("expected valid IPv6 address to pass, got %v", err)
	}
}

func TestValidateIPv6EndpointRejectsIPv4(t *testing.T) {
	err := ValidateIPv6Endpoint(net.ParseIP("192.168.1.5"))
	if err == nil {
		t.Fatal("expected error for IPv4 address")
	}
	if !stoqerrors.IsKind(err, stoqerrors.KindUnsupportedAddressFamily) {
		t.Errorf("expected KindUnsupportedAddressFamily, got %v", err)
	}
}

func TestValidateIPv6EndpointRejectsNil(t *testing.T) {
	if err := ValidateIPv6Endpoint(nil); err == nil {
		t.Error("expected error for nil address")
	}
}

func TestIsUniqueLocal(t *testing.T) {
	if !isUniqueLocal(net.ParseIP("fd00::1")) {
		t.Error("expected fd00::1 to be unique local")
	}
	if isUniqueLocal(net.ParseIP("2001:db8::1")) {
		t.Error("expected 2001:db8::1 to not be unique local")
	}
}

func TestDiscoverLANIPv6InvalidInterface(t *testing.T) {
	_, err := DiscoverLANIPv6("nonexistent-interface-12345")
	if err == nil {
		t.Error("expected error for invalid interface")
	}
}
