package network

import (
	"fmt"
	"net"

	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
)

// ValidateIPv6Endpoint rejects any endpoint that is not a valid IPv6
// address. STOQ is IPv6-only: IPv4 addresses, including IPv4-mapped
// IPv6 addresses, are refused.
func ValidateIPv6Endpoint(ip net.IP) error {
	if ip == nil {
		return stoqerrors.NewTransportError(stoqerrors.KindUnsupportedAddressFamily, "endpoint address is nil", nil)
	}
	if ip.To4() != nil {
		return stoqerrors.NewTransportError(
			stoqerrors.KindUnsupportedAddressFamily,
			fmt.Sprintf("address %s is IPv4, STOQ requires IPv6", ip),
			nil,
		)
	}
	if ip.To16() == nil {
		return stoqerrors.NewTransportError(
			stoqerrors.KindUnsupportedAddressFamily,
			fmt.Sprintf("address %s is not a valid IPv6 address", ip),
			nil,
		)
	}
	return nil
}

// DiscoverLANIPv6 finds a suitable global unicast, link-local or
// unique-local IPv6 address on the host. If interfaceName is non-empty, only that
// interface is considered.
func DiscoverLANIPv6(interfaceName string) (net.IP, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifs {
		if interfaceName != "" && iface.Name != interfaceName {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() != nil {
				continue
			}
			if isRoutableIPv6(ip) {
				return ip, nil
			}
		}
	}
	return nil, stoqerrors.NewTransportError(stoqerrors.KindUnsupportedAddressFamily, "no suitable LAN IPv6 address found", nil)
}

func isRoutableIPv6(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return false
	}
	return ip.IsGlobalUnicast() || ip.IsLinkLocalUnicast() || isUniqueLocal(ip)
}

func isUniqueLocal(ip net.IP) bool {
	ip16 := ip.To16()
	return ip16 != nil && ip16[0]&0xfe == 0xfc
}
