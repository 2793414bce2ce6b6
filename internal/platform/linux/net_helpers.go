package linux

import (
	"fmt"
	"net"
)

// netInterfaceByName resolves an interface name to its kernel index without
// pulling netlink into the dbus call path.
func netInterfaceByName(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	return iface.Index, nil
}

// parseDNSAddr splits a textual IP into the (family, raw bytes) pair the
// resolve1 SetLinkDNS D-Bus call expects: family is AF_INET (2) or AF_INET6
// (10), bytes is the 4- or 16-byte address.
func parseDNSAddr(s string) (family int32, addr []byte, err error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, nil, fmt.Errorf("linux dns: invalid address %q", s)
	}
	if v4 := ip.To4(); v4 != nil {
		return 2, v4, nil
	}
	return 10, ip.To16(), nil
}
