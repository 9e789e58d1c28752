// Package netutil provides the address formatting and raw socket-option
// helpers the core's Acceptor and Connection need. It is IPv4-only, per the
// core's Non-goals: the wire-level address handling never produces or
// accepts an IPv6 result.
package netutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Address is an IPv4 dotted-quad host plus a 16-bit port, formatted as the
// canonical "A.B.C.D:P" string.
type Address struct {
	IP   [4]byte
	Port uint16
}

// String renders the canonical "A.B.C.D:P" form.
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// ParseAddress parses the canonical "A.B.C.D:P" form, or a bare host:port
// that resolves to an IPv4 address. Any IPv6 result is rejected so that
// ParseAddress(a.String()) == a for every Address a produced by this
// package.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("netutil: %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("netutil: invalid port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return Address{}, fmt.Errorf("netutil: resolve %q: %w", host, err)
		}
		ip = firstIPv4(ips)
		if ip == nil {
			return Address{}, fmt.Errorf("netutil: %q has no IPv4 address", host)
		}
	}
	v4 := ip.To4()
	if v4 == nil {
		return Address{}, fmt.Errorf("netutil: %q resolved to an IPv6 address, which is unsupported", host)
	}
	var a Address
	copy(a.IP[:], v4)
	a.Port = uint16(port)
	return a, nil
}

func firstIPv4(ips []net.IP) net.IP {
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return ip
		}
	}
	return nil
}

// SockaddrInet4 converts the Address to the raw sockaddr the unix package
// syscalls expect.
func (a Address) SockaddrInet4() *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: int(a.Port)}
	sa.Addr = a.IP
	return sa
}

// FromSockaddrInet4 converts a raw sockaddr back into an Address.
func FromSockaddrInet4(sa *unix.SockaddrInet4) Address {
	return Address{IP: sa.Addr, Port: uint16(sa.Port)}
}

// IsIPv6 reports whether network carries an explicit IPv6 suffix ("tcp6").
// The core's listen path takes no network name and does not call it; IPv6
// listen addresses are rejected by ParseAddress instead.
func IsIPv6(network string) bool {
	return strings.HasSuffix(network, "6")
}
