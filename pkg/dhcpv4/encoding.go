package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IPv4Bytes returns ip as four fresh bytes; anything that is not IPv4 becomes 0.0.0.0.
func IPv4Bytes(ip net.IP) []byte {
	if ip4 := ip.To4(); ip4 != nil {
		return append(make([]byte, 0, 4), ip4...)
	}
	return make([]byte, 4)
}

// ParseIPv4 reads a 4-byte address value. It returns nil for any other length.
func ParseIPv4(b []byte) net.IP {
	if len(b) != 4 {
		return nil
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}

// ParseIPv4List reads an address list option (routers, DNS servers).
func ParseIPv4List(b []byte) ([]net.IP, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("address list of %d bytes is not a multiple of 4", len(b))
	}
	var ips []net.IP
	for ; len(b) > 0; b = b[4:] {
		ips = append(ips, ParseIPv4(b[:4]))
	}
	return ips, nil
}

// Uint16Bytes encodes v in network byte order.
func Uint16Bytes(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// ParseUint32 reads a 4-byte network-order value such as a lease time.
func ParseUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("32-bit value has %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// IsUnspecified reports whether ip is absent or 0.0.0.0.
func IsUnspecified(ip net.IP) bool {
	return len(ip) == 0 || ip.Equal(net.IPv4zero)
}

// ClientIDFromMAC builds an option 61 value: hardware type, then the address (RFC 2132 §9.14).
func ClientIDFromMAC(mac net.HardwareAddr) []byte {
	return append([]byte{byte(HardwareTypeEthernet)}, mac...)
}

// CIDRRoute is one classless static route from option 121.
type CIDRRoute struct {
	Destination net.IP
	PrefixLen   int
	Gateway     net.IP
}

func (r CIDRRoute) String() string {
	return fmt.Sprintf("%s/%d via %s", r.Destination, r.PrefixLen, r.Gateway)
}

// ParseClasslessRoutes decodes option 121 (RFC 3442). Each entry is a prefix
// length, the significant destination octets, then a 4-byte gateway.
func ParseClasslessRoutes(b []byte) ([]CIDRRoute, error) {
	var routes []CIDRRoute
	for off := 0; len(b) > 0; {
		bits := int(b[0])
		if bits > 32 {
			return nil, fmt.Errorf("route at offset %d: prefix length %d", off, bits)
		}
		n := 1 + (bits+7)/8
		if len(b) < n+4 {
			return nil, fmt.Errorf("route at offset %d: truncated", off)
		}

		var dst [4]byte
		copy(dst[:], b[1:n])
		routes = append(routes, CIDRRoute{
			Destination: net.IP(dst[:]).Mask(net.CIDRMask(bits, 32)),
			PrefixLen:   bits,
			Gateway:     ParseIPv4(b[n : n+4]),
		})

		b = b[n+4:]
		off += n + 4
	}
	return routes, nil
}

// FormatXID renders a transaction id the way it appears in packet captures.
func FormatXID(xid uint32) string {
	return fmt.Sprintf("0x%08x", xid)
}
