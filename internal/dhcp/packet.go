// Package dhcp implements the DHCPv4 packet model and its wire codec.
package dhcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Decode errors. Each is local to one datagram.
var (
	ErrTruncatedHeader = errors.New("truncated DHCP header")
	ErrBadCookie       = errors.New("invalid DHCP magic cookie")
	ErrTruncatedOption = errors.New("truncated DHCP option")
)

// Encode errors. These are caller mistakes, never wire conditions.
var (
	ErrOptionTooLong       = errors.New("DHCP option value exceeds 255 bytes")
	ErrReservedOption      = errors.New("PAD and END cannot be carried as options")
	ErrHardwareAddrTooLong = errors.New("hardware address exceeds 16 bytes")
)

// Packet represents a DHCPv4 packet (RFC 2131 §2).
type Packet struct {
	Op      dhcpv4.OpCode       // Message op code: 1=BOOTREQUEST, 2=BOOTREPLY
	HType   dhcpv4.HardwareType // Hardware address type (1=Ethernet)
	HLen    byte                // Hardware address length (6 for Ethernet)
	Hops    byte                // Relay hops
	XID     uint32              // Transaction ID
	Secs    uint16              // Seconds elapsed
	Flags   uint16              // Flags (bit 0 = broadcast)
	CIAddr  net.IP              // Client IP address
	YIAddr  net.IP              // 'Your' (client) IP address
	SIAddr  net.IP              // Next server IP address
	GIAddr  net.IP              // Relay agent IP address
	CHAddr  net.HardwareAddr    // Client hardware address, zero-padded to 16 bytes on the wire
	SName   [64]byte            // Server host name
	File    [128]byte           // Boot file name
	Options Options             // DHCP options, in wire order
}

// DecodePacket parses a raw DHCPv4 packet from bytes.
// Packet format per RFC 2131 §2.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < dhcpv4.OptionsOffset {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrTruncatedHeader, len(data), dhcpv4.OptionsOffset)
	}

	// Validate magic cookie (RFC 2131 §3)
	cookie := data[dhcpv4.HeaderSize:dhcpv4.OptionsOffset]
	if !bytes.Equal(cookie, dhcpv4.MagicCookie) {
		return nil, fmt.Errorf("%w: % x", ErrBadCookie, cookie)
	}

	p := &Packet{}
	p.Op = dhcpv4.OpCode(data[0])
	p.HType = dhcpv4.HardwareType(data[1])
	p.HLen = data[2]
	p.Hops = data[3]
	p.XID = binary.BigEndian.Uint32(data[4:8])
	p.Secs = binary.BigEndian.Uint16(data[8:10])
	p.Flags = binary.BigEndian.Uint16(data[10:12])
	p.CIAddr = copyIP(data[12:16])
	p.YIAddr = copyIP(data[16:20])
	p.SIAddr = copyIP(data[20:24])
	p.GIAddr = copyIP(data[24:28])

	// Client hardware address (16 bytes in header, but only HLen are significant)
	hlen := int(p.HLen)
	if hlen > dhcpv4.CHAddrSize {
		hlen = dhcpv4.CHAddrSize
	}
	p.CHAddr = make(net.HardwareAddr, hlen)
	copy(p.CHAddr, data[28:28+hlen])

	copy(p.SName[:], data[44:108])
	copy(p.File[:], data[108:236])

	opts, err := DecodeOptions(data[dhcpv4.OptionsOffset:])
	if err != nil {
		return nil, err
	}
	p.Options = opts

	return p, nil
}

func copyIP(b []byte) net.IP {
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip
}

// Encode serializes the packet to exactly header + options + END, with no padding.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.CHAddr) > dhcpv4.CHAddrSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHardwareAddrTooLong, len(p.CHAddr))
	}

	optBytes, err := p.Options.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}

	buf := make([]byte, dhcpv4.OptionsOffset+len(optBytes))
	buf[0] = byte(p.Op)
	buf[1] = byte(p.HType)
	buf[2] = p.HLen
	buf[3] = p.Hops
	binary.BigEndian.PutUint32(buf[4:8], p.XID)
	binary.BigEndian.PutUint16(buf[8:10], p.Secs)
	binary.BigEndian.PutUint16(buf[10:12], p.Flags)

	if p.CIAddr != nil {
		copy(buf[12:16], p.CIAddr.To4())
	}
	if p.YIAddr != nil {
		copy(buf[16:20], p.YIAddr.To4())
	}
	if p.SIAddr != nil {
		copy(buf[20:24], p.SIAddr.To4())
	}
	if p.GIAddr != nil {
		copy(buf[24:28], p.GIAddr.To4())
	}
	copy(buf[28:44], p.CHAddr)
	copy(buf[44:108], p.SName[:])
	copy(buf[108:236], p.File[:])

	// Magic cookie
	copy(buf[dhcpv4.HeaderSize:dhcpv4.OptionsOffset], dhcpv4.MagicCookie)

	// Options
	copy(buf[dhcpv4.OptionsOffset:], optBytes)

	return buf, nil
}

// EncodePadded encodes the packet and zero-fills after END up to minSize bytes.
// Old BOOTP relays drop anything shorter than dhcpv4.MinPacketSize.
func (p *Packet) EncodePadded(minSize int) ([]byte, error) {
	buf, err := p.Encode()
	if err != nil {
		return nil, err
	}
	if len(buf) < minSize {
		buf = append(buf, make([]byte, minSize-len(buf))...)
	}
	return buf, nil
}

// MessageType returns the DHCP message type from option 53, or zero if it is
// absent, malformed or not a registered type.
func (p *Packet) MessageType() dhcpv4.MessageType {
	if data, ok := p.Options.Get(dhcpv4.OptionDHCPMessageType); ok && len(data) == 1 {
		if mt := dhcpv4.MessageType(data[0]); mt.Valid() {
			return mt
		}
	}
	return 0
}

// LeaseTime returns the lease duration from option 51.
func (p *Packet) LeaseTime() (time.Duration, bool) {
	return p.secondsOption(dhcpv4.OptionIPLeaseTime)
}

// RenewalTime returns T1 from option 58.
func (p *Packet) RenewalTime() (time.Duration, bool) {
	return p.secondsOption(dhcpv4.OptionRenewalTime)
}

// RebindingTime returns T2 from option 59.
func (p *Packet) RebindingTime() (time.Duration, bool) {
	return p.secondsOption(dhcpv4.OptionRebindingTime)
}

func (p *Packet) secondsOption(code dhcpv4.OptionCode) (time.Duration, bool) {
	data, ok := p.Options.Get(code)
	if !ok {
		return 0, false
	}
	secs, err := dhcpv4.ParseUint32(data)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// ServerIdentifier returns the server identifier from option 54.
func (p *Packet) ServerIdentifier() net.IP {
	if data, ok := p.Options.Get(dhcpv4.OptionServerIdentifier); ok && len(data) == 4 {
		return dhcpv4.ParseIPv4(data)
	}
	return nil
}

// RequestedIP returns the requested IP address from option 50.
func (p *Packet) RequestedIP() net.IP {
	if data, ok := p.Options.Get(dhcpv4.OptionRequestedIP); ok && len(data) == 4 {
		return dhcpv4.ParseIPv4(data)
	}
	return nil
}

// AssignedAddress returns yiaddr. It is always present and may be 0.0.0.0.
func (p *Packet) AssignedAddress() net.IP {
	if p.YIAddr == nil {
		return net.IPv4zero.To4()
	}
	return copyIP(p.YIAddr.To4())
}

// SubnetMask returns option 1.
func (p *Packet) SubnetMask() net.IPMask {
	if data, ok := p.Options.Get(dhcpv4.OptionSubnetMask); ok && len(data) == 4 {
		return net.IPv4Mask(data[0], data[1], data[2], data[3])
	}
	return nil
}

// Routers returns option 3.
func (p *Packet) Routers() []net.IP {
	return p.ipListOption(dhcpv4.OptionRouter)
}

// DNSServers returns option 6.
func (p *Packet) DNSServers() []net.IP {
	return p.ipListOption(dhcpv4.OptionDomainNameServer)
}

func (p *Packet) ipListOption(code dhcpv4.OptionCode) []net.IP {
	data, ok := p.Options.Get(code)
	if !ok {
		return nil
	}
	ips, err := dhcpv4.ParseIPv4List(data)
	if err != nil {
		return nil
	}
	return ips
}

// DomainName returns option 15.
func (p *Packet) DomainName() string {
	if data, ok := p.Options.Get(dhcpv4.OptionDomainName); ok {
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

// Message returns the server's error text from option 56, typically on a NAK.
func (p *Packet) Message() string {
	if data, ok := p.Options.Get(dhcpv4.OptionMessage); ok {
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

// StaticRoutes returns the classless static routes from option 121.
func (p *Packet) StaticRoutes() []dhcpv4.CIDRRoute {
	data, ok := p.Options.Get(dhcpv4.OptionClasslessStaticRoute)
	if !ok {
		return nil
	}
	routes, err := dhcpv4.ParseClasslessRoutes(data)
	if err != nil {
		return nil
	}
	return routes
}

// IsBroadcast returns true if the broadcast flag is set.
func (p *Packet) IsBroadcast() bool {
	return p.Flags&dhcpv4.FlagBroadcast != 0
}

// Summary returns a one-line description for debug logging.
func (p *Packet) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s xid=%s chaddr=%s yiaddr=%s", p.MessageType(), dhcpv4.FormatXID(p.XID), p.CHAddr, p.AssignedAddress())
	for _, o := range p.Options {
		b.WriteString(" ")
		b.WriteString(o.String())
	}
	return b.String()
}
