package dhcp

import (
	"net"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Modifier adjusts a packet under construction.
type Modifier func(*Packet)

// NewRequest builds a client BOOTREQUEST with every fixed field at its default:
// Ethernet hardware type, zero addresses, zero sname/file. Modifiers run in order,
// so options appear on the wire in the order they were supplied.
func NewRequest(xid uint32, mac net.HardwareAddr, mods ...Modifier) *Packet {
	p := &Packet{
		Op:     dhcpv4.OpCodeBootRequest,
		HType:  dhcpv4.HardwareTypeEthernet,
		HLen:   byte(len(mac)),
		XID:    xid,
		CIAddr: net.IPv4zero.To4(),
		YIAddr: net.IPv4zero.To4(),
		SIAddr: net.IPv4zero.To4(),
		GIAddr: net.IPv4zero.To4(),
		CHAddr: append(net.HardwareAddr(nil), mac...),
	}
	for _, mod := range mods {
		mod(p)
	}
	return p
}

// WithOption appends a raw option.
func WithOption(code dhcpv4.OptionCode, value []byte) Modifier {
	return func(p *Packet) {
		v := make([]byte, len(value))
		copy(v, value)
		p.Options = append(p.Options, Option{Code: code, Value: v})
	}
}

// WithMessageType appends option 53.
func WithMessageType(mt dhcpv4.MessageType) Modifier {
	return WithOption(dhcpv4.OptionDHCPMessageType, []byte{byte(mt)})
}

// WithRequestedIP appends option 50. A nil or unspecified address is skipped.
func WithRequestedIP(ip net.IP) Modifier {
	return func(p *Packet) {
		if dhcpv4.IsUnspecified(ip) || ip.To4() == nil {
			return
		}
		WithOption(dhcpv4.OptionRequestedIP, dhcpv4.IPv4Bytes(ip))(p)
	}
}

// WithServerIdentifier appends option 54.
func WithServerIdentifier(ip net.IP) Modifier {
	return WithOption(dhcpv4.OptionServerIdentifier, dhcpv4.IPv4Bytes(ip))
}

// WithClientID appends option 61 derived from the hardware address.
func WithClientID(mac net.HardwareAddr) Modifier {
	return WithOption(dhcpv4.OptionClientIdentifier, dhcpv4.ClientIDFromMAC(mac))
}

// WithHostname appends option 12 when name is non-empty.
func WithHostname(name string) Modifier {
	return func(p *Packet) {
		if name == "" {
			return
		}
		WithOption(dhcpv4.OptionHostname, []byte(name))(p)
	}
}

// WithParameterRequestList appends option 55 when codes is non-empty.
func WithParameterRequestList(codes []dhcpv4.OptionCode) Modifier {
	return func(p *Packet) {
		if len(codes) == 0 {
			return
		}
		v := make([]byte, len(codes))
		for i, c := range codes {
			v[i] = byte(c)
		}
		WithOption(dhcpv4.OptionParameterRequestList, v)(p)
	}
}

// WithMaxMessageSize appends option 57. size counts the IP and UDP headers.
func WithMaxMessageSize(size uint16) Modifier {
	return func(p *Packet) {
		if size == 0 {
			return
		}
		WithOption(dhcpv4.OptionMaxDHCPMessageSize, dhcpv4.Uint16Bytes(size))(p)
	}
}

// WithBroadcast sets or clears the BROADCAST flag.
func WithBroadcast(on bool) Modifier {
	return func(p *Packet) {
		if on {
			p.Flags |= dhcpv4.FlagBroadcast
		} else {
			p.Flags &^= dhcpv4.FlagBroadcast
		}
	}
}

// WithSecs sets the seconds-elapsed field.
func WithSecs(secs uint16) Modifier {
	return func(p *Packet) {
		p.Secs = secs
	}
}

// WithOptions appends already-validated options in order.
func WithOptions(opts Options) Modifier {
	return func(p *Packet) {
		p.Options = append(p.Options, opts.Clone()...)
	}
}
