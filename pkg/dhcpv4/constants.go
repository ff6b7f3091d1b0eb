// Package dhcpv4 provides constants and encoding helpers for DHCPv4 packets.
package dhcpv4

import "net"

// MessageType is the value of option 53 (RFC 2132 §9.6).
type MessageType byte

const (
	MessageTypeDiscover MessageType = iota + 1
	MessageTypeOffer
	MessageTypeRequest
	MessageTypeDecline
	MessageTypeAck
	MessageTypeNak
	MessageTypeRelease
	MessageTypeInform
)

var messageTypeNames = [...]string{
	MessageTypeDiscover: "DHCPDISCOVER",
	MessageTypeOffer:    "DHCPOFFER",
	MessageTypeRequest:  "DHCPREQUEST",
	MessageTypeDecline:  "DHCPDECLINE",
	MessageTypeAck:      "DHCPACK",
	MessageTypeNak:      "DHCPNAK",
	MessageTypeRelease:  "DHCPRELEASE",
	MessageTypeInform:   "DHCPINFORM",
}

func (m MessageType) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return messageTypeNames[m]
}

// Valid reports whether m is one of the eight registered message types.
func (m MessageType) Valid() bool {
	return m >= MessageTypeDiscover && m <= MessageTypeInform
}

// DHCP Op Codes (RFC 2131 §2)
type OpCode byte

const (
	OpCodeBootRequest OpCode = 1 // BOOTREQUEST
	OpCodeBootReply   OpCode = 2 // BOOTREPLY
)

// Hardware Types (RFC 1700)
type HardwareType byte

const (
	HardwareTypeEthernet HardwareType = 1
)

// DHCP Option Codes (RFC 2132 and extensions)
type OptionCode byte

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionTimeOffset           OptionCode = 2
	OptionRouter               OptionCode = 3
	OptionTimeServer           OptionCode = 4
	OptionNameServer           OptionCode = 5
	OptionDomainNameServer     OptionCode = 6
	OptionLogServer            OptionCode = 7
	OptionHostname             OptionCode = 12
	OptionDomainName           OptionCode = 15
	OptionInterfaceMTU         OptionCode = 26
	OptionBroadcastAddress     OptionCode = 28
	OptionStaticRoute          OptionCode = 33
	OptionNTPServers           OptionCode = 42
	OptionVendorSpecific       OptionCode = 43
	OptionRequestedIP          OptionCode = 50
	OptionIPLeaseTime          OptionCode = 51
	OptionOverload             OptionCode = 52
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionMessage              OptionCode = 56
	OptionMaxDHCPMessageSize   OptionCode = 57
	OptionRenewalTime          OptionCode = 58
	OptionRebindingTime        OptionCode = 59
	OptionVendorClassID        OptionCode = 60
	OptionClientIdentifier     OptionCode = 61
	OptionClientFQDN           OptionCode = 81
	OptionClasslessStaticRoute OptionCode = 121
	OptionEnd                  OptionCode = 255
)

// Wire layout (RFC 2131 §2). All offsets are from the start of the UDP payload.
const (
	HeaderSize    = 236 // fixed fields up to and including file
	OptionsOffset = 240 // HeaderSize + magic cookie
	CHAddrSize    = 16
	SNameSize     = 64
	FileSize      = 128
)

// DHCP Packet Size Limits
const (
	MinPacketSize     = 300  // BOOTP minimum, still expected by some relays
	MaxPacketSize     = 1500 // Maximum DHCP packet size (Ethernet MTU)
	DefaultPacketSize = 576  // Default max packet size (RFC 2131 §2)
	IPUDPHeaderSize   = 28   // IPv4 (20) + UDP (8), counted by option 57
)

// MaxOptionLength is the largest value a single option can carry.
const MaxOptionLength = 255

// FlagBroadcast is the BROADCAST bit of the flags field (RFC 2131 §2, figure 2).
const FlagBroadcast uint16 = 0x8000

// DHCP Ports
const (
	ServerPort = 67
	ClientPort = 68
)

// MagicCookie opens the options field (RFC 2131 §3).
var MagicCookie = []byte{99, 130, 83, 99}

var (
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	BroadcastIP  = net.IPv4(255, 255, 255, 255)
	ZeroIP       = net.IPv4(0, 0, 0, 0)
)

// DefaultParameterRequestList is what the client asks servers to include.
var DefaultParameterRequestList = []OptionCode{
	OptionSubnetMask,
	OptionRouter,
	OptionDomainNameServer,
	OptionDomainName,
	OptionIPLeaseTime,
	OptionRenewalTime,
	OptionRebindingTime,
	OptionClasslessStaticRoute,
}
