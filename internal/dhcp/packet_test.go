package dhcp

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// buildTestReply builds a minimal server reply with the given options appended
// after the cookie, without an END marker.
func buildTestReply(xid uint32, yiaddr net.IP, opts ...byte) []byte {
	pkt := make([]byte, dhcpv4.OptionsOffset, dhcpv4.OptionsOffset+len(opts))
	pkt[0] = byte(dhcpv4.OpCodeBootReply)
	pkt[1] = byte(dhcpv4.HardwareTypeEthernet)
	pkt[2] = 6 // HLen

	// XID
	pkt[4] = byte(xid >> 24)
	pkt[5] = byte(xid >> 16)
	pkt[6] = byte(xid >> 8)
	pkt[7] = byte(xid)

	copy(pkt[16:20], yiaddr.To4())
	copy(pkt[28:34], []byte{0x10, 0x7b, 0x44, 0x93, 0xe6, 0xd0})
	copy(pkt[236:240], dhcpv4.MagicCookie)
	return append(pkt, opts...)
}

func TestEncodeDiscoverScenario(t *testing.T) {
	mac := net.HardwareAddr{0x10, 0x7B, 0x44, 0x93, 0xE6, 0xD0}
	p := NewRequest(0xAABBCCDD, mac, WithMessageType(dhcpv4.MessageTypeDiscover))

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if !bytes.Equal(data[4:8], []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Errorf("xid bytes = % X, want AA BB CC DD", data[4:8])
	}
	if !bytes.Equal(data[28:34], mac) {
		t.Errorf("chaddr = % X, want % X", data[28:34], []byte(mac))
	}
	if !bytes.Equal(data[34:44], make([]byte, 10)) {
		t.Errorf("chaddr tail = % X, want all zero", data[34:44])
	}
	if !bytes.Equal(data[240:], []byte{53, 1, 1, 255}) {
		t.Errorf("options = % X, want 35 01 01 FF", data[240:])
	}

	decoded, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}
	if decoded.MessageType() != dhcpv4.MessageTypeDiscover {
		t.Errorf("MessageType = %s, want DHCPDISCOVER", decoded.MessageType())
	}
	if decoded.XID != 0xAABBCCDD {
		t.Errorf("XID = 0x%08X, want 0xAABBCCDD", decoded.XID)
	}
	if decoded.CHAddr.String() != mac.String() {
		t.Errorf("CHAddr = %s, want %s", decoded.CHAddr, mac)
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	p := &Packet{
		Op:     dhcpv4.OpCodeBootRequest,
		HType:  dhcpv4.HardwareTypeEthernet,
		HLen:   6,
		Hops:   2,
		XID:    0x01020304,
		Secs:   0x0506,
		Flags:  dhcpv4.FlagBroadcast,
		CIAddr: net.IPv4(10, 0, 0, 1),
		YIAddr: net.IPv4(10, 0, 0, 2),
		SIAddr: net.IPv4(10, 0, 0, 3),
		GIAddr: net.IPv4(10, 0, 0, 4),
		CHAddr: net.HardwareAddr{1, 2, 3, 4, 5, 6},
	}
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	want := []byte{
		1, 1, 6, 2, // op htype hlen hops
		1, 2, 3, 4, // xid
		5, 6, 0x80, 0, // secs flags
		10, 0, 0, 1, 10, 0, 0, 2, 10, 0, 0, 3, 10, 0, 0, 4,
	}
	if !bytes.Equal(data[:28], want) {
		t.Errorf("header = % X\nwant     % X", data[:28], want)
	}
	if !bytes.Equal(data[236:240], dhcpv4.MagicCookie) {
		t.Errorf("cookie = % X", data[236:240])
	}
	if len(data) != dhcpv4.OptionsOffset+1 {
		t.Errorf("len = %d, want %d (header + END only)", len(data), dhcpv4.OptionsOffset+1)
	}
	if data[240] != byte(dhcpv4.OptionEnd) {
		t.Errorf("last byte = %d, want END", data[240])
	}
}

func TestEncodeOptionTooLong(t *testing.T) {
	p := NewRequest(1, net.HardwareAddr{1, 2, 3, 4, 5, 6},
		WithMessageType(dhcpv4.MessageTypeDiscover),
		WithOption(dhcpv4.OptionVendorSpecific, make([]byte, 300)),
	)
	_, err := p.Encode()
	if !errors.Is(err, ErrOptionTooLong) {
		t.Fatalf("Encode error = %v, want ErrOptionTooLong", err)
	}

	// 255 is the largest legal value
	p = NewRequest(1, net.HardwareAddr{1, 2, 3, 4, 5, 6}, WithOption(dhcpv4.OptionVendorSpecific, make([]byte, 255)))
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode 255-byte option: %v", err)
	}
	if data[241] != 255 {
		t.Errorf("length byte = %d, want 255", data[241])
	}
}

func TestEncodeRejectsControlCodes(t *testing.T) {
	for _, code := range []dhcpv4.OptionCode{dhcpv4.OptionPad, dhcpv4.OptionEnd} {
		p := &Packet{Options: Options{{Code: code}}}
		if _, err := p.Encode(); !errors.Is(err, ErrReservedOption) {
			t.Errorf("code %d: Encode error = %v, want ErrReservedOption", code, err)
		}
	}
}

func TestEncodeHardwareAddrTooLong(t *testing.T) {
	p := &Packet{CHAddr: make(net.HardwareAddr, 20)}
	if _, err := p.Encode(); !errors.Is(err, ErrHardwareAddrTooLong) {
		t.Errorf("Encode error = %v, want ErrHardwareAddrTooLong", err)
	}
}

func TestEncodePadded(t *testing.T) {
	p := NewRequest(7, net.HardwareAddr{1, 2, 3, 4, 5, 6}, WithMessageType(dhcpv4.MessageTypeRequest))
	data, err := p.EncodePadded(dhcpv4.MinPacketSize)
	if err != nil {
		t.Fatalf("EncodePadded error: %v", err)
	}
	if len(data) != dhcpv4.MinPacketSize {
		t.Fatalf("len = %d, want %d", len(data), dhcpv4.MinPacketSize)
	}
	if data[243] != byte(dhcpv4.OptionEnd) {
		t.Errorf("END at 243 = %d", data[243])
	}
	for i := 244; i < len(data); i++ {
		if data[i] != 0 {
			t.Fatalf("padding byte %d = %d, want 0", i, data[i])
		}
	}

	// Already larger than the minimum: unchanged
	unpadded, _ := p.Encode()
	bigger, _ := p.EncodePadded(10)
	if !bytes.Equal(unpadded, bigger) {
		t.Error("EncodePadded below current size changed the output")
	}
}

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{
		Op:     dhcpv4.OpCodeBootReply,
		HType:  dhcpv4.HardwareTypeEthernet,
		HLen:   6,
		Hops:   1,
		XID:    0xCAFEBABE,
		Secs:   12,
		Flags:  dhcpv4.FlagBroadcast,
		CIAddr: net.IPv4(0, 0, 0, 0).To4(),
		YIAddr: net.IPv4(192, 168, 1, 50).To4(),
		SIAddr: net.IPv4(192, 168, 1, 1).To4(),
		GIAddr: net.IPv4(10, 1, 1, 1).To4(),
		CHAddr: net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		Options: Options{
			{Code: dhcpv4.OptionDHCPMessageType, Value: []byte{byte(dhcpv4.MessageTypeOffer)}},
			{Code: dhcpv4.OptionIPLeaseTime, Value: []byte{0, 0, 0x0E, 0x10}},
			{Code: 224, Value: []byte("site-local")},
			{Code: dhcpv4.OptionServerIdentifier, Value: []byte{192, 168, 1, 1}},
			{Code: dhcpv4.OptionVendorSpecific, Value: []byte{}},
		},
	}
	copy(p.SName[:], "boot-server")
	copy(p.File[:], "pxelinux.0")

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}

	if got.Op != p.Op || got.HType != p.HType || got.HLen != p.HLen || got.Hops != p.Hops {
		t.Errorf("op/htype/hlen/hops = %d/%d/%d/%d", got.Op, got.HType, got.HLen, got.Hops)
	}
	if got.XID != p.XID || got.Secs != p.Secs || got.Flags != p.Flags {
		t.Errorf("xid/secs/flags = 0x%08X/%d/0x%04X", got.XID, got.Secs, got.Flags)
	}
	for _, pair := range [][2]net.IP{{got.CIAddr, p.CIAddr}, {got.YIAddr, p.YIAddr}, {got.SIAddr, p.SIAddr}, {got.GIAddr, p.GIAddr}} {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("address = %s, want %s", pair[0], pair[1])
		}
	}
	if !bytes.Equal(got.CHAddr, p.CHAddr) {
		t.Errorf("CHAddr = %s, want %s", got.CHAddr, p.CHAddr)
	}
	if got.SName != p.SName || got.File != p.File {
		t.Error("sname/file not preserved")
	}
	if len(got.Options) != len(p.Options) {
		t.Fatalf("options = %d, want %d", len(got.Options), len(p.Options))
	}
	for i := range p.Options {
		if got.Options[i].Code != p.Options[i].Code || !bytes.Equal(got.Options[i].Value, p.Options[i].Value) {
			t.Errorf("option[%d] = %v, want %v", i, got.Options[i], p.Options[i])
		}
	}
}

func TestDecodePacketTruncatedHeader(t *testing.T) {
	full, err := NewRequest(0x11223344, net.HardwareAddr{1, 2, 3, 4, 5, 6},
		WithMessageType(dhcpv4.MessageTypeDiscover)).Encode()
	if err != nil {
		t.Fatal(err)
	}

	for n := 0; n < dhcpv4.OptionsOffset; n++ {
		pkt, err := DecodePacket(full[:n])
		if !errors.Is(err, ErrTruncatedHeader) {
			t.Fatalf("prefix %d: error = %v, want ErrTruncatedHeader", n, err)
		}
		if pkt != nil {
			t.Fatalf("prefix %d: got partial packet", n)
		}
	}
}

func TestDecodePacketBadMagicCookie(t *testing.T) {
	data := buildTestReply(1, net.IPv4zero, byte(dhcpv4.OptionEnd))
	data[236] = 0xFF

	_, err := DecodePacket(data)
	if !errors.Is(err, ErrBadCookie) {
		t.Errorf("error = %v, want ErrBadCookie", err)
	}
}

func TestDecodePacketTruncatedOption(t *testing.T) {
	tests := []struct {
		name string
		opts []byte
	}{
		{"no length byte", []byte{byte(dhcpv4.OptionDHCPMessageType)}},
		{"short value", []byte{byte(dhcpv4.OptionServerIdentifier), 4, 192, 168}},
		{"after valid option", []byte{53, 1, 2, byte(dhcpv4.OptionIPLeaseTime), 4, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket(buildTestReply(1, net.IPv4zero, tt.opts...))
			if !errors.Is(err, ErrTruncatedOption) {
				t.Errorf("error = %v, want ErrTruncatedOption", err)
			}
		})
	}
}

func TestDecodePacketEndTermination(t *testing.T) {
	data := buildTestReply(1, net.IPv4zero,
		byte(dhcpv4.OptionPad),
		53, 1, 2,
		byte(dhcpv4.OptionPad), byte(dhcpv4.OptionPad),
		byte(dhcpv4.OptionEnd),
		// Junk after END must not be parsed: a truncated option and a stray END
		54, 4, 1, 255, 0, 0, 0,
	)

	pkt, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}
	if len(pkt.Options) != 1 {
		t.Fatalf("options = %v, want only message type", pkt.Options)
	}
	for _, o := range pkt.Options {
		if o.Code == dhcpv4.OptionPad || o.Code == dhcpv4.OptionEnd {
			t.Errorf("control code %d exposed as option", o.Code)
		}
	}
}

func TestDecodePacketWithoutEnd(t *testing.T) {
	pkt, err := DecodePacket(buildTestReply(1, net.IPv4zero, 53, 1, 5))
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}
	if pkt.MessageType() != dhcpv4.MessageTypeAck {
		t.Errorf("MessageType = %s, want DHCPACK", pkt.MessageType())
	}
}

func TestDecodePacketHeaderOnly(t *testing.T) {
	pkt, err := DecodePacket(buildTestReply(1, net.IPv4zero))
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}
	if len(pkt.Options) != 0 {
		t.Errorf("options = %v, want none", pkt.Options)
	}
	if pkt.MessageType() != 0 {
		t.Errorf("MessageType = %d, want 0", pkt.MessageType())
	}
}

func TestPacketMessageType(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  dhcpv4.MessageType
	}{
		{"Discover", []byte{1}, dhcpv4.MessageTypeDiscover},
		{"Offer", []byte{2}, dhcpv4.MessageTypeOffer},
		{"Request", []byte{3}, dhcpv4.MessageTypeRequest},
		{"Decline", []byte{4}, dhcpv4.MessageTypeDecline},
		{"Ack", []byte{5}, dhcpv4.MessageTypeAck},
		{"Nak", []byte{6}, dhcpv4.MessageTypeNak},
		{"Release", []byte{7}, dhcpv4.MessageTypeRelease},
		{"Inform", []byte{8}, dhcpv4.MessageTypeInform},
		{"unknown value", []byte{42}, 0},
		{"zero value", []byte{0}, 0},
		{"wrong length", []byte{2, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &Packet{Options: Options{{Code: dhcpv4.OptionDHCPMessageType, Value: tt.value}}}
			if got := pkt.MessageType(); got != tt.want {
				t.Errorf("MessageType() = %d, want %d", got, tt.want)
			}
		})
	}

	if got := (&Packet{}).MessageType(); got != 0 {
		t.Errorf("MessageType() without option = %d, want 0", got)
	}
}

func TestPacketLeaseTime(t *testing.T) {
	pkt := &Packet{Options: Options{{Code: dhcpv4.OptionIPLeaseTime, Value: []byte{0, 0, 0x0E, 0x10}}}}
	d, ok := pkt.LeaseTime()
	if !ok || d != time.Hour {
		t.Errorf("LeaseTime() = %v, %v, want 1h, true", d, ok)
	}

	pkt = &Packet{Options: Options{{Code: dhcpv4.OptionIPLeaseTime, Value: []byte{0, 0x0E, 0x10}}}}
	if _, ok := pkt.LeaseTime(); ok {
		t.Error("LeaseTime() with 3-byte value should be absent")
	}
	if _, ok := (&Packet{}).LeaseTime(); ok {
		t.Error("LeaseTime() without option should be absent")
	}
}

func TestPacketServerIdentifier(t *testing.T) {
	pkt := &Packet{Options: Options{{Code: dhcpv4.OptionServerIdentifier, Value: []byte{192, 168, 1, 1}}}}
	if got := pkt.ServerIdentifier(); !got.Equal(net.IPv4(192, 168, 1, 1)) {
		t.Errorf("ServerIdentifier() = %s, want 192.168.1.1", got)
	}

	pkt = &Packet{Options: Options{{Code: dhcpv4.OptionServerIdentifier, Value: []byte{192, 168, 1}}}}
	if got := pkt.ServerIdentifier(); got != nil {
		t.Errorf("malformed ServerIdentifier() = %s, want nil", got)
	}
}

func TestPacketLookupsAreIdempotent(t *testing.T) {
	data := buildTestReply(9, net.IPv4(192, 168, 1, 50),
		53, 1, 2,
		51, 4, 0, 0, 0x0E, 0x10,
		54, 4, 192, 168, 1, 1,
		byte(dhcpv4.OptionEnd),
	)
	pkt, err := DecodePacket(data)
	if err != nil {
		t.Fatal(err)
	}

	before := pkt.Options.Clone()
	for i := 0; i < 3; i++ {
		if pkt.MessageType() != dhcpv4.MessageTypeOffer {
			t.Fatalf("call %d: MessageType changed", i)
		}
		if d, ok := pkt.LeaseTime(); !ok || d != time.Hour {
			t.Fatalf("call %d: LeaseTime changed", i)
		}
		if !pkt.ServerIdentifier().Equal(net.IPv4(192, 168, 1, 1)) {
			t.Fatalf("call %d: ServerIdentifier changed", i)
		}
		// Mutating a returned address must not leak into the packet
		pkt.ServerIdentifier()[0] = 0
		pkt.AssignedAddress()[0] = 0
	}
	if !pkt.AssignedAddress().Equal(net.IPv4(192, 168, 1, 50)) {
		t.Errorf("AssignedAddress = %s", pkt.AssignedAddress())
	}
	for i := range before {
		if !bytes.Equal(before[i].Value, pkt.Options[i].Value) {
			t.Errorf("option %d mutated by lookups", i)
		}
	}
}

func TestPacketLeaseParameters(t *testing.T) {
	pkt := &Packet{
		Options: Options{
			{Code: dhcpv4.OptionSubnetMask, Value: []byte{255, 255, 255, 0}},
			{Code: dhcpv4.OptionRouter, Value: []byte{192, 168, 1, 1}},
			{Code: dhcpv4.OptionDomainNameServer, Value: []byte{8, 8, 8, 8, 1, 1, 1, 1}},
			{Code: dhcpv4.OptionDomainName, Value: []byte("example.lan\x00")},
			{Code: dhcpv4.OptionRenewalTime, Value: []byte{0, 0, 0x07, 0x08}},
			{Code: dhcpv4.OptionRebindingTime, Value: []byte{0, 0, 0x0C, 0x4E}},
			{Code: dhcpv4.OptionMessage, Value: []byte("address in use")},
			{Code: dhcpv4.OptionClasslessStaticRoute, Value: []byte{0, 192, 168, 1, 1}},
		},
	}

	if got := pkt.SubnetMask().String(); got != "ffffff00" {
		t.Errorf("SubnetMask = %s", got)
	}
	if r := pkt.Routers(); len(r) != 1 || !r[0].Equal(net.IPv4(192, 168, 1, 1)) {
		t.Errorf("Routers = %v", r)
	}
	if d := pkt.DNSServers(); len(d) != 2 || !d[1].Equal(net.IPv4(1, 1, 1, 1)) {
		t.Errorf("DNSServers = %v", d)
	}
	if got := pkt.DomainName(); got != "example.lan" {
		t.Errorf("DomainName = %q", got)
	}
	if d, ok := pkt.RenewalTime(); !ok || d != 1800*time.Second {
		t.Errorf("RenewalTime = %v, %v", d, ok)
	}
	if d, ok := pkt.RebindingTime(); !ok || d != 3150*time.Second {
		t.Errorf("RebindingTime = %v, %v", d, ok)
	}
	if got := pkt.Message(); got != "address in use" {
		t.Errorf("Message = %q", got)
	}
	if routes := pkt.StaticRoutes(); len(routes) != 1 || routes[0].PrefixLen != 0 {
		t.Errorf("StaticRoutes = %v", routes)
	}
}

func TestPacketIsBroadcast(t *testing.T) {
	pkt := &Packet{Flags: 0x8000}
	if !pkt.IsBroadcast() {
		t.Error("expected IsBroadcast() = true")
	}
	pkt.Flags = 0x0000
	if pkt.IsBroadcast() {
		t.Error("expected IsBroadcast() = false")
	}
}

func TestPacketSummary(t *testing.T) {
	pkt := NewRequest(0xAABBCCDD, net.HardwareAddr{1, 2, 3, 4, 5, 6}, WithMessageType(dhcpv4.MessageTypeDiscover))
	got := pkt.Summary()
	for _, want := range []string{"DHCPDISCOVER", "xid=0xaabbccdd", "01:02:03:04:05:06", "DHCP Message Type(53)"} {
		if !bytes.Contains([]byte(got), []byte(want)) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}
