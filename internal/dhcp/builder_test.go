package dhcp

import (
	"bytes"
	"net"
	"testing"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

func TestNewRequestDefaults(t *testing.T) {
	mac := net.HardwareAddr{0x10, 0x7B, 0x44, 0x93, 0xE6, 0xD0}
	p := NewRequest(42, mac)

	if p.Op != dhcpv4.OpCodeBootRequest {
		t.Errorf("Op = %d, want BOOTREQUEST", p.Op)
	}
	if p.HType != dhcpv4.HardwareTypeEthernet || p.HLen != 6 {
		t.Errorf("HType/HLen = %d/%d", p.HType, p.HLen)
	}
	for _, ip := range []net.IP{p.CIAddr, p.YIAddr, p.SIAddr, p.GIAddr} {
		if !ip.Equal(net.IPv4zero) {
			t.Errorf("address = %s, want 0.0.0.0", ip)
		}
	}
	if p.Flags != 0 || p.Secs != 0 || p.Hops != 0 {
		t.Errorf("flags/secs/hops = %d/%d/%d", p.Flags, p.Secs, p.Hops)
	}

	mac[0] = 0xFF
	if p.CHAddr[0] != 0x10 {
		t.Error("CHAddr aliases the caller's slice")
	}
}

func TestNewRequestOptionOrder(t *testing.T) {
	mac := net.HardwareAddr{1, 2, 3, 4, 5, 6}
	p := NewRequest(1, mac,
		WithMessageType(dhcpv4.MessageTypeRequest),
		WithClientID(mac),
		WithRequestedIP(net.IPv4(192, 168, 1, 50)),
		WithServerIdentifier(net.IPv4(192, 168, 1, 1)),
		WithMaxMessageSize(1052),
		WithHostname("node-1"),
		WithParameterRequestList(dhcpv4.DefaultParameterRequestList),
	)

	want := []dhcpv4.OptionCode{53, 61, 50, 54, 57, 12, 55}
	if len(p.Options) != len(want) {
		t.Fatalf("options = %v", p.Options)
	}
	for i, c := range want {
		if p.Options[i].Code != c {
			t.Errorf("option[%d] = %d, want %d", i, p.Options[i].Code, c)
		}
	}

	if v, _ := p.Options.Get(dhcpv4.OptionClientIdentifier); !bytes.Equal(v, []byte{1, 1, 2, 3, 4, 5, 6}) {
		t.Errorf("client id = % x", v)
	}
	if v, _ := p.Options.Get(dhcpv4.OptionMaxDHCPMessageSize); !bytes.Equal(v, []byte{0x04, 0x1C}) {
		t.Errorf("max message size = % x", v)
	}
	if !p.RequestedIP().Equal(net.IPv4(192, 168, 1, 50)) {
		t.Errorf("RequestedIP = %s", p.RequestedIP())
	}
}

func TestModifiersSkipEmptyValues(t *testing.T) {
	p := NewRequest(1, net.HardwareAddr{1, 2, 3, 4, 5, 6},
		WithRequestedIP(nil),
		WithRequestedIP(net.IPv4zero),
		WithHostname(""),
		WithParameterRequestList(nil),
		WithMaxMessageSize(0),
	)
	if len(p.Options) != 0 {
		t.Errorf("options = %v, want none", p.Options)
	}
}

func TestWithBroadcast(t *testing.T) {
	p := NewRequest(1, net.HardwareAddr{1, 2, 3, 4, 5, 6}, WithBroadcast(true))
	if !p.IsBroadcast() {
		t.Error("broadcast flag not set")
	}
	WithBroadcast(false)(p)
	if p.IsBroadcast() {
		t.Error("broadcast flag not cleared")
	}
}

func TestWithSecs(t *testing.T) {
	p := NewRequest(1, net.HardwareAddr{1, 2, 3, 4, 5, 6}, WithSecs(9))
	data, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if data[8] != 0 || data[9] != 9 {
		t.Errorf("secs bytes = % x", data[8:10])
	}
}

func TestWithOptionsCopies(t *testing.T) {
	extra := Options{{Code: dhcpv4.OptionVendorClassID, Value: []byte("athena")}}
	p := NewRequest(1, net.HardwareAddr{1, 2, 3, 4, 5, 6}, WithOptions(extra))
	extra[0].Value[0] = 'X'
	if v, _ := p.Options.Get(dhcpv4.OptionVendorClassID); string(v) != "athena" {
		t.Errorf("vendor class = %q", v)
	}
}
