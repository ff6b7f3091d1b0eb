package dhcpv4

import (
	"bytes"
	"net"
	"testing"
)

func TestIPv4Bytes(t *testing.T) {
	tests := []struct {
		name string
		ip   net.IP
		want []byte
	}{
		{"16-byte form", net.IPv4(192, 168, 1, 1), []byte{192, 168, 1, 1}},
		{"4-byte form", net.IP{10, 0, 0, 7}, []byte{10, 0, 0, 7}},
		{"nil", nil, []byte{0, 0, 0, 0}},
		{"ipv6", net.ParseIP("2001:db8::1"), []byte{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IPv4Bytes(tt.ip); !bytes.Equal(got, tt.want) {
				t.Errorf("IPv4Bytes(%v) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}

	src := net.IP{172, 16, 0, 1}
	out := IPv4Bytes(src)
	out[0] = 1
	if src[0] != 172 {
		t.Error("IPv4Bytes result shares memory with its argument")
	}
}

func TestParseIPv4(t *testing.T) {
	if got := ParseIPv4([]byte{10, 0, 0, 1}); !got.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Errorf("ParseIPv4 = %s, want 10.0.0.1", got)
	}
	for _, b := range [][]byte{nil, {1, 2}, {1, 2, 3, 4, 5}} {
		if got := ParseIPv4(b); got != nil {
			t.Errorf("ParseIPv4(%v) = %s, want nil", b, got)
		}
	}
}

func TestParseIPv4List(t *testing.T) {
	ips, err := ParseIPv4List([]byte{192, 168, 1, 1, 10, 0, 0, 1})
	if err != nil {
		t.Fatalf("ParseIPv4List: %v", err)
	}
	if len(ips) != 2 || !ips[0].Equal(net.IPv4(192, 168, 1, 1)) || !ips[1].Equal(net.IPv4(10, 0, 0, 1)) {
		t.Errorf("ParseIPv4List = %v", ips)
	}

	if ips, err := ParseIPv4List(nil); err != nil || len(ips) != 0 {
		t.Errorf("ParseIPv4List(nil) = %v, %v", ips, err)
	}
	if _, err := ParseIPv4List([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Error("expected error for 5-byte list")
	}
}

func TestIntegerHelpers(t *testing.T) {
	if got := Uint16Bytes(576); !bytes.Equal(got, []byte{0x02, 0x40}) {
		t.Errorf("Uint16Bytes(576) = % x", got)
	}

	v, err := ParseUint32([]byte{0x00, 0x01, 0x51, 0x80})
	if err != nil || v != 86400 {
		t.Errorf("ParseUint32 = %d, %v; want 86400", v, err)
	}
	if _, err := ParseUint32([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for 3-byte value")
	}
}

func TestIsUnspecified(t *testing.T) {
	tests := []struct {
		ip   net.IP
		want bool
	}{
		{nil, true},
		{net.IP{}, true},
		{net.IPv4zero, true},
		{net.IP{0, 0, 0, 0}, true},
		{net.IPv4(10, 0, 0, 1), false},
	}
	for _, tt := range tests {
		if got := IsUnspecified(tt.ip); got != tt.want {
			t.Errorf("IsUnspecified(%v) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestClientIDFromMAC(t *testing.T) {
	mac := net.HardwareAddr{0x10, 0x7b, 0x44, 0x93, 0xe6, 0xd0}
	want := []byte{0x01, 0x10, 0x7b, 0x44, 0x93, 0xe6, 0xd0}
	if got := ClientIDFromMAC(mac); !bytes.Equal(got, want) {
		t.Errorf("ClientIDFromMAC = % x, want % x", got, want)
	}
}

func TestParseClasslessRoutes(t *testing.T) {
	routes, err := ParseClasslessRoutes([]byte{
		24, 10, 0, 1, 192, 168, 1, 1,
		0, 192, 168, 1, 254,
		32, 172, 16, 9, 9, 192, 168, 1, 2,
	})
	if err != nil {
		t.Fatalf("ParseClasslessRoutes: %v", err)
	}

	want := []string{
		"10.0.1.0/24 via 192.168.1.1",
		"0.0.0.0/0 via 192.168.1.254",
		"172.16.9.9/32 via 192.168.1.2",
	}
	if len(routes) != len(want) {
		t.Fatalf("decoded %d routes, want %d", len(routes), len(want))
	}
	for i, r := range routes {
		if r.String() != want[i] {
			t.Errorf("route %d = %q, want %q", i, r.String(), want[i])
		}
	}
}

func TestParseClasslessRoutesInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated destination", []byte{24, 10, 0}},
		{"missing gateway", []byte{8, 10, 192, 168}},
		{"prefix too long", []byte{33, 1, 2, 3, 4, 5, 6, 7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClasslessRoutes(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if routes, err := ParseClasslessRoutes(nil); err != nil || len(routes) != 0 {
		t.Errorf("ParseClasslessRoutes(nil) = %v, %v", routes, err)
	}
}

func TestFormatXID(t *testing.T) {
	for xid, want := range map[uint32]string{
		0xAABBCCDD: "0xaabbccdd",
		1:          "0x00000001",
	} {
		if got := FormatXID(xid); got != want {
			t.Errorf("FormatXID(%d) = %q, want %q", xid, got, want)
		}
	}
}
