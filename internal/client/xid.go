package client

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// IDSource produces transaction ids. Tests inject a fixed sequence.
type IDSource func() (uint32, error)

// RandomXID draws a transaction id from crypto/rand.
func RandomXID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generating random XID: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// RandomMAC returns a locally administered unicast address, used by surveys
// that should not disturb the host's own lease.
func RandomMAC() (net.HardwareAddr, error) {
	mac := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x00}
	if _, err := rand.Read(mac[2:]); err != nil {
		return nil, fmt.Errorf("generating random MAC: %w", err)
	}
	return mac, nil
}
