// Package netif resolves the local interface a DHCP client runs on.
package netif

import (
	"errors"
	"net"
)

// ErrNoInterface is returned when no usable interface can be found.
var ErrNoInterface = errors.New("no usable network interface")

// Info describes a network interface.
type Info struct {
	Name         string
	Index        int
	HardwareAddr net.HardwareAddr
	MTU          int
	Up           bool
}

func fromNet(ifi *net.Interface) *Info {
	return &Info{
		Name:         ifi.Name,
		Index:        ifi.Index,
		HardwareAddr: append(net.HardwareAddr(nil), ifi.HardwareAddr...),
		MTU:          ifi.MTU,
		Up:           ifi.Flags&net.FlagUp != 0,
	}
}

// firstCandidate picks the first interface that is up, not loopback and has a
// hardware address.
func firstCandidate(ifaces []net.Interface) (*Info, error) {
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 || len(ifi.HardwareAddr) == 0 {
			continue
		}
		return fromNet(ifi), nil
	}
	return nil, ErrNoInterface
}
