//go:build linux

package netif

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// Lookup returns the interface with the given name.
func Lookup(name string) (*Info, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", name, err)
	}
	return fromLink(link), nil
}

// Default returns the interface carrying the IPv4 default route, falling back
// to the first interface that is up with a hardware address.
func Default() (*Info, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	for _, r := range routes {
		if r.Dst != nil || r.LinkIndex == 0 {
			continue
		}
		link, err := netlink.LinkByIndex(r.LinkIndex)
		if err != nil {
			continue
		}
		if info := fromLink(link); len(info.HardwareAddr) > 0 {
			return info, nil
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	return firstCandidate(ifaces)
}

func fromLink(link netlink.Link) *Info {
	attrs := link.Attrs()
	return &Info{
		Name:         attrs.Name,
		Index:        attrs.Index,
		HardwareAddr: append(net.HardwareAddr(nil), attrs.HardwareAddr...),
		MTU:          attrs.MTU,
		Up:           attrs.Flags&net.FlagUp != 0,
	}
}
