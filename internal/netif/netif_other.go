//go:build !linux

package netif

import (
	"fmt"
	"net"
)

// Lookup returns the interface with the given name.
func Lookup(name string) (*Info, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", name, err)
	}
	return fromNet(ifi), nil
}

// Default returns the first interface that is up with a hardware address.
func Default() (*Info, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	return firstCandidate(ifaces)
}
