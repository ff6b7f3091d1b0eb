package client

import (
	"errors"
	"fmt"
	"net"
)

// Engine misuse.
var (
	ErrInvalidState   = errors.New("operation not valid in current transaction state")
	ErrRequestNotSent = errors.New("DHCPREQUEST not yet sent")
	ErrNoHardwareAddr = errors.New("hardware address is required")
)

// Exchange failures reported by Client.
var (
	ErrTimeout       = errors.New("no usable DHCP reply before timeout")
	ErrOfferMismatch = errors.New("server offered a different address than requested")
	ErrNak           = errors.New("server refused the request (DHCPNAK)")
)

// OfferMismatchError is returned when the offer differs from the requested
// address and the client is configured not to accept it.
type OfferMismatchError struct {
	Requested net.IP
	Offered   net.IP
	ServerID  net.IP
}

func (e *OfferMismatchError) Error() string {
	return fmt.Sprintf("requested %s but server %s offered %s", e.Requested, e.ServerID, e.Offered)
}

func (e *OfferMismatchError) Is(target error) bool { return target == ErrOfferMismatch }

// NakError carries the refusing server and its option 56 text, if any.
type NakError struct {
	ServerID net.IP
	Message  string
}

func (e *NakError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("DHCPNAK from %s", e.ServerID)
	}
	return fmt.Sprintf("DHCPNAK from %s: %s", e.ServerID, e.Message)
}

func (e *NakError) Is(target error) bool { return target == ErrNak }
