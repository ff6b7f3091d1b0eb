//go:build unix && !linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// SO_BINDTODEVICE is Linux-only; elsewhere interface scoping relies on the
// IP_RECVIF control message filter in Receive.
func socketControl(_ string, _ bool) func(network, address string, rc syscall.RawConn) error {
	return func(network, address string, rc syscall.RawConn) error {
		var serr error
		err := rc.Control(func(fd uintptr) {
			if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
				serr = fmt.Errorf("setting SO_REUSEADDR: %w", serr)
				return
			}
			if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); serr != nil {
				serr = fmt.Errorf("setting SO_BROADCAST: %w", serr)
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}
