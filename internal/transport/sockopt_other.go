//go:build !unix

package transport

import "syscall"

func socketControl(_ string, _ bool) func(network, address string, rc syscall.RawConn) error {
	return nil
}
