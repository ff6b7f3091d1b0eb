// Package transport carries DHCP client datagrams over UDP port 68.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// ErrTruncatedRead is returned when a datagram filled the whole receive
// buffer and may have been cut short by the kernel.
var ErrTruncatedRead = errors.New("datagram filled the receive buffer")

// Config describes the client socket.
type Config struct {
	Interface      string // interface name, used for SO_BINDTODEVICE and logging
	IfIndex        int    // when non-zero, datagrams from other interfaces are dropped
	BindToDevice   bool
	ReadBufferSize int    // largest datagram accepted; default 1024
	LocalPort      int    // 0 selects an ephemeral port
	ServerPort     int    // default 67
	Destination    net.IP // default 255.255.255.255
}

// Conn is a broadcast-capable UDP socket for one client run.
type Conn struct {
	pc      *ipv4.PacketConn
	logger  *slog.Logger
	dst     *net.UDPAddr
	ifIndex int
	bufSize int
	iface   string
}

// Listen opens the client socket with SO_REUSEADDR and SO_BROADCAST, plus
// SO_BINDTODEVICE on Linux when requested.
func Listen(ctx context.Context, cfg Config, logger *slog.Logger) (*Conn, error) {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = dhcpv4.ServerPort
	}
	dst := cfg.Destination
	if dst == nil {
		dst = net.IPv4bcast
	}

	lc := net.ListenConfig{Control: socketControl(cfg.Interface, cfg.BindToDevice)}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.LocalPort)
	c, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	pc := ipv4.NewPacketConn(c)
	if cfg.IfIndex > 0 {
		if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			// Not every platform reports the receiving interface.
			logger.Warn("interface control messages unavailable, accepting datagrams from any interface",
				"interface", cfg.Interface, "error", err)
		}
	}

	logger.Debug("client socket open",
		"address", c.LocalAddr().String(),
		"interface", cfg.Interface,
		"bind_to_device", cfg.BindToDevice,
		"destination", dst.String())

	return &Conn{
		pc:      pc,
		logger:  logger,
		dst:     &net.UDPAddr{IP: dst, Port: cfg.ServerPort},
		ifIndex: cfg.IfIndex,
		bufSize: cfg.ReadBufferSize,
		iface:   cfg.Interface,
	}, nil
}

// LocalAddr returns the bound address.
func (c *Conn) LocalAddr() net.Addr { return c.pc.LocalAddr() }

// Close releases the socket.
func (c *Conn) Close() error { return c.pc.Close() }

// Send writes one datagram to the server port.
func (c *Conn) Send(ctx context.Context, b []byte) error {
	deadline, _ := ctx.Deadline()
	if err := c.pc.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}

	var cm *ipv4.ControlMessage
	if c.ifIndex > 0 {
		cm = &ipv4.ControlMessage{IfIndex: c.ifIndex}
	}
	if _, err := c.pc.WriteTo(b, cm, c.dst); err != nil {
		return fmt.Errorf("sending to %s: %w", c.dst, err)
	}
	return nil
}

// Receive blocks until a datagram arrives on the configured interface or ctx
// ends. A deadline expiry is reported as context.DeadlineExceeded.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.pc.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}
	// The wake-up must not outlive this call, or it would cut short the
	// deadline set by the next Receive.
	var (
		mu   sync.Mutex
		done bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if !done {
			c.pc.SetReadDeadline(time.Now())
		}
	})
	defer func() {
		mu.Lock()
		done = true
		mu.Unlock()
		stop()
	}()

	buf := make([]byte, c.bufSize+1)
	for {
		n, cm, src, err := c.pc.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, context.DeadlineExceeded
			}
			return nil, fmt.Errorf("reading datagram: %w", err)
		}

		if c.ifIndex > 0 && cm != nil && cm.IfIndex != 0 && cm.IfIndex != c.ifIndex {
			c.logger.Debug("dropping datagram from another interface",
				"if_index", cm.IfIndex, "want", c.ifIndex, "src", addrString(src))
			continue
		}
		if n > c.bufSize {
			return nil, fmt.Errorf("%w: from %s, limit %d bytes", ErrTruncatedRead, addrString(src), c.bufSize)
		}

		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

// MaxMessageSize is the option 57 value advertising the receive buffer,
// which counts the IP and UDP headers.
func MaxMessageSize(readBufferSize int) uint16 {
	size := readBufferSize + dhcpv4.IPUDPHeaderSize
	if size < dhcpv4.DefaultPacketSize {
		size = dhcpv4.DefaultPacketSize
	}
	if size > 0xFFFF {
		size = 0xFFFF
	}
	return uint16(size)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
