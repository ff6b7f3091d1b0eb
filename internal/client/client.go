package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/audit"
	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Transport sends and receives raw DHCP datagrams.
type Transport interface {
	Send(ctx context.Context, b []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// Journal records the outcome of each acquisition run.
type Journal interface {
	Append(rec audit.Record) error
}

// Notifier receives one event per finished run.
type Notifier interface {
	Publish(evt events.Event)
}

// Config controls one acquisition run.
type Config struct {
	Interface     string
	HardwareAddr  net.HardwareAddr
	RequestedIP   net.IP
	Transaction   TransactionConfig
	AcceptOffered bool // take an offer that differs from RequestedIP

	OfferTimeout time.Duration
	AckTimeout   time.Duration

	// Retry schedule (RFC 2131 §4.1): Backoff doubles per retry up to
	// MaxBackoff, randomized by ±Jitter. Zero Backoff retries immediately.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Jitter     time.Duration
}

// Client runs DORA exchanges over a Transport.
type Client struct {
	cfg      Config
	tr       Transport
	logger   *slog.Logger
	newXID   IDSource
	journal  Journal
	notifier Notifier
	now      func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithIDSource replaces the crypto/rand transaction id source.
func WithIDSource(src IDSource) Option {
	return func(c *Client) { c.newXID = src }
}

// WithJournal records every run's outcome.
func WithJournal(j Journal) Option {
	return func(c *Client) { c.journal = j }
}

// WithNotifier publishes every run's outcome to hooks.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// New creates a Client.
func New(cfg Config, tr Transport, logger *slog.Logger, opts ...Option) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = 4 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 4 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		tr:     tr,
		logger: logger,
		newXID: RandomXID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errAttemptTimeout ends one attempt; Acquire retries it.
var errAttemptTimeout = errors.New("attempt timed out")

// runState carries per-run bookkeeping across attempts.
type runState struct {
	start    time.Time
	attempts int
	xid      uint32
	offer    *Offer
}

// Acquire runs the exchange until a lease is bound, the server refuses, the
// offer is rejected by policy, or all attempts time out.
func (c *Client) Acquire(ctx context.Context) (*Lease, error) {
	if len(c.cfg.HardwareAddr) == 0 {
		return nil, ErrNoHardwareAddr
	}

	rs := &runState{start: c.now()}
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay(attempt - 1)
			c.logger.Info("retrying DHCP exchange",
				"attempt", attempt,
				"delay", delay.String(),
				"interface", c.cfg.Interface)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, c.finish(rs, nil, err)
			}
		}

		rs.attempts = attempt
		metrics.Attempts.Inc()
		lease, err := c.attempt(ctx, rs)
		if errors.Is(err, errAttemptTimeout) {
			continue
		}
		return lease, c.finish(rs, lease, err)
	}

	err := fmt.Errorf("%w after %d attempts", ErrTimeout, rs.attempts)
	return nil, c.finish(rs, nil, err)
}

func (c *Client) attempt(ctx context.Context, rs *runState) (*Lease, error) {
	xid, err := c.newXID()
	if err != nil {
		return nil, err
	}
	rs.xid = xid
	rs.offer = nil

	tx := NewTransaction(c.cfg.Transaction)
	tx.SetSecs(c.elapsedSecs(rs.start))
	discover, err := tx.BeginDiscovery(xid, c.cfg.HardwareAddr, c.cfg.RequestedIP)
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, discover, dhcpv4.MessageTypeDiscover); err != nil {
		return nil, err
	}
	c.logger.Info("DHCPDISCOVER sent",
		"xid", dhcpv4.FormatXID(xid),
		"mac", c.cfg.HardwareAddr.String(),
		"requested_ip", audit.IPString(c.cfg.RequestedIP),
		"attempt", rs.attempts)

	res, err := c.await(ctx, tx, c.cfg.OfferTimeout)
	if err != nil {
		_ = tx.Abandon()
		return nil, err
	}
	rs.offer = res.Offer

	c.logger.Info("DHCPOFFER received",
		"xid", dhcpv4.FormatXID(xid),
		"server_id", res.Offer.ServerID.String(),
		"offered_ip", res.Offer.Address.String(),
		"lease", leaseString(res.Offer.LeaseTime, res.Offer.LeaseKnown))

	if res.Outcome == OutcomeOfferMismatch {
		if !c.cfg.AcceptOffered {
			_ = tx.Abandon()
			return nil, &OfferMismatchError{
				Requested: c.cfg.RequestedIP,
				Offered:   res.Offer.Address,
				ServerID:  res.Offer.ServerID,
			}
		}
		c.logger.Warn("accepting offer for a different address than requested",
			"requested_ip", c.cfg.RequestedIP.String(),
			"offered_ip", res.Offer.Address.String())
	}

	tx.SetSecs(c.elapsedSecs(rs.start))
	request, err := tx.ConfirmRequest()
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, request, dhcpv4.MessageTypeRequest); err != nil {
		return nil, err
	}
	c.logger.Debug("DHCPREQUEST sent",
		"xid", dhcpv4.FormatXID(xid),
		"server_id", res.Offer.ServerID.String(),
		"requested_ip", res.Offer.Address.String())

	res, err = c.await(ctx, tx, c.cfg.AckTimeout)
	if err != nil {
		_ = tx.Abandon()
		return nil, err
	}

	if res.Outcome == OutcomeNak {
		return nil, &NakError{ServerID: res.ServerID, Message: res.Message}
	}
	return res.Lease, nil
}

// await reads datagrams until the transaction reports an outcome or timeout elapses.
func (c *Client) await(ctx context.Context, tx *Transaction, timeout time.Duration) (Result, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		data, err := c.tr.Receive(actx)
		if err != nil {
			if errors.Is(err, transport.ErrTruncatedRead) {
				metrics.PacketsDiscarded.WithLabelValues("truncated").Inc()
				c.logger.Debug("discarding truncated datagram", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			if actx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Debug("no matching reply before timeout",
					"xid", dhcpv4.FormatXID(tx.XID()),
					"state", tx.State().String(),
					"timeout", timeout.String())
				return Result{}, errAttemptTimeout
			}
			metrics.PacketErrors.WithLabelValues("receive").Inc()
			return Result{}, fmt.Errorf("receiving DHCP reply: %w", err)
		}

		res, err := tx.OnDatagram(data)
		if err != nil {
			return Result{}, err
		}
		if res.Outcome == OutcomeNone {
			metrics.PacketsDiscarded.WithLabelValues(string(res.Discard)).Inc()
			attrs := []any{"reason", string(res.Discard), "size", len(data)}
			if res.DecodeErr != nil {
				attrs = append(attrs, "error", res.DecodeErr)
			}
			if res.Packet != nil {
				attrs = append(attrs, "xid", dhcpv4.FormatXID(res.Packet.XID), "msg_type", res.Packet.MessageType().String())
			}
			c.logger.Debug("discarding datagram", attrs...)
			continue
		}

		metrics.PacketsReceived.WithLabelValues(res.Packet.MessageType().String()).Inc()
		return res, nil
	}
}

func (c *Client) send(ctx context.Context, b []byte, mt dhcpv4.MessageType) error {
	if err := c.tr.Send(ctx, b); err != nil {
		metrics.PacketErrors.WithLabelValues("send").Inc()
		return fmt.Errorf("sending %s: %w", mt, err)
	}
	metrics.PacketsSent.WithLabelValues(mt.String()).Inc()
	return nil
}

// finish logs, counts and journals the run's outcome and returns err unchanged.
func (c *Client) finish(rs *runState, lease *Lease, err error) error {
	outcome := outcomeLabel(err)
	elapsed := c.now().Sub(rs.start)
	metrics.Exchanges.WithLabelValues(outcome).Inc()
	metrics.ExchangeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	rec := audit.Record{
		Event:       outcome,
		Interface:   c.cfg.Interface,
		MAC:         audit.MACString(c.cfg.HardwareAddr),
		RequestedIP: audit.IPString(c.cfg.RequestedIP),
		Attempts:    rs.attempts,
	}
	if rs.xid != 0 {
		rec.XID = dhcpv4.FormatXID(rs.xid)
	}
	if rs.offer != nil {
		rec.IP = audit.IPString(rs.offer.Address)
		rec.ServerID = audit.IPString(rs.offer.ServerID)
	}

	var nak *NakError
	switch {
	case err == nil:
		rec.IP = audit.IPString(lease.Address)
		rec.ServerID = audit.IPString(lease.ServerID)
		if lease.LeaseKnown {
			rec.LeaseSeconds = int64(lease.LeaseTime / time.Second)
			metrics.LeaseSeconds.Set(lease.LeaseTime.Seconds())
		} else {
			metrics.LeaseSeconds.Set(0)
		}
		metrics.LeaseBoundTime.Set(float64(c.now().Unix()))
		c.logger.Info("lease bound",
			"ip", lease.Address.String(),
			"server_id", lease.ServerID.String(),
			"lease", leaseString(lease.LeaseTime, lease.LeaseKnown),
			"attempts", rs.attempts,
			"elapsed", elapsed.String())
	case errors.As(err, &nak):
		rec.Reason = nak.Message
		c.logger.Warn("DHCPNAK received",
			"server_id", nak.ServerID.String(),
			"message", nak.Message)
	default:
		rec.Reason = err.Error()
		c.logger.Warn("DHCP exchange failed",
			"outcome", outcome,
			"attempts", rs.attempts,
			"error", err)
	}

	if outcome == "error" {
		return err
	}
	if c.journal != nil {
		if jerr := c.journal.Append(rec); jerr != nil {
			c.logger.Error("failed to write audit record", "event", rec.Event, "error", jerr)
		}
	}
	if c.notifier != nil {
		c.notifier.Publish(c.event(rs, lease, rec))
	}
	return err
}

// event builds the hook payload from the journal record and bound lease.
func (c *Client) event(rs *runState, lease *Lease, rec audit.Record) events.Event {
	evt := events.Event{
		Type:      events.EventType("lease." + rec.Event),
		Timestamp: c.now(),
		Interface: rec.Interface,
		MAC:       rec.MAC,
		XID:       rec.XID,
		Attempts:  rs.attempts,
		Reason:    rec.Reason,
	}

	switch {
	case lease != nil:
		ld := &events.LeaseData{
			IP:             lease.Address,
			RequestedIP:    c.cfg.RequestedIP,
			ServerID:       lease.ServerID,
			Routers:        lease.Routers,
			DNSServers:     lease.DNS,
			DomainName:     lease.DomainName,
			Hostname:       c.cfg.Transaction.Hostname,
			LeaseSeconds:   rec.LeaseSeconds,
			RenewalSeconds: int64(lease.T1 / time.Second),
			RebindSeconds:  int64(lease.T2 / time.Second),
		}
		if lease.SubnetMask != nil {
			ld.SubnetMask = net.IP(lease.SubnetMask).String()
		}
		for _, r := range lease.StaticRoutes {
			ld.StaticRoutes = append(ld.StaticRoutes, r.String())
		}
		evt.Lease = ld
	case rs.offer != nil:
		evt.Lease = &events.LeaseData{
			IP:          rs.offer.Address,
			RequestedIP: c.cfg.RequestedIP,
			ServerID:    rs.offer.ServerID,
		}
	}
	return evt
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return audit.EventBound
	case errors.Is(err, ErrNak):
		return audit.EventNak
	case errors.Is(err, ErrOfferMismatch):
		return audit.EventOfferMismatch
	case errors.Is(err, ErrTimeout):
		return audit.EventTimeout
	default:
		return "error"
	}
}

// retryDelay returns the wait before retry n (1-based).
func (c *Client) retryDelay(n int) time.Duration {
	if c.cfg.Backoff <= 0 {
		return 0
	}
	d := c.cfg.Backoff
	for i := 1; i < n; i++ {
		d *= 2
		if c.cfg.MaxBackoff > 0 && d >= c.cfg.MaxBackoff {
			d = c.cfg.MaxBackoff
			break
		}
	}
	if c.cfg.MaxBackoff > 0 && d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	if c.cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(2*c.cfg.Jitter)+1)) - c.cfg.Jitter
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (c *Client) elapsedSecs(start time.Time) uint16 {
	secs := c.now().Sub(start) / time.Second
	if secs > 0xFFFF {
		return 0xFFFF
	}
	if secs < 0 {
		return 0
	}
	return uint16(secs)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func leaseString(d time.Duration, known bool) string {
	if !known {
		return "unknown"
	}
	return d.String()
}
