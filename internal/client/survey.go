package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// ServerOffer is one server's answer to a survey DISCOVER.
type ServerOffer struct {
	Offer
	Received time.Time
	Summary  string
}

// Survey broadcasts one DHCPDISCOVER and collects the first offer from each
// distinct server until timeout. It never sends a DHCPREQUEST. mac overrides
// the configured hardware address when non-nil.
func (c *Client) Survey(ctx context.Context, timeout time.Duration, mac net.HardwareAddr) ([]ServerOffer, error) {
	if mac == nil {
		mac = c.cfg.HardwareAddr
	}
	xid, err := c.newXID()
	if err != nil {
		return nil, err
	}

	tx := NewTransaction(c.cfg.Transaction)
	discover, err := tx.BeginDiscovery(xid, mac, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Abandon() }()

	if err := c.send(ctx, discover, dhcpv4.MessageTypeDiscover); err != nil {
		return nil, err
	}
	c.logger.Debug("survey DHCPDISCOVER sent",
		"xid", dhcpv4.FormatXID(xid),
		"mac", mac.String(),
		"timeout", timeout.String())

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]bool)
	var found []ServerOffer
	for {
		data, err := c.tr.Receive(sctx)
		if err != nil {
			if errors.Is(err, transport.ErrTruncatedRead) {
				metrics.PacketsDiscarded.WithLabelValues("truncated").Inc()
				continue
			}
			if ctx.Err() != nil {
				return found, ctx.Err()
			}
			if sctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return found, fmt.Errorf("receiving survey reply: %w", err)
		}

		pkt, reason, _ := tx.decodeReply(data)
		var offer *Offer
		if reason == "" {
			offer, reason = classifyOffer(pkt)
		}
		if reason != "" {
			metrics.PacketsDiscarded.WithLabelValues(string(reason)).Inc()
			continue
		}

		sid := offer.ServerID.String()
		if seen[sid] {
			c.logger.Debug("survey duplicate offer", "server_id", sid)
			continue
		}
		seen[sid] = true

		metrics.PacketsReceived.WithLabelValues(dhcpv4.MessageTypeOffer.String()).Inc()
		metrics.OffersSeen.WithLabelValues(sid).Inc()
		c.logger.Info("survey found DHCP server",
			"server_id", sid,
			"offered_ip", offer.Address.String(),
			"lease", leaseString(offer.LeaseTime, offer.LeaseKnown))

		found = append(found, ServerOffer{
			Offer:    *offer,
			Received: c.now(),
			Summary:  pkt.Summary(),
		})
	}

	c.logger.Info("survey complete", "servers_found", len(found))
	return found, nil
}
