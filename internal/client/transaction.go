// Package client drives a DHCPv4 DISCOVER/OFFER/REQUEST/ACK exchange.
//
// Transaction is the protocol engine: it builds outbound messages and
// classifies inbound datagrams, but performs no I/O and keeps no clock.
// Client wraps it with a Transport, timeouts, retries and observability.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// State is the position of a Transaction in the DORA exchange.
type State int

const (
	StateInit State = iota
	StateAwaitingOffer
	StateAwaitingAck
	StateBound
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingOffer:
		return "awaiting_offer"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateBound:
		return "bound"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further operation can change the state.
func (s State) Terminal() bool {
	return s == StateBound || s == StateRejected || s == StateFailed
}

// Outcome classifies a processed datagram.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeOffer
	OutcomeOfferMismatch
	OutcomeAck
	OutcomeNak
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeOffer:
		return "offer"
	case OutcomeOfferMismatch:
		return "offer_mismatch"
	case OutcomeAck:
		return "ack"
	case OutcomeNak:
		return "nak"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// DiscardReason says why a datagram was ignored. Values are used as metric labels.
type DiscardReason string

const (
	DiscardDecode     DiscardReason = "decode"
	DiscardOp         DiscardReason = "op"
	DiscardXID        DiscardReason = "xid"
	DiscardType       DiscardReason = "type"
	DiscardNoServerID DiscardReason = "no_server_id"
	DiscardServerID   DiscardReason = "server_id"
)

// Offer is what the engine remembers from the accepted DHCPOFFER.
type Offer struct {
	Address    net.IP
	LeaseTime  time.Duration
	LeaseKnown bool
	ServerID   net.IP
}

// Lease is the configuration granted by a DHCPACK.
type Lease struct {
	Address      net.IP
	LeaseTime    time.Duration
	LeaseKnown   bool
	ServerID     net.IP
	SubnetMask   net.IPMask
	Routers      []net.IP
	DNS          []net.IP
	DomainName   string
	T1           time.Duration
	T2           time.Duration
	StaticRoutes []dhcpv4.CIDRRoute
}

func leaseFromPacket(p *dhcp.Packet, serverID net.IP) *Lease {
	l := &Lease{
		Address:      p.AssignedAddress(),
		ServerID:     serverID,
		SubnetMask:   p.SubnetMask(),
		Routers:      p.Routers(),
		DNS:          p.DNSServers(),
		DomainName:   p.DomainName(),
		StaticRoutes: p.StaticRoutes(),
	}
	l.LeaseTime, l.LeaseKnown = p.LeaseTime()
	l.T1, _ = p.RenewalTime()
	l.T2, _ = p.RebindingTime()
	return l
}

// Result is returned for every datagram fed to OnDatagram. When Outcome is
// OutcomeNone, Discard names the reason and DecodeErr is set for decode failures.
type Result struct {
	Outcome   Outcome
	Discard   DiscardReason
	DecodeErr error

	Offer    *Offer // OutcomeOffer, OutcomeOfferMismatch
	Lease    *Lease // OutcomeAck
	ServerID net.IP // OutcomeNak
	Message  string // OutcomeNak, option 56

	Packet *dhcp.Packet // nil when decoding failed
}

func discard(reason DiscardReason, pkt *dhcp.Packet) Result {
	return Result{Outcome: OutcomeNone, Discard: reason, Packet: pkt}
}

// TransactionConfig holds the options placed in every outbound message.
type TransactionConfig struct {
	ClientID             bool                // send option 61 built from the MAC
	Hostname             string              // option 12, omitted when empty
	ParameterRequestList []dhcpv4.OptionCode // option 55, omitted when empty
	MaxMessageSize       uint16              // option 57, omitted when zero
	Broadcast            bool                // set the BROADCAST flag
	PadTo                int                 // zero-fill after END up to this size; 0 disables
	ExtraOptions         dhcp.Options        // appended after the standard options
}

// Transaction is one DORA exchange. It is not safe for concurrent use;
// separate transactions share no state.
type Transaction struct {
	cfg TransactionConfig

	state       State
	xid         uint32
	mac         net.HardwareAddr
	requested   net.IP
	offer       *Offer
	requestSent bool
	secs        uint16
}

// NewTransaction returns a transaction in StateInit.
func NewTransaction(cfg TransactionConfig) *Transaction {
	cfg.ParameterRequestList = append([]dhcpv4.OptionCode(nil), cfg.ParameterRequestList...)
	cfg.ExtraOptions = cfg.ExtraOptions.Clone()
	return &Transaction{cfg: cfg, state: StateInit}
}

// State returns the current state.
func (t *Transaction) State() State { return t.state }

// XID returns the transaction id of the current discovery, zero before BeginDiscovery.
func (t *Transaction) XID() uint32 { return t.xid }

// Offer returns the recorded offer, nil until one is accepted.
func (t *Transaction) Offer() *Offer { return t.offer }

// SetSecs sets the seconds-elapsed value for subsequently built messages.
func (t *Transaction) SetSecs(secs uint16) { t.secs = secs }

// BeginDiscovery builds a DHCPDISCOVER. It is valid in StateInit and, to restart
// with a fresh xid, in StateAwaitingOffer. requested may be nil.
func (t *Transaction) BeginDiscovery(xid uint32, mac net.HardwareAddr, requested net.IP) ([]byte, error) {
	if t.state != StateInit && t.state != StateAwaitingOffer {
		return nil, fmt.Errorf("%w: BeginDiscovery in %s", ErrInvalidState, t.state)
	}
	if len(mac) == 0 {
		return nil, ErrNoHardwareAddr
	}

	if dhcpv4.IsUnspecified(requested) {
		requested = nil
	}
	if requested != nil {
		ip4 := requested.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("requested address %s is not IPv4", requested)
		}
		requested = ip4
	}

	mods := []dhcp.Modifier{
		dhcp.WithMessageType(dhcpv4.MessageTypeDiscover),
		dhcp.WithRequestedIP(requested),
	}
	pkt := dhcp.NewRequest(xid, mac, append(mods, t.commonModifiers(mac)...)...)

	data, err := t.encode(pkt)
	if err != nil {
		return nil, fmt.Errorf("encoding DHCPDISCOVER: %w", err)
	}

	t.xid = xid
	t.mac = append(net.HardwareAddr(nil), mac...)
	t.requested = requested
	t.offer = nil
	t.requestSent = false
	t.state = StateAwaitingOffer
	return data, nil
}

// ConfirmRequest builds the DHCPREQUEST for the recorded offer. It is valid
// once, in StateAwaitingAck.
func (t *Transaction) ConfirmRequest() ([]byte, error) {
	if t.state != StateAwaitingAck || t.requestSent {
		return nil, fmt.Errorf("%w: ConfirmRequest in %s", ErrInvalidState, t.state)
	}

	mods := []dhcp.Modifier{
		dhcp.WithMessageType(dhcpv4.MessageTypeRequest),
		dhcp.WithRequestedIP(t.offer.Address),
		dhcp.WithServerIdentifier(t.offer.ServerID),
	}
	pkt := dhcp.NewRequest(t.xid, t.mac, append(mods, t.commonModifiers(t.mac)...)...)

	data, err := t.encode(pkt)
	if err != nil {
		return nil, fmt.Errorf("encoding DHCPREQUEST: %w", err)
	}
	t.requestSent = true
	return data, nil
}

// Abandon ends an exchange that is still waiting for a reply.
func (t *Transaction) Abandon() error {
	if t.state != StateAwaitingOffer && t.state != StateAwaitingAck {
		return fmt.Errorf("%w: Abandon in %s", ErrInvalidState, t.state)
	}
	t.state = StateFailed
	return nil
}

// OnDatagram classifies one received datagram. Malformed or unrelated
// datagrams are reported through Result.Discard and never as errors.
func (t *Transaction) OnDatagram(data []byte) (Result, error) {
	switch t.state {
	case StateAwaitingOffer:
		return t.onOfferPhase(data), nil
	case StateAwaitingAck:
		if !t.requestSent {
			return Result{}, ErrRequestNotSent
		}
		return t.onAckPhase(data), nil
	default:
		return Result{}, fmt.Errorf("%w: OnDatagram in %s", ErrInvalidState, t.state)
	}
}

func (t *Transaction) onOfferPhase(data []byte) Result {
	pkt, reason, err := t.decodeReply(data)
	if err != nil || reason != "" {
		return Result{Discard: reason, DecodeErr: err, Packet: pkt}
	}

	offer, reason := classifyOffer(pkt)
	if reason != "" {
		return discard(reason, pkt)
	}

	t.offer = offer
	t.state = StateAwaitingAck

	res := Result{Outcome: OutcomeOffer, Offer: offer, Packet: pkt}
	if t.requested != nil && !offer.Address.Equal(t.requested) {
		res.Outcome = OutcomeOfferMismatch
	}
	return res
}

func (t *Transaction) onAckPhase(data []byte) Result {
	pkt, reason, err := t.decodeReply(data)
	if err != nil || reason != "" {
		return Result{Discard: reason, DecodeErr: err, Packet: pkt}
	}

	mt := pkt.MessageType()
	if mt != dhcpv4.MessageTypeAck && mt != dhcpv4.MessageTypeNak {
		return discard(DiscardType, pkt)
	}
	// Option 54 may be absent; when present it must name the offering server.
	if pkt.Options.Has(dhcpv4.OptionServerIdentifier) && !pkt.ServerIdentifier().Equal(t.offer.ServerID) {
		return discard(DiscardServerID, pkt)
	}

	if mt == dhcpv4.MessageTypeNak {
		t.state = StateRejected
		return Result{
			Outcome:  OutcomeNak,
			ServerID: t.offer.ServerID,
			Message:  pkt.Message(),
			Packet:   pkt,
		}
	}

	t.state = StateBound
	return Result{
		Outcome: OutcomeAck,
		Lease:   leaseFromPacket(pkt, t.offer.ServerID),
		Packet:  pkt,
	}
}

// decodeReply applies the checks shared by both phases: well-formed, a reply,
// and addressed to this transaction.
func (t *Transaction) decodeReply(data []byte) (*dhcp.Packet, DiscardReason, error) {
	pkt, err := dhcp.DecodePacket(data)
	if err != nil {
		return nil, DiscardDecode, err
	}
	if pkt.Op != dhcpv4.OpCodeBootReply {
		return pkt, DiscardOp, nil
	}
	if pkt.XID != t.xid {
		return pkt, DiscardXID, nil
	}
	return pkt, "", nil
}

// classifyOffer checks the message-level criteria for an acceptable offer.
func classifyOffer(pkt *dhcp.Packet) (*Offer, DiscardReason) {
	if pkt.MessageType() != dhcpv4.MessageTypeOffer {
		return nil, DiscardType
	}
	sid := pkt.ServerIdentifier()
	if sid == nil {
		return nil, DiscardNoServerID
	}
	offer := &Offer{
		Address:  pkt.AssignedAddress(),
		ServerID: sid,
	}
	offer.LeaseTime, offer.LeaseKnown = pkt.LeaseTime()
	return offer, ""
}

func (t *Transaction) commonModifiers(mac net.HardwareAddr) []dhcp.Modifier {
	mods := []dhcp.Modifier{
		dhcp.WithBroadcast(t.cfg.Broadcast),
		dhcp.WithSecs(t.secs),
	}
	if t.cfg.ClientID {
		mods = append(mods, dhcp.WithClientID(mac))
	}
	mods = append(mods,
		dhcp.WithMaxMessageSize(t.cfg.MaxMessageSize),
		dhcp.WithHostname(t.cfg.Hostname),
		dhcp.WithParameterRequestList(t.cfg.ParameterRequestList),
		dhcp.WithOptions(t.cfg.ExtraOptions),
	)
	return mods
}

func (t *Transaction) encode(pkt *dhcp.Packet) ([]byte, error) {
	if t.cfg.PadTo > 0 {
		return pkt.EncodePadded(t.cfg.PadTo)
	}
	return pkt.Encode()
}
