// Package events runs the hooks fired when an exchange finishes: shell
// scripts that configure the interface, and webhooks that report outcomes.
package events

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// EventType identifies how an exchange ended.
type EventType string

const (
	EventLeaseBound         EventType = "lease.bound"
	EventLeaseNak           EventType = "lease.nak"
	EventLeaseOfferMismatch EventType = "lease.offer_mismatch"
	EventLeaseTimeout       EventType = "lease.timeout"
)

// Event is the payload handed to every hook.
type Event struct {
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Interface string     `json:"interface"`
	MAC       string     `json:"mac"`
	XID       string     `json:"xid,omitempty"`
	Attempts  int        `json:"attempts"`
	Lease     *LeaseData `json:"lease,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// LeaseData carries the bound lease, or the rejected offer.
type LeaseData struct {
	IP             net.IP   `json:"ip"`
	RequestedIP    net.IP   `json:"requested_ip,omitempty"`
	ServerID       net.IP   `json:"server_id,omitempty"`
	SubnetMask     string   `json:"subnet_mask,omitempty"`
	Routers        []net.IP `json:"routers,omitempty"`
	DNSServers     []net.IP `json:"dns_servers,omitempty"`
	DomainName     string   `json:"domain_name,omitempty"`
	Hostname       string   `json:"hostname,omitempty"`
	LeaseSeconds   int64    `json:"lease_seconds,omitempty"`
	RenewalSeconds int64    `json:"renewal_seconds,omitempty"`
	RebindSeconds  int64    `json:"rebind_seconds,omitempty"`
	StaticRoutes   []string `json:"static_routes,omitempty"`
}

// ToEnvVars converts an event to environment variables for script hooks.
func (e *Event) ToEnvVars() map[string]string {
	env := map[string]string{
		"ATHENA_EVENT":     string(e.Type),
		"ATHENA_INTERFACE": e.Interface,
		"ATHENA_MAC":       e.MAC,
		"ATHENA_ATTEMPTS":  fmt.Sprintf("%d", e.Attempts),
	}
	if e.XID != "" {
		env["ATHENA_XID"] = e.XID
	}
	if e.Reason != "" {
		env["ATHENA_REASON"] = e.Reason
	}

	if e.Lease != nil {
		l := e.Lease
		if l.IP != nil {
			env["ATHENA_IP"] = l.IP.String()
		}
		if l.RequestedIP != nil {
			env["ATHENA_REQUESTED_IP"] = l.RequestedIP.String()
		}
		if l.ServerID != nil {
			env["ATHENA_SERVER_ID"] = l.ServerID.String()
		}
		if l.SubnetMask != "" {
			env["ATHENA_SUBNET_MASK"] = l.SubnetMask
		}
		if len(l.Routers) > 0 {
			env["ATHENA_ROUTERS"] = joinIPs(l.Routers)
		}
		if len(l.DNSServers) > 0 {
			env["ATHENA_DNS_SERVERS"] = joinIPs(l.DNSServers)
		}
		if l.DomainName != "" {
			env["ATHENA_DOMAIN"] = l.DomainName
		}
		if l.Hostname != "" {
			env["ATHENA_HOSTNAME"] = l.Hostname
		}
		if l.LeaseSeconds != 0 {
			env["ATHENA_LEASE_DURATION"] = fmt.Sprintf("%d", l.LeaseSeconds)
		}
		if l.RenewalSeconds != 0 {
			env["ATHENA_RENEWAL_TIME"] = fmt.Sprintf("%d", l.RenewalSeconds)
		}
		if l.RebindSeconds != 0 {
			env["ATHENA_REBIND_TIME"] = fmt.Sprintf("%d", l.RebindSeconds)
		}
		if len(l.StaticRoutes) > 0 {
			env["ATHENA_STATIC_ROUTES"] = strings.Join(l.StaticRoutes, ",")
		}
	}

	return env
}

// joinIPs renders a list the way resolv.conf-style scripts expect: space separated.
func joinIPs(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, " ")
}
