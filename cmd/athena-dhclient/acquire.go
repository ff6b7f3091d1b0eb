package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/athena-dhcpd/athena-dhclient/internal/audit"
	"github.com/athena-dhcpd/athena-dhclient/internal/client"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
)

type acquireFlags struct {
	requestedIP   string
	hostname      string
	acceptOffered bool
	attempts      int
	asJSON        bool
}

func newAcquireCmd(gf *globalFlags) *cobra.Command {
	af := &acquireFlags{}

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Run one DHCP exchange and print the bound lease.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquire(cmd, gf, af)
		},
	}

	f := cmd.Flags()
	f.StringVar(&af.requestedIP, "requested-ip", "", "address to ask the server for")
	f.StringVar(&af.hostname, "hostname", "", "host name to send in option 12")
	f.BoolVar(&af.acceptOffered, "accept-offered", false, "accept an offer that differs from --requested-ip")
	f.IntVar(&af.attempts, "attempts", 0, "number of exchanges to try before giving up")
	f.BoolVar(&af.asJSON, "json", false, "print the lease as JSON")
	return cmd
}

func runAcquire(cmd *cobra.Command, gf *globalFlags, af *acquireFlags) error {
	cfg, err := loadConfig(cmd, gf)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("requested-ip") {
		cfg.Client.RequestedIP = af.requestedIP
	}
	if flags.Changed("hostname") {
		cfg.Client.Hostname = af.hostname
	}
	if flags.Changed("accept-offered") {
		cfg.Client.AcceptOffered = af.acceptOffered
	}
	if flags.Changed("attempts") {
		cfg.Client.Attempts = af.attempts
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer writeMetrics(cfg, logger)

	info, err := resolveInterface(cfg)
	if err != nil {
		return err
	}
	ccfg, err := clientConfig(cfg, info, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	conn, err := transport.Listen(ctx, transportConfig(cfg, info), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	var opts []client.Option
	if cfg.Audit.Enabled {
		journal, err := audit.Open(cfg.Audit.Path, logger)
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, client.WithJournal(journal))
	}
	if hooks := newDispatcher(cfg, logger); !hooks.Empty() {
		defer hooks.Wait()
		opts = append(opts, client.WithNotifier(hooks))
	}

	logger.Info("athena-dhclient starting",
		"version", version,
		"interface", info.Name,
		"mac", ccfg.HardwareAddr.String(),
		"local", conn.LocalAddr().String())

	lease, err := client.New(ccfg, conn, logger, opts...).Acquire(ctx)
	if err != nil {
		return err
	}

	if af.asJSON {
		return writeLeaseJSON(cmd.OutOrStdout(), info.Name, lease)
	}
	writeLease(cmd.OutOrStdout(), info.Name, lease)
	return nil
}

// leaseJSON is the --json output of acquire.
type leaseJSON struct {
	Interface    string   `json:"interface"`
	Address      string   `json:"address"`
	SubnetMask   string   `json:"subnet_mask,omitempty"`
	ServerID     string   `json:"server_id,omitempty"`
	LeaseSeconds *int64   `json:"lease_seconds,omitempty"`
	RenewalSecs  int64    `json:"renewal_seconds,omitempty"`
	RebindSecs   int64    `json:"rebinding_seconds,omitempty"`
	Routers      []string `json:"routers,omitempty"`
	DNS          []string `json:"dns,omitempty"`
	DomainName   string   `json:"domain_name,omitempty"`
	StaticRoutes []string `json:"static_routes,omitempty"`
}

func toLeaseJSON(iface string, l *client.Lease) leaseJSON {
	out := leaseJSON{
		Interface:   iface,
		Address:     l.Address.String(),
		RenewalSecs: int64(l.T1.Seconds()),
		RebindSecs:  int64(l.T2.Seconds()),
		Routers:     ipStrings(l.Routers),
		DNS:         ipStrings(l.DNS),
		DomainName:  l.DomainName,
	}
	if l.SubnetMask != nil {
		out.SubnetMask = net4MaskString(l.SubnetMask)
	}
	if l.ServerID != nil {
		out.ServerID = l.ServerID.String()
	}
	if l.LeaseKnown {
		secs := int64(l.LeaseTime.Seconds())
		out.LeaseSeconds = &secs
	}
	for _, r := range l.StaticRoutes {
		out.StaticRoutes = append(out.StaticRoutes, r.String())
	}
	return out
}

func writeLeaseJSON(w io.Writer, iface string, l *client.Lease) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toLeaseJSON(iface, l)); err != nil {
		return fmt.Errorf("encoding lease: %w", err)
	}
	return nil
}

func writeLease(w io.Writer, iface string, l *client.Lease) {
	j := toLeaseJSON(iface, l)
	fmt.Fprintf(w, "interface:   %s\n", j.Interface)
	fmt.Fprintf(w, "address:     %s\n", j.Address)
	if j.SubnetMask != "" {
		fmt.Fprintf(w, "subnet mask: %s\n", j.SubnetMask)
	}
	if j.ServerID != "" {
		fmt.Fprintf(w, "server:      %s\n", j.ServerID)
	}
	if j.LeaseSeconds != nil {
		fmt.Fprintf(w, "lease:       %ds\n", *j.LeaseSeconds)
	} else {
		fmt.Fprintf(w, "lease:       unspecified\n")
	}
	if len(j.Routers) > 0 {
		fmt.Fprintf(w, "routers:     %s\n", strings.Join(j.Routers, ", "))
	}
	if len(j.DNS) > 0 {
		fmt.Fprintf(w, "dns:         %s\n", strings.Join(j.DNS, ", "))
	}
	if j.DomainName != "" {
		fmt.Fprintf(w, "domain:      %s\n", j.DomainName)
	}
	for _, r := range j.StaticRoutes {
		fmt.Fprintf(w, "route:       %s\n", r)
	}
}

func net4MaskString(m []byte) string {
	if len(m) != 4 {
		return fmt.Sprintf("%x", m)
	}
	return fmt.Sprintf("%d.%d.%d.%d", m[0], m[1], m[2], m[3])
}
