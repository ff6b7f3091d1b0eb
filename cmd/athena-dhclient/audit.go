package main

import (
	"fmt"
	"io"
	"net"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/athena-dhcpd/athena-dhclient/internal/audit"
)

type auditFlags struct {
	ip    string
	mac   string
	event string
	since time.Duration
	limit int
	asCSV bool
}

func newAuditCmd(gf *globalFlags) *cobra.Command {
	af := &auditFlags{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print recent exchange journal entries.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, gf, af)
		},
	}

	f := cmd.Flags()
	f.StringVar(&af.ip, "ip", "", "only entries for this address")
	f.StringVar(&af.mac, "mac", "", "only entries for this hardware address")
	f.StringVar(&af.event, "event", "", "only entries of this event (bound, nak, offer_mismatch, timeout)")
	f.DurationVar(&af.since, "since", 0, "only entries newer than this")
	f.IntVar(&af.limit, "limit", 50, "maximum entries to print")
	f.BoolVar(&af.asCSV, "csv", false, "print CSV instead of a table")
	return cmd
}

func runAudit(cmd *cobra.Command, gf *globalFlags, af *auditFlags) error {
	cfg, err := loadConfig(cmd, gf)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	params := audit.QueryParams{
		Event: af.event,
		Limit: af.limit,
	}
	if af.mac != "" {
		mac, err := net.ParseMAC(af.mac)
		if err != nil {
			return fmt.Errorf("--mac %q: %w", af.mac, err)
		}
		params.MAC = audit.MACString(mac)
	}
	if af.ip != "" {
		ip := net.ParseIP(af.ip)
		if ip == nil {
			return fmt.Errorf("--ip %q is not a valid IP address", af.ip)
		}
		params.IP = audit.IPString(ip)
	}
	if af.since > 0 {
		params.From = time.Now().Add(-af.since)
	}

	journal, err := audit.Open(cfg.Audit.Path, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	records, err := journal.Query(params)
	if err != nil {
		return err
	}

	if af.asCSV {
		return audit.WriteCSV(cmd.OutOrStdout(), records)
	}
	writeRecords(cmd.OutOrStdout(), records)
	return nil
}

func writeRecords(w io.Writer, records []audit.Record) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tINTERFACE\tMAC\tIP\tSERVER\tLEASE\tREASON")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Timestamp, r.Event, r.Interface, r.MAC,
			r.IP, r.ServerID, r.LeaseSeconds, r.Reason)
	}
	tw.Flush()
}
