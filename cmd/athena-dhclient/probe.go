package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/athena-dhcpd/athena-dhclient/internal/client"
	"github.com/athena-dhcpd/athena-dhclient/internal/config"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
)

type probeFlags struct {
	timeout   time.Duration
	randomMAC bool
}

func newProbeCmd(gf *globalFlags) *cobra.Command {
	pf := &probeFlags{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Broadcast a DISCOVER and list every DHCP server that answers.",
		Long:  `probe sends one DHCPDISCOVER and reports the first offer from each server until the timeout. It never sends a DHCPREQUEST, so no lease is taken.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, gf, pf)
		},
	}

	f := cmd.Flags()
	f.DurationVar(&pf.timeout, "timeout", config.DefaultProbeTimeout, "how long to collect offers")
	f.BoolVar(&pf.randomMAC, "random-mac", false, "use a random locally administered MAC")
	return cmd
}

func runProbe(cmd *cobra.Command, gf *globalFlags, pf *probeFlags) error {
	cfg, err := loadConfig(cmd, gf)
	if err != nil {
		return err
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

	mac := ccfg.HardwareAddr
	if pf.randomMAC {
		if mac, err = client.RandomMAC(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	conn, err := transport.Listen(ctx, transportConfig(cfg, info), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	offers, err := client.New(ccfg, conn, logger).Survey(ctx, pf.timeout, mac)
	writeOffers(cmd.OutOrStdout(), offers)
	return err
}

func writeOffers(w io.Writer, offers []client.ServerOffer) {
	if len(offers) == 0 {
		fmt.Fprintln(w, "no DHCP servers answered")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tOFFERED\tLEASE\tRECEIVED")
	for _, o := range offers {
		lease := "unspecified"
		if o.LeaseKnown {
			lease = o.LeaseTime.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			o.ServerID, o.Address, lease, o.Received.Format(time.RFC3339))
	}
	tw.Flush()
}
