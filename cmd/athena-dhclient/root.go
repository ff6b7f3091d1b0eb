package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/athena-dhcpd/athena-dhclient/internal/client"
	"github.com/athena-dhcpd/athena-dhclient/internal/config"
	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	"github.com/athena-dhcpd/athena-dhclient/internal/hostname"
	"github.com/athena-dhcpd/athena-dhclient/internal/logging"
	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/internal/netif"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	iface      string
	mac        string
	logLevel   string
	logFormat  string
	textfile   string
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "athena-dhclient",
		Short:         "DHCPv4 client.",
		Long:          `athena-dhclient obtains a DHCPv4 lease with a single bounded DISCOVER/OFFER/REQUEST/ACK exchange, and can survey the DHCP servers on a link.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			metrics.ClientInfo.WithLabelValues(version).Set(1)
		},
	}

	bindGlobalFlags(root.PersistentFlags(), gf)
	root.AddCommand(newAcquireCmd(gf), newProbeCmd(gf), newAuditCmd(gf))
	return root
}

func bindGlobalFlags(fs *pflag.FlagSet, gf *globalFlags) {
	fs.StringVarP(&gf.configPath, "config", "c", "", "path to configuration file (defaults are used when empty)")
	fs.StringVarP(&gf.iface, "interface", "i", "", "interface to run on (default: the default-route interface)")
	fs.StringVar(&gf.mac, "client-mac", "", "client hardware address override")
	fs.StringVar(&gf.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&gf.logFormat, "log-format", "", "log format: json or text")
	fs.StringVar(&gf.textfile, "metrics-textfile", "", "write metrics to this file on exit")
}

// loadConfig reads the config file, if any, and applies command-line overrides.
func loadConfig(cmd *cobra.Command, gf *globalFlags) (*config.Config, error) {
	var cfg *config.Config
	if gf.configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(gf.configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Client.Interface = gf.iface
	}
	if flags.Changed("client-mac") {
		cfg.Client.HardwareAddress = gf.mac
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = gf.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = gf.logFormat
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = gf.textfile
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

// resolveInterface picks the configured interface, or the one holding the
// default route.
func resolveInterface(cfg *config.Config) (*netif.Info, error) {
	if cfg.Client.Interface != "" {
		return netif.Lookup(cfg.Client.Interface)
	}
	return netif.Default()
}

// clientConfig maps the file configuration onto one client run.
func clientConfig(cfg *config.Config, info *netif.Info, logger *slog.Logger) (client.Config, error) {
	extra, err := cfg.ExtraOptions()
	if err != nil {
		return client.Config{}, err
	}

	mac := cfg.HardwareAddr()
	if mac == nil {
		mac = info.HardwareAddr
	}
	if len(mac) == 0 {
		return client.Config{}, fmt.Errorf("interface %s: %w", info.Name, client.ErrNoHardwareAddr)
	}

	sanitiser, err := hostname.NewSanitiser(cfg.Client.HostnamePolicy, logger)
	if err != nil {
		return client.Config{}, err
	}

	return client.Config{
		Interface:    info.Name,
		HardwareAddr: mac,
		RequestedIP:  cfg.RequestedIP(),
		Transaction: client.TransactionConfig{
			ClientID:             cfg.Client.ClientID,
			Hostname:             sanitiser.Resolve(cfg.Client.Hostname, mac),
			ParameterRequestList: cfg.ParameterRequestList(),
			MaxMessageSize:       transport.MaxMessageSize(cfg.Transport.ReadBufferSize),
			Broadcast:            cfg.Client.Broadcast,
			PadTo:                cfg.PadTo(),
			ExtraOptions:         extra,
		},
		AcceptOffered: cfg.Client.AcceptOffered,
		OfferTimeout:  cfg.GetOfferTimeout(),
		AckTimeout:    cfg.GetAckTimeout(),
		Attempts:      cfg.Client.Attempts,
		Backoff:       cfg.GetBackoff(),
		MaxBackoff:    cfg.GetMaxBackoff(),
		Jitter:        cfg.GetJitter(),
	}, nil
}

func transportConfig(cfg *config.Config, info *netif.Info) transport.Config {
	return transport.Config{
		Interface:      info.Name,
		IfIndex:        info.Index,
		BindToDevice:   cfg.Transport.BindToDevice,
		ReadBufferSize: cfg.Transport.ReadBufferSize,
		LocalPort:      cfg.Transport.LocalPort,
		ServerPort:     cfg.Transport.ServerPort,
	}
}

// newDispatcher registers the configured script and webhook hooks.
func newDispatcher(cfg *config.Config, logger *slog.Logger) *events.Dispatcher {
	d := events.NewDispatcher(logger, cfg.Hooks.ScriptConcurrency, config.DefaultWebhookTimeout)
	for _, sh := range cfg.Hooks.Scripts {
		d.AddScript(events.ScriptConfig{
			Name:    sh.Name,
			Events:  sh.Events,
			Command: sh.Command,
			Timeout: durationOr(sh.Timeout, config.DefaultScriptTimeout),
		})
	}
	for _, wh := range cfg.Hooks.Webhooks {
		d.AddWebhook(events.WebhookConfig{
			Name:         wh.Name,
			Events:       wh.Events,
			URL:          wh.URL,
			Method:       wh.Method,
			Headers:      wh.Headers,
			Timeout:      durationOr(wh.Timeout, config.DefaultWebhookTimeout),
			Retries:      wh.Retries,
			RetryBackoff: durationOr(wh.RetryBackoff, config.DefaultWebhookRetryBackoff),
			Secret:       wh.Secret,
			Template:     wh.Template,
		})
	}
	return d
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := config.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// writeMetrics exports the textfile when one is configured.
func writeMetrics(cfg *config.Config, logger *slog.Logger) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("failed to write metrics textfile", "error", err)
	}
}

func ipStrings(ips []net.IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out
}
