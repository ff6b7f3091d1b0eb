// Package config handles TOML configuration parsing and validation for athena-dhclient.
package config

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Config is the top-level configuration for athena-dhclient.
type Config struct {
	Client    ClientConfig    `toml:"client"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Hooks     HooksConfig     `toml:"hooks"`
	Audit     AuditConfig     `toml:"audit"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// ClientConfig holds exchange settings.
type ClientConfig struct {
	Interface            string         `toml:"interface"`
	HardwareAddress      string         `toml:"hardware_address"`
	RequestedIP          string         `toml:"requested_ip"`
	Hostname             string         `toml:"hostname"`
	ClientID             bool           `toml:"client_id"`
	ParameterRequestList []int          `toml:"parameter_request_list"`
	Broadcast            bool           `toml:"broadcast"`
	PadPackets           bool           `toml:"pad_packets"`
	AcceptOffered        bool           `toml:"accept_offered"`
	OfferTimeout         string         `toml:"offer_timeout"`
	AckTimeout           string         `toml:"ack_timeout"`
	Attempts             int            `toml:"attempts"`
	Backoff              string         `toml:"backoff"`
	MaxBackoff           string         `toml:"max_backoff"`
	Jitter               string         `toml:"jitter"`
	HostnamePolicy       HostnameConfig `toml:"hostname_policy"`
	Options              []OptionConfig `toml:"option"`
}

// HostnameConfig controls how option 12 is derived and cleaned.
type HostnameConfig struct {
	FromSystem       bool     `toml:"from_system"`
	Lowercase        bool     `toml:"lowercase"`
	ShortName        bool     `toml:"short_name"`
	MaxLength        int      `toml:"max_length"`
	DenyPatterns     []string `toml:"deny_patterns"`
	FallbackTemplate string   `toml:"fallback_template"`
}

// OptionConfig holds an extra option sent in every DISCOVER and REQUEST.
type OptionConfig struct {
	Code  int         `toml:"code"`
	Type  string      `toml:"type"`
	Value interface{} `toml:"value"`
}

// TransportConfig holds socket settings.
type TransportConfig struct {
	ReadBufferSize int  `toml:"read_buffer_size"`
	BindToDevice   bool `toml:"bind_to_device"`
	LocalPort      int  `toml:"local_port"`
	ServerPort     int  `toml:"server_port"`
}

// HooksConfig holds hooks run when an exchange finishes.
type HooksConfig struct {
	ScriptConcurrency int           `toml:"script_concurrency"`
	ScriptTimeout     string        `toml:"script_timeout"`
	Scripts           []ScriptHook  `toml:"script"`
	Webhooks          []WebhookHook `toml:"webhook"`
}

// ScriptHook defines a script hook.
type ScriptHook struct {
	Name    string   `toml:"name"`
	Events  []string `toml:"events"`
	Command string   `toml:"command"`
	Timeout string   `toml:"timeout"`
}

// WebhookHook defines a webhook hook.
type WebhookHook struct {
	Name         string            `toml:"name"`
	Events       []string          `toml:"events"`
	URL          string            `toml:"url"`
	Method       string            `toml:"method"`
	Headers      map[string]string `toml:"headers"`
	Timeout      string            `toml:"timeout"`
	Retries      int               `toml:"retries"`
	RetryBackoff string            `toml:"retry_backoff"`
	Secret       string            `toml:"secret"`
	Template     string            `toml:"template"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AuditConfig holds exchange journal settings.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate re-checks a config after command-line overrides.
func (cfg *Config) Validate() error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Client.OfferTimeout == "" {
		cfg.Client.OfferTimeout = DefaultOfferTimeout.String()
	}
	if cfg.Client.AckTimeout == "" {
		cfg.Client.AckTimeout = DefaultAckTimeout.String()
	}
	if cfg.Client.Attempts == 0 {
		cfg.Client.Attempts = DefaultAttempts
	}
	if cfg.Client.Backoff == "" {
		cfg.Client.Backoff = DefaultBackoff.String()
	}
	if cfg.Client.MaxBackoff == "" {
		cfg.Client.MaxBackoff = DefaultMaxBackoff.String()
	}
	if cfg.Client.Jitter == "" {
		cfg.Client.Jitter = DefaultJitter.String()
	}
	if cfg.Client.ParameterRequestList == nil {
		for _, code := range dhcpv4.DefaultParameterRequestList {
			cfg.Client.ParameterRequestList = append(cfg.Client.ParameterRequestList, int(code))
		}
	}

	if cfg.Transport.ReadBufferSize == 0 {
		cfg.Transport.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Transport.LocalPort == 0 {
		cfg.Transport.LocalPort = DefaultClientPort
	}
	if cfg.Transport.ServerPort == 0 {
		cfg.Transport.ServerPort = DefaultServerPort
	}

	if cfg.Hooks.ScriptConcurrency == 0 {
		cfg.Hooks.ScriptConcurrency = DefaultScriptConcurrency
	}
	if cfg.Hooks.ScriptTimeout == "" {
		cfg.Hooks.ScriptTimeout = DefaultScriptTimeout.String()
	}
	for i := range cfg.Hooks.Scripts {
		if cfg.Hooks.Scripts[i].Timeout == "" {
			cfg.Hooks.Scripts[i].Timeout = cfg.Hooks.ScriptTimeout
		}
	}
	for i := range cfg.Hooks.Webhooks {
		if cfg.Hooks.Webhooks[i].Method == "" {
			cfg.Hooks.Webhooks[i].Method = "POST"
		}
		if cfg.Hooks.Webhooks[i].Retries == 0 {
			cfg.Hooks.Webhooks[i].Retries = DefaultWebhookRetries
		}
		if cfg.Hooks.Webhooks[i].RetryBackoff == "" {
			cfg.Hooks.Webhooks[i].RetryBackoff = DefaultWebhookRetryBackoff.String()
		}
		if cfg.Hooks.Webhooks[i].Timeout == "" {
			cfg.Hooks.Webhooks[i].Timeout = DefaultWebhookTimeout.String()
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = DefaultAuditPath
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	c := &cfg.Client
	if c.HardwareAddress != "" {
		if _, err := net.ParseMAC(c.HardwareAddress); err != nil {
			return fmt.Errorf("client.hardware_address %q: %w", c.HardwareAddress, err)
		}
	}
	if c.RequestedIP != "" {
		if ip := net.ParseIP(c.RequestedIP); ip == nil || ip.To4() == nil {
			return fmt.Errorf("client.requested_ip %q is not a valid IPv4 address", c.RequestedIP)
		}
	}
	if len(c.Hostname) > dhcpv4.MaxOptionLength {
		return fmt.Errorf("client.hostname is %d bytes (max %d)", len(c.Hostname), dhcpv4.MaxOptionLength)
	}
	for _, code := range c.ParameterRequestList {
		if code <= 0 || code >= 255 {
			return fmt.Errorf("client.parameter_request_list: invalid option code %d", code)
		}
	}
	if len(c.ParameterRequestList) > dhcpv4.MaxOptionLength {
		return fmt.Errorf("client.parameter_request_list has %d codes (max %d)", len(c.ParameterRequestList), dhcpv4.MaxOptionLength)
	}
	if c.Attempts < 1 {
		return fmt.Errorf("client.attempts must be at least 1, got %d", c.Attempts)
	}

	durations := []struct {
		key string
		val string
	}{
		{"client.offer_timeout", c.OfferTimeout},
		{"client.ack_timeout", c.AckTimeout},
		{"client.backoff", c.Backoff},
		{"client.max_backoff", c.MaxBackoff},
		{"client.jitter", c.Jitter},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.key, d.val)
		}
	}

	if c.HostnamePolicy.MaxLength < 0 || c.HostnamePolicy.MaxLength > dhcpv4.MaxOptionLength {
		return fmt.Errorf("client.hostname_policy.max_length must be 0-%d, got %d", dhcpv4.MaxOptionLength, c.HostnamePolicy.MaxLength)
	}
	for _, p := range c.HostnamePolicy.DenyPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("client.hostname_policy.deny_patterns %q: %w", p, err)
		}
	}

	for i, opt := range c.Options {
		if _, err := encodeOption(opt); err != nil {
			return fmt.Errorf("client.option[%d]: %w", i, err)
		}
	}

	if cfg.Transport.ReadBufferSize < dhcpv4.MinPacketSize {
		return fmt.Errorf("transport.read_buffer_size must be at least %d, got %d", dhcpv4.MinPacketSize, cfg.Transport.ReadBufferSize)
	}
	if cfg.Transport.LocalPort < 0 || cfg.Transport.LocalPort > 65535 {
		return fmt.Errorf("transport.local_port %d out of range", cfg.Transport.LocalPort)
	}
	if cfg.Transport.ServerPort < 1 || cfg.Transport.ServerPort > 65535 {
		return fmt.Errorf("transport.server_port %d out of range", cfg.Transport.ServerPort)
	}

	if err := validateHooks(&cfg.Hooks); err != nil {
		return err
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log.format must be \"json\" or \"text\", got %q", cfg.Log.Format)
	}

	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}

	return nil
}

func validateHooks(h *HooksConfig) error {
	if h.ScriptConcurrency < 1 {
		return fmt.Errorf("hooks.script_concurrency must be at least 1, got %d", h.ScriptConcurrency)
	}
	if _, err := time.ParseDuration(h.ScriptTimeout); err != nil {
		return fmt.Errorf("hooks.script_timeout: %w", err)
	}
	for i, sh := range h.Scripts {
		if sh.Command == "" {
			return fmt.Errorf("hooks.script[%d]: command is required", i)
		}
		if _, err := time.ParseDuration(sh.Timeout); err != nil {
			return fmt.Errorf("hooks.script[%d].timeout: %w", i, err)
		}
	}
	for i, wh := range h.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("hooks.webhook[%d]: url is required", i)
		}
		if !strings.HasPrefix(wh.URL, "http://") && !strings.HasPrefix(wh.URL, "https://") {
			return fmt.Errorf("hooks.webhook[%d]: url %q must be http or https", i, wh.URL)
		}
		if _, err := time.ParseDuration(wh.Timeout); err != nil {
			return fmt.Errorf("hooks.webhook[%d].timeout: %w", i, err)
		}
		if _, err := time.ParseDuration(wh.RetryBackoff); err != nil {
			return fmt.Errorf("hooks.webhook[%d].retry_backoff: %w", i, err)
		}
		switch wh.Template {
		case "", "slack", "teams":
		default:
			return fmt.Errorf("hooks.webhook[%d].template must be \"slack\", \"teams\" or empty, got %q", i, wh.Template)
		}
	}
	return nil
}

// ParseDuration is a helper for parsing Go-style duration strings.
func ParseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetOfferTimeout returns how long to wait for a DHCPOFFER.
func (cfg *Config) GetOfferTimeout() time.Duration {
	return durationOr(cfg.Client.OfferTimeout, DefaultOfferTimeout)
}

// GetAckTimeout returns how long to wait for a DHCPACK or DHCPNAK.
func (cfg *Config) GetAckTimeout() time.Duration {
	return durationOr(cfg.Client.AckTimeout, DefaultAckTimeout)
}

// GetBackoff returns the first retry delay.
func (cfg *Config) GetBackoff() time.Duration {
	return durationOr(cfg.Client.Backoff, DefaultBackoff)
}

// GetMaxBackoff returns the retry delay ceiling.
func (cfg *Config) GetMaxBackoff() time.Duration {
	return durationOr(cfg.Client.MaxBackoff, DefaultMaxBackoff)
}

// GetJitter returns the retry randomization bound.
func (cfg *Config) GetJitter() time.Duration {
	return durationOr(cfg.Client.Jitter, DefaultJitter)
}

// HardwareAddr returns the configured MAC override, or nil.
func (cfg *Config) HardwareAddr() net.HardwareAddr {
	if cfg.Client.HardwareAddress == "" {
		return nil
	}
	mac, err := net.ParseMAC(cfg.Client.HardwareAddress)
	if err != nil {
		return nil
	}
	return mac
}

// RequestedIP returns the address to ask for, or nil.
func (cfg *Config) RequestedIP() net.IP {
	if cfg.Client.RequestedIP == "" {
		return nil
	}
	return net.ParseIP(cfg.Client.RequestedIP).To4()
}

// ParameterRequestList returns option 55's codes.
func (cfg *Config) ParameterRequestList() []dhcpv4.OptionCode {
	codes := make([]dhcpv4.OptionCode, 0, len(cfg.Client.ParameterRequestList))
	for _, c := range cfg.Client.ParameterRequestList {
		codes = append(codes, dhcpv4.OptionCode(c))
	}
	return codes
}

// PadTo returns the minimum encoded packet size, 0 when padding is off.
func (cfg *Config) PadTo() int {
	if cfg.Client.PadPackets {
		return DefaultPadTo
	}
	return 0
}

// ExtraOptions encodes the [[client.option]] entries in file order.
func (cfg *Config) ExtraOptions() (dhcp.Options, error) {
	var opts dhcp.Options
	for i, oc := range cfg.Client.Options {
		opt, err := encodeOption(oc)
		if err != nil {
			return nil, fmt.Errorf("client.option[%d]: %w", i, err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// managedOptions are set by the client itself and may not be overridden.
var managedOptions = map[dhcpv4.OptionCode]bool{
	dhcpv4.OptionDHCPMessageType:      true,
	dhcpv4.OptionRequestedIP:          true,
	dhcpv4.OptionServerIdentifier:     true,
	dhcpv4.OptionParameterRequestList: true,
	dhcpv4.OptionMaxDHCPMessageSize:   true,
}

func encodeOption(oc OptionConfig) (dhcp.Option, error) {
	if oc.Code <= 0 || oc.Code >= 255 {
		return dhcp.Option{}, fmt.Errorf("invalid option code %d", oc.Code)
	}
	code := dhcpv4.OptionCode(oc.Code)
	if managedOptions[code] {
		return dhcp.Option{}, fmt.Errorf("option %d (%s) is set by the client", oc.Code, dhcp.OptionName(code))
	}

	data, err := encodeOptionValue(oc.Type, oc.Value)
	if err != nil {
		return dhcp.Option{}, fmt.Errorf("option %d: %w", oc.Code, err)
	}
	if err := dhcp.ValidateOption(code, data); err != nil {
		return dhcp.Option{}, err
	}
	return dhcp.Option{Code: code, Value: data}, nil
}

func encodeOptionValue(typ string, value interface{}) ([]byte, error) {
	switch typ {
	case "ip":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("ip value must be a string")
		}
		return parseIPv4(s)
	case "ip_list":
		items, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("ip_list value must be an array of strings")
		}
		var out []byte
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("ip_list value must be an array of strings")
			}
			b, err := parseIPv4(s)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("string value must be a string")
		}
		return []byte(s), nil
	case "hex":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("hex value must be a string")
		}
		b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
		if err != nil {
			return nil, fmt.Errorf("hex value %q: %w", s, err)
		}
		return b, nil
	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("bool value must be true or false")
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case "uint8", "uint16", "uint32":
		n, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("%s value must be an integer", typ)
		}
		return encodeUint(typ, n)
	default:
		return nil, fmt.Errorf("unknown option type %q", typ)
	}
}

func encodeUint(typ string, n int64) ([]byte, error) {
	switch typ {
	case "uint8":
		if n < 0 || n > 0xFF {
			return nil, fmt.Errorf("uint8 value %d out of range", n)
		}
		return []byte{byte(n)}, nil
	case "uint16":
		if n < 0 || n > 0xFFFF {
			return nil, fmt.Errorf("uint16 value %d out of range", n)
		}
		return binary.BigEndian.AppendUint16(nil, uint16(n)), nil
	default:
		if n < 0 || n > 0xFFFFFFFF {
			return nil, fmt.Errorf("uint32 value %d out of range", n)
		}
		return binary.BigEndian.AppendUint32(nil, uint32(n)), nil
	}
}

func parseIPv4(s string) ([]byte, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("%q is not a valid IPv4 address", s)
	}
	return []byte(ip), nil
}
