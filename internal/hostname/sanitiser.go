// Package hostname cleans the host name a client sends in option 12.
// Kernel and desktop hostnames routinely carry spaces, emoji, uppercase,
// domain suffixes and vendor defaults like "localhost" that servers
// either reject or register verbatim in DNS.
package hostname

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/athena-dhcpd/athena-dhclient/internal/config"
)

// placeholderName matches vendor and distro defaults that must never be
// registered in DNS.
var placeholderName = regexp.MustCompile(`(?i)^(localhost(\.localdomain)?|android-[a-f0-9]{12,}|host|dhcp|unknown|none|changeme)$`)

// SystemFunc returns the machine's host name.
type SystemFunc func() (string, error)

// Sanitiser applies the configured pipeline to a host name.
type Sanitiser struct {
	cfg          config.HostnameConfig
	denyPatterns []*regexp.Regexp
	system       SystemFunc
	logger       *slog.Logger
}

// NewSanitiser creates a sanitiser from config.
func NewSanitiser(cfg config.HostnameConfig, logger *slog.Logger) (*Sanitiser, error) {
	s := &Sanitiser{
		cfg:    cfg,
		system: os.Hostname,
		logger: logger,
	}

	for _, p := range cfg.DenyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compiling deny_pattern %q: %w", p, err)
		}
		s.denyPatterns = append(s.denyPatterns, re)
	}

	return s, nil
}

// WithSystem replaces os.Hostname. Used by tests.
func (s *Sanitiser) WithSystem(fn SystemFunc) *Sanitiser {
	s.system = fn
	return s
}

// Resolve returns the host name to send, or "" to omit option 12.
// configured wins over the system name; both go through the pipeline.
func (s *Sanitiser) Resolve(configured string, mac net.HardwareAddr) string {
	name := configured
	if name == "" && s.cfg.FromSystem {
		sys, err := s.system()
		if err != nil {
			s.logger.Warn("reading system hostname", "error", err)
		} else {
			name = sys
		}
	}
	if name == "" {
		return ""
	}

	cleaned, changed := s.Sanitise(name, mac)
	if changed {
		s.logger.Debug("hostname rewritten", "original", name, "sent", cleaned)
	}
	return cleaned
}

// Sanitise runs the full pipeline on a host name. It returns the cleaned
// name, possibly empty or the fallback, and whether it differs from the input.
func (s *Sanitiser) Sanitise(hostname string, mac net.HardwareAddr) (string, bool) {
	original := hostname

	hostname = dnsChars(hostname)

	if s.cfg.Lowercase {
		hostname = strings.ToLower(hostname)
	}
	if s.cfg.ShortName {
		if i := strings.IndexByte(hostname, '.'); i > 0 {
			hostname = hostname[:i]
		}
	}

	hostname = strings.Trim(hostname, ".-")
	hostname = collapseRepeated(hostname)

	maxLen := s.cfg.MaxLength
	if maxLen <= 0 {
		maxLen = 63 // DNS label limit
	}
	if len(hostname) > maxLen {
		hostname = hostname[:maxLen]
		hostname = strings.TrimRight(hostname, ".-")
	}

	if placeholderName.MatchString(hostname) {
		s.logger.Debug("hostname rejected by built-in deny", "original", original, "cleaned", hostname)
		return s.fallback(mac), true
	}
	if matchesAny(hostname, s.denyPatterns) {
		s.logger.Debug("hostname rejected by deny pattern", "original", original, "cleaned", hostname)
		return s.fallback(mac), true
	}
	if hostname == "" {
		return s.fallback(mac), true
	}

	return hostname, hostname != original
}

// fallback expands the fallback template, or returns "" when none is set.
func (s *Sanitiser) fallback(mac net.HardwareAddr) string {
	if s.cfg.FallbackTemplate == "" {
		return ""
	}
	macStr := strings.ReplaceAll(mac.String(), ":", "")
	return strings.ReplaceAll(s.cfg.FallbackTemplate, "{mac}", macStr)
}

func matchesAny(hostname string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(hostname) {
			return true
		}
	}
	return false
}

// dnsChars keeps the RFC 952/1123 alphabet: ASCII letters, digits, hyphen
// and dot. Control characters, spaces, emoji and other non-ASCII runes go.
func dnsChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return -1
	}, s)
}

// collapseRepeated squeezes runs of the same separator ("a..b" becomes "a.b").
func collapseRepeated(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if (s[i] == '.' || s[i] == '-') && len(out) > 0 && out[len(out)-1] == s[i] {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
