package config

import "time"

// Default configuration values.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultOfferTimeout   = 4 * time.Second
	DefaultAckTimeout     = 4 * time.Second
	DefaultAttempts       = 3
	DefaultBackoff        = 4 * time.Second
	DefaultMaxBackoff     = 64 * time.Second
	DefaultJitter         = 1 * time.Second
	DefaultReadBufferSize = 1024
	DefaultClientPort     = 68
	DefaultServerPort     = 67
	DefaultPadTo          = 300
	DefaultAuditPath      = "/var/lib/athena-dhclient/audit.db"
	DefaultProbeTimeout   = 5 * time.Second

	DefaultScriptConcurrency   = 4
	DefaultScriptTimeout       = 30 * time.Second
	DefaultWebhookRetries      = 3
	DefaultWebhookRetryBackoff = 2 * time.Second
	DefaultWebhookTimeout      = 10 * time.Second
)
