package events

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
)

var errHookDropped = errors.New("hook dropped")

// Dispatcher routes finished-exchange events to script hooks and webhooks.
// Hook failures are logged and never change the exchange result.
type Dispatcher struct {
	scripts     *ScriptRunner
	webhooks    *WebhookSender
	scriptCfgs  []ScriptConfig
	webhookCfgs []WebhookConfig
}

// NewDispatcher creates a dispatcher with no hooks registered. Scripts run at
// most scriptConcurrency at a time; webhookTimeout applies to hooks without
// their own timeout.
func NewDispatcher(logger *slog.Logger, scriptConcurrency int, webhookTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		scripts:  NewScriptRunner(scriptConcurrency, logger),
		webhooks: NewWebhookSender(webhookTimeout, logger),
	}
}

// AddScript registers a script hook.
func (d *Dispatcher) AddScript(cfg ScriptConfig) {
	d.scriptCfgs = append(d.scriptCfgs, cfg)
}

// AddWebhook registers a webhook hook.
func (d *Dispatcher) AddWebhook(cfg WebhookConfig) {
	d.webhookCfgs = append(d.webhookCfgs, cfg)
}

// Empty reports whether no hooks are registered.
func (d *Dispatcher) Empty() bool {
	return len(d.scriptCfgs) == 0 && len(d.webhookCfgs) == 0
}

// Publish starts every hook that matches evt. It does not wait for them.
func (d *Dispatcher) Publish(evt Event) {
	evtType := string(evt.Type)
	for _, cfg := range d.scriptCfgs {
		if matchesEvent(cfg.Events, evtType) {
			d.scripts.Run(cfg, evt)
		}
	}
	for _, cfg := range d.webhookCfgs {
		if matchesEvent(cfg.Events, evtType) {
			d.webhooks.Send(cfg, evt)
		}
	}
}

// Wait blocks until every started hook has finished.
func (d *Dispatcher) Wait() {
	d.scripts.Wait()
	d.webhooks.Wait()
}

// matchesEvent reports whether eventType is selected by patterns. An empty
// list selects everything; "*" and "group.*" are the only wildcards.
func matchesEvent(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		switch {
		case p == "*", p == eventType:
			return true
		case strings.HasSuffix(p, ".*") && strings.HasPrefix(eventType, p[:len(p)-1]):
			return true
		}
	}
	return false
}

func observeHook(kind string, start time.Time, err error) {
	result := "success"
	switch {
	case errors.Is(err, errHookDropped):
		result = "dropped"
	case err != nil:
		result = "error"
	}
	metrics.HookExecutions.WithLabelValues(kind, result).Inc()
	if result != "dropped" {
		metrics.HookDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}
