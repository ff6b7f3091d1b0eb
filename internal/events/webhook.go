package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// WebhookConfig binds an HTTP endpoint to a set of event patterns.
type WebhookConfig struct {
	Name         string
	Events       []string
	URL          string
	Method       string
	Headers      map[string]string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Secret       string // signs the body with HMAC-SHA256 when set
	Template     string // "slack", "teams" or "" for the raw event
}

// WebhookSender delivers events over HTTP. Each webhook is retried with
// doubling delays; a failed delivery is logged and otherwise ignored.
type WebhookSender struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewWebhookSender creates a sender whose requests default to timeout.
func NewWebhookSender(timeout time.Duration, logger *slog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		timeout: timeout,
		logger:  logger,
	}
}

// Send delivers evt to cfg.URL in the background. Use Wait to block on it.
func (w *WebhookSender) Send(cfg WebhookConfig, evt Event) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		start := time.Now()
		attempts, err := w.deliver(cfg, evt)
		observeHook("webhook", start, err)
		if err != nil {
			w.logger.Error("webhook delivery failed",
				"hook_name", cfg.Name,
				"url", cfg.URL,
				"event", string(evt.Type),
				"attempts", attempts,
				"error", err)
			return
		}
		w.logger.Debug("webhook delivered",
			"hook_name", cfg.Name,
			"url", cfg.URL,
			"event", string(evt.Type),
			"attempts", attempts)
	}()
}

// Wait blocks until every pending delivery has finished or given up.
func (w *WebhookSender) Wait() {
	w.wg.Wait()
}

func (w *WebhookSender) deliver(cfg WebhookConfig, evt Event) (int, error) {
	body, err := encodePayload(cfg.Template, evt)
	if err != nil {
		return 0, err
	}

	tries := max(cfg.Retries, 1)
	for attempt := 0; ; attempt++ {
		err = w.post(cfg, string(evt.Type), body)
		if err == nil || attempt+1 >= tries {
			return attempt + 1, err
		}
		w.logger.Warn("webhook attempt failed",
			"hook_name", cfg.Name,
			"attempt", attempt+1,
			"max_attempts", tries,
			"error", err)
		time.Sleep(retryDelay(cfg.RetryBackoff, attempt))
	}
}

// retryDelay doubles base after every failed attempt.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	return base << attempt
}

func (w *WebhookSender) post(cfg WebhookConfig, eventType string, body []byte) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = w.timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "athena-dhclient")
	req.Header.Set("X-Athena-Event", eventType)
	if cfg.Secret != "" {
		req.Header.Set("X-Athena-Signature", "sha256="+signPayload(body, cfg.Secret))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: HTTP %d", method, cfg.URL, resp.StatusCode)
	}
	return nil
}

// signPayload returns the hex HMAC-SHA256 of body under secret.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func encodePayload(template string, evt Event) ([]byte, error) {
	switch template {
	case "":
		return json.Marshal(evt)
	case "slack":
		return json.Marshal(map[string]string{
			"text": "*" + string(evt.Type) + "*\n" + strings.Join(summaryLines(evt), "\n"),
		})
	case "teams":
		return json.Marshal(map[string]string{
			"@type":    "MessageCard",
			"@context": "http://schema.org/extensions",
			"summary":  string(evt.Type),
			"title":    "athena-dhclient: " + string(evt.Type),
			"text":     strings.Join(summaryLines(evt), "<br>"),
		})
	default:
		return nil, fmt.Errorf("unknown webhook template %q", template)
	}
}

// summaryLines is the human-readable part of chat payloads.
func summaryLines(evt Event) []string {
	lines := []string{
		fmt.Sprintf("Interface: %s", evt.Interface),
		fmt.Sprintf("MAC: %s", evt.MAC),
	}
	if l := evt.Lease; l != nil {
		if l.IP != nil {
			lines = append(lines, fmt.Sprintf("IP: %s", l.IP))
		}
		if l.ServerID != nil {
			lines = append(lines, fmt.Sprintf("Server: %s", l.ServerID))
		}
		if l.LeaseSeconds > 0 {
			lines = append(lines, fmt.Sprintf("Lease: %s", time.Duration(l.LeaseSeconds)*time.Second))
		}
	}
	if evt.Reason != "" {
		lines = append(lines, "Reason: "+evt.Reason)
	}
	return lines
}
