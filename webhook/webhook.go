package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/distill/config"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SignatureHeader carries "sha256=<hex>" of the request body when a secret is set.
const SignatureHeader = "X-Distill-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`   // "run.completed" or "run.failed"
	RunID     string `json:"run_id"` // the run stamp
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Distill-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Notifier delivers run events to a configured endpoint. A nil Notifier or
// one without a URL does nothing.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

// NewNotifier returns a Notifier for cfg, or nil if no URL is configured.
func NewNotifier(cfg config.WebhookConfig) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify delivers event once. Delivery failures are logged and never
// returned: a run's outcome does not depend on its webhook.
func (n *Notifier) Notify(ctx context.Context, event *Event) {
	if n == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	if err := Deliver(ctx, n.client, n.url, n.secret, event); err != nil {
		slog.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"run_id", event.RunID,
			"error", err,
		)
		return
	}
	slog.Info("webhook delivered",
		"url", n.url,
		"event", event.Type,
		"run_id", event.RunID,
	)
}
