package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Gateway-Signature"

// WebhookNotifier posts budget alerts as JSON events to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. When secret is set the body is
// signed in SignatureHeader.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{url: url, secret: secret, client: newHTTPClient()}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookEvent{
		Event:     "gateway.budget." + string(alert.Level),
		Source:    "llm-provider-gateway",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Alert:     alert,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	header := http.Header{}
	if w.secret != "" {
		header.Set(SignatureHeader, "sha256="+Sign(body, w.secret))
	}
	return postJSON(ctx, w.client, "webhook", w.url, body, header)
}

type webhookEvent struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Alert     Alert  `json:"alert"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
