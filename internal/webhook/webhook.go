package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Dispatcher posts alert events to the configured endpoints.
type Dispatcher struct {
	URLs   []string
	Secret string
	Client *http.Client
	Logger *zap.Logger
}

func New(urls []string, secret string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		URLs:   urls,
		Secret: secret,
		Client: &http.Client{Timeout: 5 * time.Second},
		Logger: logger,
	}
}

// Event represents a webhook payload.
type Event struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Fire sends an event to every endpoint.
// It runs asynchronously and does not block.
func (d *Dispatcher) Fire(ctx context.Context, eventType string, data interface{}) {
	if d == nil || len(d.URLs) == 0 {
		return
	}
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	body, err := json.Marshal(event)
	if err != nil {
		d.Logger.Warn("webhook encode failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	for _, url := range d.URLs {
		go d.send(context.WithoutCancel(ctx), url, body)
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Tiergate-Webhook/1.0")
	if d.Secret != "" {
		req.Header.Set("X-Tiergate-Signature", Sign(d.Secret, body))
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		d.Logger.Warn("webhook delivery failed", zap.String("url", url), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.Logger.Warn("webhook rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
	}
}
