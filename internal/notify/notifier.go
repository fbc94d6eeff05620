// Package notify fans events out to push subscribers and an outbound
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/matheus3301/wpphook/internal/bus"
	"go.uber.org/zap"
)

// Webhook event types.
const (
	EventMessageSent      = "message_sent"
	EventMessageReceived  = "message_received"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
)

// webhookTimeout bounds a single delivery attempt end to end.
const webhookTimeout = 10 * time.Second

// StatusPayload is the push payload for status events.
type StatusPayload struct {
	Status string `json:"status"`
	QR     string `json:"qr,omitempty"`
}

// QRPayload is the push payload for qr events.
type QRPayload struct {
	QR string `json:"qr"`
}

// envelope is the webhook request body.
type envelope struct {
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier delivers events to two sinks: the bus (push subscribers)
// and an outbound webhook URL. A failure in one sink never affects the
// other or the caller.
type Notifier struct {
	bus        *bus.Bus
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// New creates a notifier. An empty webhookURL disables webhook
// delivery; broadcasts still work.
func New(b *bus.Bus, webhookURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		bus:        b,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
		logger:     logger,
	}
}

// Broadcast publishes an event to all current push subscribers under
// the push. namespace. No acknowledgment, no buffering: a subscriber
// that connects later has missed nothing but current status, which it
// receives on subscription.
func (n *Notifier) Broadcast(event string, payload any) {
	n.bus.Publish(bus.Event{
		Kind:      "push." + event,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// Deliver POSTs one webhook event. Single attempt, fire and forget:
// network failures and >=400 responses are logged and dropped, never
// surfaced to the caller, never retried, never queued. Message flow
// must not stall because a downstream consumer is unavailable.
func (n *Notifier) Deliver(ctx context.Context, eventType string, data map[string]any) {
	if n.webhookURL == "" {
		return
	}

	body, err := json.Marshal(envelope{
		EventType: eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		n.logger.Error("marshal webhook event", zap.Error(err), zap.String("event_type", eventType))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.Error(err),
			zap.String("event_type", eventType))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("event_type", eventType))
	}
}
