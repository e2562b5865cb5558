package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier posts alerts as structured JSON so the receiving side
// can route on event and pair instead of parsing prose.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the wire shape of one alert.
type webhookPayload struct {
	Level   string `json:"level"`
	Event   string `json:"event"`
	Pair    string `json:"pair"`
	Message string `json:"message"`
	TS      string `json:"ts"`

	Venue       string   `json:"venue,omitempty"`
	Side        string   `json:"side,omitempty"`
	Qty         *float64 `json:"qty,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	RealizedPnL *float64 `json:"realized_pnl,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// NewWebhookNotifier creates a notifier that POSTs to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Level:   string(alert.Level),
		Event:   alert.Event,
		Pair:    alert.Pair,
		Message: alert.Message,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if alert.Event == EventFill {
		qty, price := alert.Qty, alert.Price
		p.Venue = alert.Venue
		p.Side = alert.Side
		p.Qty = &qty
		p.Price = &price
		p.RealizedPnL = alert.RealizedPnL
		p.Reason = alert.Reason
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] sent %s alert for %s", alert.Event, alert.Pair)
	return nil
}
