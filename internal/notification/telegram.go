package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier renders alerts as MarkdownV2 messages and delivers
// them through the Bot API sendMessage call.
type TelegramNotifier struct {
	botToken string
	chatID   string
	api      string // overridden in tests
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for one bot and chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		api:      telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       renderTelegram(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.api, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent %s alert for %s", alert.Event, alert.Pair)
	return nil
}

// renderTelegram builds the message text. Fills get a side-colored header
// with the quantity, price, and realized PnL on their own lines; pauses
// lead with the siren so they stand out in the chat history.
func renderTelegram(alert Alert) string {
	var b strings.Builder
	switch alert.Event {
	case EventFill:
		marker := "🟢"
		if strings.EqualFold(alert.Side, "sell") {
			marker = "🔴"
		}
		fmt.Fprintf(&b, "%s *%s %s* on %s\n", marker,
			escapeMarkdownV2(strings.ToUpper(alert.Side)), escapeMarkdownV2(alert.Pair),
			escapeMarkdownV2(alert.Venue))
		fmt.Fprintf(&b, "qty %s @ %s\n",
			escapeMarkdownV2(fmt.Sprintf("%.8f", alert.Qty)),
			escapeMarkdownV2(fmt.Sprintf("%.8f", alert.Price)))
		if alert.RealizedPnL != nil {
			fmt.Fprintf(&b, "realized %s\n", escapeMarkdownV2(fmt.Sprintf("%.4f", *alert.RealizedPnL)))
		}
		if alert.Reason != "" {
			fmt.Fprintf(&b, "signal: %s", escapeMarkdownV2(alert.Reason))
		}
	case EventPause:
		fmt.Fprintf(&b, "🚨 *Trading paused* %s\n%s",
			escapeMarkdownV2(alert.Pair), escapeMarkdownV2(alert.Message))
	default:
		fmt.Fprintf(&b, "%s %s\n%s", escapeMarkdownV2(string(alert.Level)),
			escapeMarkdownV2(alert.Pair), escapeMarkdownV2(alert.Message))
	}
	return b.String()
}

// escapeMarkdownV2 backslash-escapes the characters Telegram's MarkdownV2
// parser treats as syntax.
func escapeMarkdownV2(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 && strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
