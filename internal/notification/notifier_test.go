package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFillAlert_Message(t *testing.T) {
	pnl := 1.25
	a := FillAlert("exmo", "DOGE_EUR", "sell", 1000, 0.1, &pnl, "fast_cross_down")

	if a.Event != EventFill || a.Level != AlertInfo {
		t.Errorf("unexpected event/level: %s/%s", a.Event, a.Level)
	}
	if !strings.Contains(a.Message, "DOGE_EUR") || !strings.Contains(a.Message, "realized 1.2500") {
		t.Errorf("fill message missing pair or pnl: %q", a.Message)
	}
}

func TestTelegram_FormatsFill(t *testing.T) {
	var got struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/bottok123/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok123", "chat42")
	n.api = srv.URL

	pnl := -0.5
	if err := n.Send(context.Background(), FillAlert("exmo", "DOGE_EUR", "sell", 950, 0.105, &pnl, "fast_cross_down")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.ChatID != "chat42" || got.ParseMode != "MarkdownV2" {
		t.Errorf("chat_id/parse_mode: got %q/%q", got.ChatID, got.ParseMode)
	}
	if !strings.Contains(got.Text, "SELL DOGE\\_EUR") {
		t.Errorf("expected escaped pair in header, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "realized") {
		t.Errorf("expected realized line on an exit fill, got %q", got.Text)
	}
}

func TestTelegram_FormatsPause(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		text, _ = req["text"].(string)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "chat")
	n.api = srv.URL
	if err := n.Send(context.Background(), PauseAlert("DOGE_EUR", "daily loss limit hit")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(text, "Trading paused") {
		t.Errorf("expected pause header, got %q", text)
	}
}

func TestTelegram_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "chat")
	n.api = srv.URL
	if err := n.Send(context.Background(), PauseAlert("DOGE_EUR", "x")); err == nil {
		t.Fatal("expected an error on 429")
	}
}

func TestWebhook_PostsStructuredFill(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
	}))
	defer srv.Close()

	pnl := 2.5
	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), FillAlert("paper", "DOGE_EUR", "buy", 1000, 0.1, &pnl, "fast_cross_up")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Event != EventFill || got.Pair != "DOGE_EUR" || got.Side != "buy" {
		t.Errorf("routing fields wrong: %+v", got)
	}
	if got.Qty == nil || *got.Qty != 1000 || got.Price == nil || *got.Price != 0.1 {
		t.Errorf("fill numbers wrong: %+v", got)
	}
	if got.RealizedPnL == nil || *got.RealizedPnL != 2.5 {
		t.Errorf("realized pnl wrong: %+v", got.RealizedPnL)
	}
}

func TestWebhook_PauseOmitsFillFields(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &raw)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), PauseAlert("DOGE_EUR", "cooldown active")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, k := range []string{"qty", "price", "side", "realized_pnl"} {
		if _, present := raw[k]; present {
			t.Errorf("pause payload must omit %q", k)
		}
	}
	if raw["event"] != EventPause {
		t.Errorf("event: got %v", raw["event"])
	}
}

type countingNotifier struct{ sent int }

func (c *countingNotifier) Send(ctx context.Context, alert Alert) error {
	c.sent++
	return nil
}

type failingNotifier struct{}

func (failingNotifier) Send(ctx context.Context, alert Alert) error {
	return errors.New("backend down")
}

func TestFanout_FailingBackendDoesNotStopOthers(t *testing.T) {
	c := &countingNotifier{}
	f := NewFanout(failingNotifier{}, c)
	if err := f.Send(context.Background(), PauseAlert("DOGE_EUR", "x")); err != nil {
		t.Fatalf("fanout must swallow backend errors, got %v", err)
	}
	if c.sent != 1 {
		t.Errorf("expected the healthy backend to receive the alert, sent=%d", c.sent)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got := escapeMarkdownV2("DOGE_EUR -1.5%!")
	want := `DOGE\_EUR \-1\.5%\!`
	if got != want {
		t.Errorf("escape: got %q, want %q", got, want)
	}
}
