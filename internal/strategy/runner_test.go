package strategy

import (
	"context"
	"testing"

	"cryptotraderv1/internal/model"
)

func TestRunner_EmitsConfirmedSignals(t *testing.T) {
	s, err := NewSMACrossover(2, 3, 0)
	if err != nil {
		t.Fatalf("NewSMACrossover: %v", err)
	}
	r := NewRunner(s, s.Lookback(), 8)

	closes := []float64{1.00, 1.00, 1.00, 0.90, 0.90, 0.90, 1.10, 1.10, 1.10}
	var emitted []Action
	for _, c := range candlesFromCloses(closes) {
		sig := r.Push(c)
		if sig.Action != ActionHold {
			emitted = append(emitted, sig.Action)
		}
	}

	if len(emitted) != 1 || emitted[0] != ActionBuy {
		t.Fatalf("expected one BUY from the recovery, got %v", emitted)
	}

	select {
	case sig := <-r.Signals():
		if sig.Action != ActionBuy {
			t.Errorf("channel: expected BUY, got %s", sig.Action)
		}
	default:
		t.Error("expected the BUY on the signal channel")
	}
}

func TestRunner_IgnoresStaleCandles(t *testing.T) {
	s, _ := NewSMACrossover(2, 3, 0)
	r := NewRunner(s, s.Lookback(), 4)

	candles := candlesFromCloses([]float64{1, 1, 1, 1, 1})
	for _, c := range candles {
		r.Push(c)
	}
	before := len(r.Window())

	sig := r.Push(candles[2]) // replay of an old bar
	if sig.Reason != "stale_candle" {
		t.Errorf("expected stale_candle reason, got %q", sig.Reason)
	}
	if len(r.Window()) != before {
		t.Errorf("stale candle must not grow the window: %d -> %d", before, len(r.Window()))
	}
}

func TestRunner_WindowBounded(t *testing.T) {
	s, _ := NewSMACrossover(2, 3, 0)
	r := NewRunner(s, 5, 4)

	for _, c := range candlesFromCloses(make([]float64, 50)) {
		r.Push(c)
	}
	if len(r.Window()) != 5 {
		t.Errorf("window must stay at capacity 5, got %d", len(r.Window()))
	}
}

func TestRunner_RunClosesSignalChannel(t *testing.T) {
	s, _ := NewSMACrossover(2, 3, 0)
	r := NewRunner(s, s.Lookback(), 16)

	ch := make(chan model.Candle)
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), ch)
		close(done)
	}()

	for _, c := range candlesFromCloses([]float64{1.00, 1.00, 1.00, 0.90, 0.90, 0.90, 1.10, 1.10, 1.10}) {
		ch <- c
	}
	close(ch)
	<-done

	var emitted []Action
	for sig := range r.Signals() {
		emitted = append(emitted, sig.Action)
	}
	if len(emitted) != 1 || emitted[0] != ActionBuy {
		t.Fatalf("expected one BUY over the stream, got %v", emitted)
	}
}
