package risk

import (
	"math"
	"testing"
)

func TestSizer_FixedQuote(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyFixedQuote, QuoteAmount: 50, QtyStep: 1})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	d := s.Size(1000, 0.25, 0)
	if !d.OK {
		t.Fatalf("expected trade, got no-trade: %s", d.Reason)
	}
	if d.Qty != 200 { // floor(50/0.25)
		t.Errorf("qty: expected 200, got %v", d.Qty)
	}
}

func TestSizer_PercentEquity(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyPercentEquity, EquityPct: 10, QtyStep: 0.1})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	d := s.Size(1000, 2.0, 0)
	if !d.OK {
		t.Fatalf("expected trade, got no-trade: %s", d.Reason)
	}
	if d.Qty != 50 { // 100 quote / 2.0
		t.Errorf("qty: expected 50, got %v", d.Qty)
	}
}

func TestSizer_RiskBased(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyRiskBased, RiskPct: 1, QtyStep: 1})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	// equity 10000, risk 1% = 100 quote; entry 10, stop 9.5 -> dist 0.5 -> qty 200.
	d := s.Size(10000, 10, 9.5)
	if !d.OK {
		t.Fatalf("expected trade, got no-trade: %s", d.Reason)
	}
	if d.Qty != 200 {
		t.Errorf("qty: expected 200, got %v", d.Qty)
	}
}

func TestSizer_RiskBased_RoundsUpToMinNotional(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyRiskBased, RiskPct: 0.01, QtyStep: 1, MinNotional: 10})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	// Risk budget is tiny (1 quote at 0.5 dist -> qty 2, notional 20 at px 10?).
	// Use numbers where the raw qty undershoots the minimum notional:
	// equity 1000, risk 0.01% = 0.1 quote, dist 0.5 -> raw 0.2 -> floor 0.
	// Min notional 10 at px 10 -> qty rounds up to 1.
	d := s.Size(1000, 10, 9.5)
	if !d.OK {
		t.Fatalf("expected min-notional rounding to allow the trade, got: %s", d.Reason)
	}
	if d.Qty != 1 {
		t.Errorf("qty: expected 1 (rounded up to min notional), got %v", d.Qty)
	}
}

func TestSizer_RejectsBelowMinNotional(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyFixedQuote, QuoteAmount: 3, MinNotional: 5})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	d := s.Size(1000, 1.0, 0)
	if d.OK {
		t.Errorf("expected no-trade below min notional, got qty %v", d.Qty)
	}
	if d.Qty != 0 {
		t.Errorf("no-trade decision must carry zero qty, got %v", d.Qty)
	}
}

func TestSizer_RejectsUnaffordable(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyRiskBased, RiskPct: 1, MinNotional: 500})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	// Min notional 500 forces a quantity whose cost exceeds the 100 equity.
	d := s.Size(100, 10, 9.9)
	if d.OK {
		t.Errorf("expected rejection when min-notional order is unaffordable, got qty %v", d.Qty)
	}
}

func TestSizer_DegradesOnBadInputs(t *testing.T) {
	s, err := NewSizer(SizerConfig{Policy: PolicyRiskBased, RiskPct: 1})
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	cases := []struct {
		name                string
		equity, entry, stop float64
	}{
		{"nan entry", 1000, math.NaN(), 9},
		{"inf entry", 1000, math.Inf(1), 9},
		{"nan stop", 1000, 10, math.NaN()},
		{"zero distance", 1000, 10, 10},
		{"zero equity", 0, 10, 9},
		{"negative entry", 1000, -1, 9},
	}
	for _, c := range cases {
		d := s.Size(c.equity, c.entry, c.stop)
		if d.OK || d.Qty != 0 {
			t.Errorf("%s: expected no-trade, got %+v", c.name, d)
		}
	}
}

func TestNewSizer_RejectsBadConfig(t *testing.T) {
	bad := []SizerConfig{
		{Policy: PolicyFixedQuote},
		{Policy: PolicyPercentEquity, EquityPct: 0},
		{Policy: PolicyPercentEquity, EquityPct: 150},
		{Policy: PolicyRiskBased, RiskPct: -1},
		{Policy: "martingale"},
	}
	for _, cfg := range bad {
		if _, err := NewSizer(cfg); err == nil {
			t.Errorf("config %+v: expected error", cfg)
		}
	}
}
