package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"cryptotraderv1/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trader.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJournal_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1700000000, 0).UTC()
	pnl := 1.5

	records := []model.TradeRecord{
		{TS: base, Side: model.SideBuy, Qty: 100, Price: 0.10, Fee: 0.01, Note: "fast_cross_up"},
		{TS: base.Add(time.Minute), Side: model.SideSell, Qty: 100, Price: 0.12, Fee: 0.012, RealizedPnL: &pnl, Note: "fast_cross_down"},
	}
	for _, r := range records {
		if err := s.AppendTrade("DOGE_EUR", r, "oid"); err != nil {
			t.Fatalf("AppendTrade: %v", err)
		}
	}

	got, err := s.Trades("DOGE_EUR", 0)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Side != model.SideBuy || got[1].Side != model.SideSell {
		t.Errorf("expected oldest-first order, got %+v", got)
	}
	if got[0].RealizedPnL != nil {
		t.Error("buy row must have nil realized pnl")
	}
	if got[1].RealizedPnL == nil || *got[1].RealizedPnL != 1.5 {
		t.Errorf("sell row pnl: expected 1.5, got %+v", got[1].RealizedPnL)
	}
	if !got[0].TS.Equal(base) {
		t.Errorf("ts: expected %v, got %v", base, got[0].TS)
	}

	other, err := s.Trades("BTC_USD", 0)
	if err != nil {
		t.Fatalf("Trades other pair: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("pair filter leaked %d rows", len(other))
	}
}

func TestState_SaveLoadUpsert(t *testing.T) {
	s := openTestStore(t)

	if _, found, err := s.LoadState("DOGE_EUR"); err != nil || found {
		t.Fatalf("fresh db: expected no state, found=%v err=%v", found, err)
	}

	st := TradingState{
		Pair: "DOGE_EUR", Qty: 120, Cash: 33.5, AvgPrice: 0.11,
		RealizedPnL: 2.4, RoundTrips: 7, Wins: 4,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := s.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	st.Qty = 0
	st.RoundTrips = 8
	if err := s.SaveState(st); err != nil {
		t.Fatalf("SaveState upsert: %v", err)
	}

	got, found, err := s.LoadState("DOGE_EUR")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !found {
		t.Fatal("expected a checkpoint")
	}
	if got.Qty != 0 || got.RoundTrips != 8 || got.Cash != 33.5 {
		t.Errorf("upsert lost fields: %+v", got)
	}
}

func TestState_GuardFieldsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trader.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dayStart := time.Unix(1700006400, 0).UTC()
	lastTrade := time.Unix(1700010000, 0).UTC()
	st := TradingState{
		Pair: "DOGE_EUR", Qty: 50, Cash: 900, AvgPrice: 0.10,
		DayStart: dayStart, DayStartEquity: 1000,
		PausedReason: "daily loss limit hit (-310.0 bps <= -300.0 bps)",
		LastTradeAt:  lastTrade,
		UpdatedAt:    lastTrade,
	}
	if err := s.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	s.Close()

	// The guard checkpoint must come back intact after a restart.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, found, err := s2.LoadState("DOGE_EUR")
	if err != nil || !found {
		t.Fatalf("LoadState: found=%v err=%v", found, err)
	}
	if !got.DayStart.Equal(dayStart) {
		t.Errorf("day start: expected %v, got %v", dayStart, got.DayStart)
	}
	if got.DayStartEquity != 1000 {
		t.Errorf("day start equity: expected 1000, got %v", got.DayStartEquity)
	}
	if got.PausedReason != st.PausedReason {
		t.Errorf("paused reason: expected %q, got %q", st.PausedReason, got.PausedReason)
	}
	if !got.LastTradeAt.Equal(lastTrade) {
		t.Errorf("last trade at: expected %v, got %v", lastTrade, got.LastTradeAt)
	}
}

func TestState_ZeroGuardTimesStayZero(t *testing.T) {
	s := openTestStore(t)

	st := TradingState{Pair: "DOGE_EUR", Cash: 1000, UpdatedAt: time.Unix(1700000000, 0)}
	if err := s.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	got, _, err := s.LoadState("DOGE_EUR")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !got.DayStart.IsZero() || !got.LastTradeAt.IsZero() {
		t.Errorf("zero times must round-trip as zero, got day_start=%v last_trade=%v",
			got.DayStart, got.LastTradeAt)
	}
}

func TestNonce_MonotonicAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trader.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	n := s.NonceSource("exmo")
	n.seed = func() int64 { return 1000 }

	var last int64
	for i := 0; i < 5; i++ {
		v, err := n.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if v <= last {
			t.Fatalf("nonce not increasing: %d after %d", v, last)
		}
		last = v
	}
	s.Close()

	// A restart continues the sequence instead of replaying it.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, err := s2.NonceSource("exmo").Next()
	if err != nil {
		t.Fatalf("Next after reopen: %v", err)
	}
	if v <= last {
		t.Errorf("restart must continue the sequence: got %d after %d", v, last)
	}
}

func TestNonce_IndependentCounters(t *testing.T) {
	s := openTestStore(t)

	a := s.NonceSource("exmo")
	a.seed = func() int64 { return 100 }
	b := s.NonceSource("other")
	b.seed = func() int64 { return 5000 }

	av, err := a.Next()
	if err != nil {
		t.Fatalf("a.Next: %v", err)
	}
	bv, err := b.Next()
	if err != nil {
		t.Fatalf("b.Next: %v", err)
	}
	if av != 101 || bv != 5001 {
		t.Errorf("expected independent counters 101/5001, got %d/%d", av, bv)
	}
}
