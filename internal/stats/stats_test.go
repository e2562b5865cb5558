package stats

import (
	"math"
	"testing"
	"time"

	"cryptotraderv1/internal/model"
)

func eq(vals []float64, spacing time.Duration) []model.EquityPoint {
	base := time.Unix(1700000000, 0).UTC()
	out := make([]model.EquityPoint, len(vals))
	for i, v := range vals {
		out[i] = model.EquityPoint{TS: base.Add(time.Duration(i) * spacing), Equity: v}
	}
	return out
}

func pnl(v float64) *float64 { return &v }

func sellRecord(realized float64) model.TradeRecord {
	return model.TradeRecord{Side: model.SideSell, Qty: 1, Price: 1, RealizedPnL: pnl(realized)}
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90: drawdown 1 - 90/120 = 0.25.
	points := eq([]float64{100, 120, 90, 110}, time.Minute)
	got := MaxDrawdown(points)
	if math.Abs(got-0.25) > 1e-9 {
		t.Errorf("max drawdown: expected 0.25, got %v", got)
	}
}

func TestMaxDrawdown_MonotonicEquityIsZero(t *testing.T) {
	points := eq([]float64{100, 101, 102, 103}, time.Minute)
	if got := MaxDrawdown(points); got != 0 {
		t.Errorf("expected 0 drawdown on rising equity, got %v", got)
	}
	if got := MaxDrawdown(nil); got != 0 {
		t.Errorf("expected 0 drawdown on empty series, got %v", got)
	}
}

func TestSharpe_FlatEquityIsZero(t *testing.T) {
	points := eq([]float64{100, 100, 100, 100}, time.Minute)
	if got := Sharpe(points); got != 0 {
		t.Errorf("expected 0 sharpe on flat equity, got %v", got)
	}
	if got := Sharpe(points[:2]); got != 0 {
		t.Errorf("expected 0 sharpe with <3 points, got %v", got)
	}
}

func TestSharpe_ScalesWithSampleSpacing(t *testing.T) {
	vals := []float64{100, 101, 100.5, 102, 101.8, 103}
	perMinute := Sharpe(eq(vals, time.Minute))
	perHour := Sharpe(eq(vals, time.Hour))

	if perMinute == 0 || perHour == 0 {
		t.Fatalf("expected non-zero sharpe, got minute=%v hour=%v", perMinute, perHour)
	}
	// Same returns over longer spacing -> smaller per-second ratio, by sqrt(60).
	ratio := perMinute / perHour
	if math.Abs(ratio-math.Sqrt(60)) > 1e-6 {
		t.Errorf("spacing scaling: expected ratio sqrt(60)=%v, got %v", math.Sqrt(60), ratio)
	}
}

func TestProfitFactor_Sentinels(t *testing.T) {
	// No trades at all: 0.
	if got := ProfitFactor(nil); got != 0 {
		t.Errorf("no trades: expected 0, got %v", got)
	}

	// Only losses: 0.
	onlyLoss := []model.TradeRecord{sellRecord(-5)}
	if got := ProfitFactor(onlyLoss); got != 0 {
		t.Errorf("only losses: expected 0, got %v", got)
	}

	// Wins and no losses: +Inf sentinel.
	onlyWin := []model.TradeRecord{sellRecord(5)}
	if got := ProfitFactor(onlyWin); !math.IsInf(got, 1) {
		t.Errorf("wins without losses: expected +Inf, got %v", got)
	}

	// Mixed: 6 / 2 = 3.
	mixed := []model.TradeRecord{sellRecord(4), sellRecord(2), sellRecord(-2)}
	if got := ProfitFactor(mixed); math.Abs(got-3) > 1e-9 {
		t.Errorf("mixed: expected 3, got %v", got)
	}
}

func TestCompute_Summary(t *testing.T) {
	points := eq([]float64{1000, 1010, 990, 1020}, time.Minute)
	trades := []model.TradeRecord{
		{Side: model.SideBuy, Qty: 10, Price: 1},
		sellRecord(12),
		{Side: model.SideBuy, Qty: 10, Price: 1},
		sellRecord(-4),
	}

	s := Compute(points, trades, 1000)
	if s.End != 1020 {
		t.Errorf("end: expected 1020, got %v", s.End)
	}
	if s.TotalPnL != 20 {
		t.Errorf("total pnl: expected 20, got %v", s.TotalPnL)
	}
	if s.Trades != 2 {
		t.Errorf("trades: expected 2 closes, got %d", s.Trades)
	}
	if s.WinRate != 50 {
		t.Errorf("win rate: expected 50, got %v", s.WinRate)
	}
	if math.Abs(s.ProfitFactor-3) > 1e-9 {
		t.Errorf("profit factor: expected 3, got %v", s.ProfitFactor)
	}
}

func TestCompute_ReconstructsEndFromTrades(t *testing.T) {
	// No equity curve: end = start - (buy cost) + (sell revenue), fees out.
	trades := []model.TradeRecord{
		{Side: model.SideBuy, Qty: 100, Price: 0.10, Fee: 0.10, Slippage: 0.05},
		{Side: model.SideSell, Qty: 100, Price: 0.12, Fee: 0.12, Slippage: 0.06, RealizedPnL: pnl(2)},
	}
	s := Compute(nil, trades, 100)
	want := 100 - (10 + 0.10 + 0.05) + (12 - 0.12 - 0.06)
	if math.Abs(s.End-want) > 1e-9 {
		t.Errorf("reconstructed end: expected %v, got %v", want, s.End)
	}
}

func TestFormatPF(t *testing.T) {
	if got := FormatPF(math.Inf(1)); got != "inf" {
		t.Errorf("expected \"inf\", got %q", got)
	}
	if got := FormatPF(2.5); got != "2.50" {
		t.Errorf("expected \"2.50\", got %q", got)
	}
}
