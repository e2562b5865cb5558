package strategy

import (
	"fmt"
	"math"

	"cryptotraderv1/internal/model"
)

// Reason codes emitted by SMACrossover.
const (
	ReasonNotEnoughCandles = "not_enough_candles"
	ReasonCrossUp          = "fast_cross_up"
	ReasonCrossDown        = "fast_cross_down"
	ReasonNoConfirmedCross = "no_confirmed_cross"
)

// SMACrossover emits BUY when the fast SMA crosses strictly above the slow
// SMA (golden cross) and SELL on the symmetric cross down. A cross only
// counts when the relative gap between the two averages is at least
// MinGapBps, which filters the noise crosses a flat market produces.
type SMACrossover struct {
	Fast      int
	Slow      int
	MinGapBps float64
}

// NewSMACrossover creates the strategy. fast must be < slow (e.g. 10 and 30).
func NewSMACrossover(fast, slow int, minGapBps float64) (*SMACrossover, error) {
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, fmt.Errorf("sma crossover: need 0 < fast < slow, got fast=%d slow=%d", fast, slow)
	}
	return &SMACrossover{Fast: fast, Slow: slow, MinGapBps: minGapBps}, nil
}

func (s *SMACrossover) Name() string { return "SMA_Crossover" }

// Lookback returns the minimum window length Evaluate needs: the slow
// period plus one step back for crossover detection, plus one spare bar.
func (s *SMACrossover) Lookback() int {
	return s.Slow + 2
}

// Evaluate computes fast/slow SMAs on the current and previous step and
// detects a confirmed cross. With insufficient history it returns HOLD
// with ReasonNotEnoughCandles rather than a partial answer.
func (s *SMACrossover) Evaluate(window []model.Candle) Signal {
	if len(window) < s.Lookback() {
		return Signal{Action: ActionHold, Reason: ReasonNotEnoughCandles}
	}

	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}
	n := len(closes)

	fastNow := sma(closes[n-s.Fast:])
	slowNow := sma(closes[n-s.Slow:])
	fastPrev := sma(closes[n-s.Fast-1 : n-1])
	slowPrev := sma(closes[n-s.Slow-1 : n-1])

	gap := gapBps(fastNow, slowNow)
	sig := Signal{Action: ActionHold, Fast: fastNow, Slow: slowNow, GapBps: gap, Reason: ReasonNoConfirmedCross}

	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow

	switch {
	case crossedUp && gap >= s.MinGapBps:
		sig.Action = ActionBuy
		sig.Reason = ReasonCrossUp
	case crossedDown && gap >= s.MinGapBps:
		sig.Action = ActionSell
		sig.Reason = ReasonCrossDown
	}
	return sig
}

func sma(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// gapBps returns |a-b| / mean(a,b) in basis points, 0 when the mean is
// not positive.
func gapBps(a, b float64) float64 {
	mean := (a + b) / 2
	if mean <= 0 {
		return 0
	}
	return math.Abs(a-b) / mean * 1e4
}
