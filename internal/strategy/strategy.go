// Package strategy defines trading strategies and the signals they emit.
//
// A Strategy is a pure function of the trailing candle window it is given:
// no hidden state, so every decision is replayable from recorded candles.
// Strategies form a closed set behind the Strategy interface; new ones are
// added as new types, not by structural typing.
package strategy

import "cryptotraderv1/internal/model"

// Action is the decision a strategy makes on one candle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the per-candle output of a strategy. Fast/Slow carry the
// indicator values behind the decision, GapBps the relative gap between
// them in basis points, and Reason a short machine-readable code.
type Signal struct {
	Action Action  `json:"action"`
	Fast   float64 `json:"fast"`
	Slow   float64 `json:"slow"`
	GapBps float64 `json:"gap_bps"`
	Reason string  `json:"reason"`
}

// Strategy evaluates a trailing window of candles (oldest first) and
// returns a signal for the most recent one.
type Strategy interface {
	Name() string
	Evaluate(window []model.Candle) Signal
}
