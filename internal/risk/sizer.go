// Package risk holds position sizing and the trading guard (daily-loss
// pause, trade cooldown).
package risk

import (
	"fmt"
	"math"
)

// Policy selects how the sizer turns equity into an order quantity.
// Policies are mutually exclusive.
type Policy string

const (
	// PolicyFixedQuote spends a fixed quote-currency amount per trade.
	PolicyFixedQuote Policy = "fixed_quote"
	// PolicyPercentEquity spends a fixed percentage of current equity.
	PolicyPercentEquity Policy = "percent_equity"
	// PolicyRiskBased risks a fixed fraction of equity against the
	// entry-to-stop distance.
	PolicyRiskBased Policy = "risk_based"
)

// SizerConfig configures the sizer. QtyStep/PriceTick/MinNotional come from
// the exchange's pair settings; zero disables the corresponding rounding.
type SizerConfig struct {
	Policy      Policy
	QuoteAmount float64 // fixed_quote: quote currency per trade
	EquityPct   float64 // percent_equity: 0-100
	RiskPct     float64 // risk_based: percent of equity at risk, 0-100
	QtyStep     float64
	PriceTick   float64
	MinNotional float64
}

// Decision is the sizing outcome. A zero-quantity decision with OK=false is
// the normal "no trade" branch, not an error.
type Decision struct {
	Qty    float64
	OK     bool
	Reason string
}

func noTrade(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Sizer computes order quantities under one policy.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer validates the config and returns a sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	switch cfg.Policy {
	case PolicyFixedQuote:
		if cfg.QuoteAmount <= 0 {
			return nil, fmt.Errorf("risk: fixed_quote policy needs QuoteAmount > 0")
		}
	case PolicyPercentEquity:
		if cfg.EquityPct <= 0 || cfg.EquityPct > 100 {
			return nil, fmt.Errorf("risk: percent_equity policy needs 0 < EquityPct <= 100, got %v", cfg.EquityPct)
		}
	case PolicyRiskBased:
		if cfg.RiskPct <= 0 || cfg.RiskPct > 100 {
			return nil, fmt.Errorf("risk: risk_based policy needs 0 < RiskPct <= 100, got %v", cfg.RiskPct)
		}
	default:
		return nil, fmt.Errorf("risk: unknown policy %q", cfg.Policy)
	}
	return &Sizer{cfg: cfg}, nil
}

// Size computes the order quantity for an entry at the given price. stop is
// only consulted by the risk_based policy; pass the volatility-derived stop
// there and zero elsewhere. Degenerate inputs (non-finite prices, zero
// stop distance) degrade to "no trade" rather than propagating NaN.
func (s *Sizer) Size(equity, entry, stop float64) Decision {
	if !isFinite(entry) || entry <= 0 {
		return noTrade("entry price %v not usable", entry)
	}
	if equity <= 0 {
		return noTrade("no equity to trade")
	}

	px := entry
	if s.cfg.PriceTick > 0 && px < s.cfg.PriceTick {
		px = s.cfg.PriceTick
	}

	var qty float64
	switch s.cfg.Policy {
	case PolicyFixedQuote:
		qty = floorStep(s.cfg.QuoteAmount/px, s.cfg.QtyStep)
	case PolicyPercentEquity:
		budget := equity * s.cfg.EquityPct / 100
		qty = floorStep(budget/px, s.cfg.QtyStep)
	case PolicyRiskBased:
		if !isFinite(stop) {
			return noTrade("stop price %v not usable", stop)
		}
		dist := math.Abs(entry - stop)
		if dist <= 0 {
			return noTrade("zero stop distance")
		}
		riskQuote := equity * s.cfg.RiskPct / 100
		qty = floorStep(riskQuote/dist, s.cfg.QtyStep)
		// Round up to the minimum notional if the exchange demands more.
		if s.cfg.MinNotional > 0 && qty*px < s.cfg.MinNotional {
			qty = ceilStep(s.cfg.MinNotional/px, s.cfg.QtyStep)
		}
	}

	if qty <= 0 {
		return noTrade("quantity rounds to zero")
	}
	notional := qty * px
	if s.cfg.MinNotional > 0 && notional < s.cfg.MinNotional {
		return noTrade("notional %.8f below exchange minimum %.8f", notional, s.cfg.MinNotional)
	}
	if notional > equity {
		return noTrade("notional %.8f exceeds equity %.8f", notional, equity)
	}
	return Decision{Qty: qty, OK: true}
}

func floorStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

func ceilStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Ceil(qty/step) * step
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
