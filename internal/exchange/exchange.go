// Package exchange defines the order interface the trading loop talks to
// and a paper implementation that fills against a configurable mid price.
//
// Rejections are an expected branch of normal operation, so they travel as
// a structured Placement with Executed=false, never as an error. Errors
// are reserved for transport and contract failures.
package exchange

import (
	"context"

	"cryptotraderv1/internal/model"
)

// Placement is the outcome of one order attempt.
type Placement struct {
	OrderID  string  `json:"order_id"`
	Executed bool    `json:"executed"`
	Qty      float64 `json:"qty"`
	Price    float64 `json:"price"`
	Notional float64 `json:"notional"` // quote amount moved, fees out of scope here
	Reason   string  `json:"reason"`   // set when not executed
}

// PairSettings are the venue's trading constraints for one pair.
type PairSettings struct {
	PriceTick   float64 `json:"price_tick"`
	QtyStep     float64 `json:"qty_step"`
	MinNotional float64 `json:"min_notional"`
}

// Exchange is the order interface the trading loop depends on. Execute
// encapsulates the venue's own fill discipline: the paper venue fills
// instantly, a live venue may place, poll, and cancel internally. Fills
// are never assumed synchronous by the caller.
type Exchange interface {
	Name() string

	// Execute attempts to trade qty at (or near) refPrice and reports what
	// actually happened.
	Execute(ctx context.Context, pair model.TradingPair, side model.Side, qty, refPrice float64) (Placement, error)

	// Balance returns the available amount of one asset.
	Balance(ctx context.Context, asset string) (float64, error)

	// Settings returns the venue constraints for the pair.
	Settings(ctx context.Context, pair model.TradingPair) (PairSettings, error)
}
