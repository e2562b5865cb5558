package exmo

import (
	"context"
	"fmt"
	"log"

	"cryptotraderv1/internal/model"
)

// SweepDust clears a residual base balance smaller than the tradable step.
// It buys one full step (so the order satisfies the venue minimum), then
// sells the whole holding, leaving the base wallet flat. The sweep only
// runs when its estimated net cost, one step bought at the ask minus the
// whole holding sold at the bid, stays under costCeiling.
//
// Returns true when a sweep executed, false when there was nothing to
// sweep or the cost ceiling blocked it.
func (l *Live) SweepDust(ctx context.Context, pair model.TradingPair, qtyStep, costCeiling float64) (bool, error) {
	if qtyStep <= 0 {
		return false, fmt.Errorf("exmo: dust sweep needs a positive qty step, got %v", qtyStep)
	}

	dust, err := l.Balance(ctx, pair.Base)
	if err != nil {
		return false, err
	}
	if dust <= 0 || dust >= qtyStep {
		return false, nil
	}

	bid, ask, err := l.client.Ticker(ctx, pair)
	if err != nil {
		return false, err
	}
	if bid <= 0 || ask <= 0 {
		return false, fmt.Errorf("exmo: degenerate ticker bid=%v ask=%v", bid, ask)
	}

	netCost := qtyStep*ask - (qtyStep+dust)*bid
	if netCost > costCeiling {
		log.Printf("[exmo] dust sweep skipped: net cost %.8f over ceiling %.8f (dust=%.8f)",
			netCost, costCeiling, dust)
		return false, nil
	}

	buy, err := l.Execute(ctx, pair, model.SideBuy, qtyStep, ask)
	if err != nil {
		return false, err
	}
	if !buy.Executed {
		log.Printf("[exmo] dust sweep buy not executed: %s", buy.Reason)
		return false, nil
	}

	sell, err := l.Execute(ctx, pair, model.SideSell, qtyStep+dust, bid)
	if err != nil {
		return false, err
	}
	if !sell.Executed {
		// The buy went through but the sell did not: the position is now a
		// full step, not dust. Surface it so the operator can act.
		return false, fmt.Errorf("exmo: dust sweep stranded %v %s after sell failed: %s",
			qtyStep+dust, pair.Base, sell.Reason)
	}

	log.Printf("[exmo] dust sweep done: cleared %.8f %s (net cost est %.8f)", dust, pair.Base, netCost)
	return true, nil
}
