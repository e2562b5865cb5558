// Package ledger implements FIFO lot accounting for a single long position:
// buys append lots, sells consume them oldest-first, and realized PnL is the
// proceeds minus the FIFO-consumed cost.
//
// The ledger is deliberately single-threaded; callers serialize access
// (one ledger per backtest run or trading session).
package ledger

import (
	"errors"
	"fmt"

	"cryptotraderv1/internal/model"
)

// ErrOversell is returned when a sell exceeds the held quantity. This is a
// caller contract violation, never silently clamped.
var ErrOversell = errors.New("ledger: sell quantity exceeds position quantity")

// Lot is one purchase at one price, consumed in order on sale.
type Lot struct {
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`
}

// Position is the aggregate view over the remaining lots.
type Position struct {
	Pair     model.TradingPair `json:"pair"`
	Qty      float64           `json:"qty"`
	AvgPrice float64           `json:"avg_price"`
}

// Ledger holds the FIFO lot queue for one pair. Lots live in a slice with a
// head index so consuming the oldest lot is O(1) amortized; the consumed
// prefix is compacted away once it dominates the slice.
type Ledger struct {
	pair model.TradingPair
	lots []Lot
	head int
	qty  float64
}

// New creates an empty ledger for the given pair.
func New(pair model.TradingPair) *Ledger {
	return &Ledger{pair: pair}
}

// ApplyBuy appends a new lot. Quantity and price must be positive.
func (l *Ledger) ApplyBuy(qty, price float64) error {
	if qty <= 0 {
		return fmt.Errorf("ledger: buy qty must be positive, got %v", qty)
	}
	if price <= 0 {
		return fmt.Errorf("ledger: buy price must be positive, got %v", price)
	}
	l.lots = append(l.lots, Lot{Qty: qty, Price: price})
	l.qty += qty
	return nil
}

// ApplySell consumes lots oldest-first and returns the realized PnL of this
// step: qty*price minus the FIFO-consumed cost. Selling more than held is a
// programming error and returns ErrOversell without mutating state.
func (l *Ledger) ApplySell(qty, price float64) (realized float64, err error) {
	if qty <= 0 {
		return 0, fmt.Errorf("ledger: sell qty must be positive, got %v", qty)
	}
	if price <= 0 {
		return 0, fmt.Errorf("ledger: sell price must be positive, got %v", price)
	}
	if qty > l.qty+qtyEps {
		return 0, fmt.Errorf("%w: sell %v, held %v", ErrOversell, qty, l.qty)
	}

	remaining := qty
	var cost float64
	for remaining > qtyEps && l.head < len(l.lots) {
		lot := &l.lots[l.head]
		take := lot.Qty
		if take > remaining {
			take = remaining
		}
		cost += take * lot.Price
		lot.Qty -= take
		remaining -= take
		if lot.Qty <= qtyEps {
			lot.Qty = 0
			l.head++
		}
	}

	l.qty -= qty
	if l.qty <= qtyEps {
		l.qty = 0
		l.lots = l.lots[:0]
		l.head = 0
	}
	l.compact()

	return qty*price - cost, nil
}

// qtyEps absorbs float64 drift when a lot is consumed exactly.
const qtyEps = 1e-12

// compact drops the consumed prefix once it exceeds half the backing slice.
func (l *Ledger) compact() {
	if l.head == 0 || l.head*2 < len(l.lots) {
		return
	}
	n := copy(l.lots, l.lots[l.head:])
	l.lots = l.lots[:n]
	l.head = 0
}

// Qty returns the current position quantity.
func (l *Ledger) Qty() float64 { return l.qty }

// AvgPrice returns the cost-weighted mean price of the remaining lots,
// zero when flat.
func (l *Ledger) AvgPrice() float64 {
	if l.qty == 0 {
		return 0
	}
	var cost, qty float64
	for _, lot := range l.lots[l.head:] {
		cost += lot.Qty * lot.Price
		qty += lot.Qty
	}
	if qty == 0 {
		return 0
	}
	return cost / qty
}

// CostBasis returns the total cost of the remaining lots.
func (l *Ledger) CostBasis() float64 {
	var cost float64
	for _, lot := range l.lots[l.head:] {
		cost += lot.Qty * lot.Price
	}
	return cost
}

// UnrealizedPnL marks the open position to the given price against the
// remaining lot cost. Fees are not modeled here; this is the one canonical
// formula used by backtest and live paths alike.
func (l *Ledger) UnrealizedPnL(currentPrice float64) float64 {
	if l.qty == 0 {
		return 0
	}
	return l.qty*currentPrice - l.CostBasis()
}

// Lots returns a copy of the remaining lots, oldest first.
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, len(l.lots)-l.head)
	copy(out, l.lots[l.head:])
	return out
}

// Position returns the aggregate position snapshot.
func (l *Ledger) Position() Position {
	return Position{Pair: l.pair, Qty: l.qty, AvgPrice: l.AvgPrice()}
}
