package model

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// Order represents an order resting on (or known to) an exchange.
type Order struct {
	OrderID   string      `json:"order_id"`
	ClientID  string      `json:"client_id"`
	Pair      TradingPair `json:"pair"`
	Side      Side        `json:"side"`
	Qty       float64     `json:"qty"`
	Price     float64     `json:"price"` // limit price, 0 = market
	CreatedAt time.Time   `json:"created_at"`
}

// Fill is an executed trade, produced exactly once per accepted order.
// Qty is signed: positive = buy, negative = sell.
type Fill struct {
	OrderID string      `json:"order_id"`
	Pair    TradingPair `json:"pair"`
	Qty     float64     `json:"qty"`
	Price   float64     `json:"price"`
	TS      time.Time   `json:"ts"`
}
