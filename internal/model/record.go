package model

import "time"

// TradeRecord is one executed trade row, as consumed by the presentation
// layer (CSV writers, dashboards). RealizedPnL is set only on sell/close
// rows and equals FIFO proceeds minus FIFO-consumed cost.
type TradeRecord struct {
	TS          time.Time `json:"ts"`
	Side        Side      `json:"side"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
	Slippage    float64   `json:"slippage"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// EquityPoint samples total equity (cash + position * last price) at one
// candle close.
type EquityPoint struct {
	TS     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}
