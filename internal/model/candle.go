// Package model holds the shared market-data and order types used by the
// strategy, ledger, backtest, and execution layers.
package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Candle represents one OHLCV candle for a single trading pair.
// Prices are quote-currency floats; TS is the bucket start time (UTC).
type Candle struct {
	Pair   string    `json:"pair"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Normalize sorts candles by timestamp and drops duplicates, keeping the first
// candle seen for each timestamp. The result is strictly increasing in TS,
// which every downstream consumer assumes.
func Normalize(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })

	dedup := out[:1]
	for _, c := range out[1:] {
		if c.TS.Equal(dedup[len(dedup)-1].TS) {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}
