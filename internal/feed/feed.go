// Package feed produces ordered candle streams for the trading loop: a
// finite historical slice for backtests, a REST poller, and a WebSocket
// trade stream aggregated into timeframe candles.
package feed

import (
	"context"
	"errors"

	"cryptotraderv1/internal/model"
)

// ErrExhausted is returned by finite feeds once every candle has been
// consumed.
var ErrExhausted = errors.New("feed: exhausted")

// CandleFeed yields the next closed candle or blocks until one is
// available. Finite feeds return ErrExhausted when done.
type CandleFeed interface {
	Next(ctx context.Context) (model.Candle, error)
}

// Historical replays a fixed candle slice in timestamp order.
type Historical struct {
	candles []model.Candle
	idx     int
}

// NewHistorical normalizes the slice (sorted, de-duplicated) and replays
// it from the start.
func NewHistorical(candles []model.Candle) *Historical {
	return &Historical{candles: model.Normalize(candles)}
}

func (h *Historical) Next(ctx context.Context) (model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return model.Candle{}, err
	}
	if h.idx >= len(h.candles) {
		return model.Candle{}, ErrExhausted
	}
	c := h.candles[h.idx]
	h.idx++
	return c, nil
}

// Remaining reports how many candles are left to replay.
func (h *Historical) Remaining() int {
	return len(h.candles) - h.idx
}
