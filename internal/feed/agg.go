package feed

import (
	"sync"
	"time"

	"cryptotraderv1/internal/model"
)

// Trade is one public trade from the venue stream.
type Trade struct {
	Pair  string
	Price float64
	Qty   float64
	TS    time.Time
}

// Aggregator buckets a trade stream into fixed-timeframe OHLCV candles.
// A candle is emitted once a trade arrives in a later bucket or a flush
// finds the bucket in the past. Late trades are dropped.
type Aggregator struct {
	mu     sync.Mutex
	tf     time.Duration
	bucket time.Time
	open   bool
	cur    model.Candle

	// OnDroppedTrade is called for trades older than the current bucket.
	OnDroppedTrade func()
}

// NewAggregator creates an aggregator for the given timeframe.
func NewAggregator(tf time.Duration) *Aggregator {
	return &Aggregator{tf: tf}
}

// Push incorporates one trade and returns the candle it closed, if any.
func (a *Aggregator) Push(t Trade) (model.Candle, bool) {
	bucket := t.TS.Truncate(a.tf)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open && bucket.Before(a.bucket) {
		dropped := a.OnDroppedTrade
		if dropped != nil {
			dropped()
		}
		return model.Candle{}, false
	}

	var closed model.Candle
	emitted := false
	if a.open && bucket.After(a.bucket) {
		closed = a.cur
		emitted = true
		a.open = false
	}

	if !a.open {
		a.bucket = bucket
		a.open = true
		a.cur = model.Candle{
			Pair: t.Pair, TS: bucket,
			Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price,
			Volume: t.Qty,
		}
		return closed, emitted
	}

	c := &a.cur
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Qty
	return closed, emitted
}

// FlushBefore emits the in-progress candle when its bucket closed before
// now. Quiet markets close their bars this way instead of waiting for the
// next trade.
func (a *Aggregator) FlushBefore(now time.Time) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open || a.bucket.Add(a.tf).After(now) {
		return model.Candle{}, false
	}
	a.open = false
	return a.cur, true
}
