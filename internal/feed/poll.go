package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"cryptotraderv1/internal/model"
)

// CandleSource fetches OHLCV history over REST. exmo.Client satisfies it.
type CandleSource interface {
	Candles(ctx context.Context, pair model.TradingPair, resolution int, from, to time.Time) ([]model.Candle, error)
}

// Poller polls a REST candle source and yields each closed candle exactly
// once, in order. The current (still-forming) bar is never emitted.
type Poller struct {
	src        CandleSource
	pair       model.TradingPair
	resolution int // minutes

	interval time.Duration
	lastTS   time.Time
	pending  []model.Candle

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPoller creates a poller. interval defaults to one third of the
// candle resolution, so a closed bar is picked up promptly.
func NewPoller(src CandleSource, pair model.TradingPair, resolutionMin int, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Duration(resolutionMin) * time.Minute / 3
	}
	return &Poller{
		src:        src,
		pair:       pair,
		resolution: resolutionMin,
		interval:   interval,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Next blocks until a new closed candle is available.
func (p *Poller) Next(ctx context.Context) (model.Candle, error) {
	for {
		if len(p.pending) > 0 {
			c := p.pending[0]
			p.pending = p.pending[1:]
			p.lastTS = c.TS
			return c, nil
		}

		if err := p.fetch(ctx); err != nil {
			log.Printf("[feed] poll error, backing off: %v", err)
		}
		if len(p.pending) > 0 {
			continue
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return model.Candle{}, err
		}
	}
}

func (p *Poller) fetch(ctx context.Context) error {
	now := p.now()
	from := p.lastTS
	if from.IsZero() {
		// Cold start: enough history for strategy warmup is the caller's
		// problem; one day covers any sane SMA window on minute bars.
		from = now.Add(-24 * time.Hour)
	}

	candles, err := p.src.Candles(ctx, p.pair, p.resolution, from, now)
	if err != nil {
		return fmt.Errorf("feed: poll %s: %w", p.pair.Symbol(), err)
	}

	cutoff := now.Truncate(time.Duration(p.resolution) * time.Minute)
	for _, c := range candles {
		if !c.TS.After(p.lastTS) {
			continue
		}
		if !c.TS.Before(cutoff) {
			// Still forming.
			continue
		}
		p.pending = append(p.pending, c)
	}
	return nil
}
