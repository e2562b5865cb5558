package strategy

import (
	"context"

	"cryptotraderv1/internal/model"
)

// Runner drives a Strategy over a live candle stream. It keeps a rolling
// window of the most recent candles, evaluates the strategy on every bar,
// and forwards non-HOLD signals on a buffered channel.
type Runner struct {
	strat    Strategy
	window   []model.Candle
	capacity int
	signalCh chan Signal
}

// NewRunner creates a runner with the given rolling window capacity. The
// capacity must cover the strategy's lookback or every evaluation holds.
func NewRunner(s Strategy, windowCap, signalBufferSize int) *Runner {
	return &Runner{
		strat:    s,
		capacity: windowCap,
		signalCh: make(chan Signal, signalBufferSize),
	}
}

// Signals returns the channel of non-HOLD signals emitted by the strategy.
func (r *Runner) Signals() <-chan Signal {
	return r.signalCh
}

// Window returns the current rolling window, oldest first.
func (r *Runner) Window() []model.Candle {
	return r.window
}

// Push appends one closed candle, trims the window to capacity, and
// evaluates the strategy. The resulting signal is returned and, when not
// HOLD, also forwarded on the signal channel (dropped if the consumer is
// behind).
func (r *Runner) Push(c model.Candle) Signal {
	if n := len(r.window); n > 0 && !c.TS.After(r.window[n-1].TS) {
		// Out-of-order or duplicate bar, ignore.
		return Signal{Action: ActionHold, Reason: "stale_candle"}
	}
	r.window = append(r.window, c)
	if len(r.window) > r.capacity {
		r.window = r.window[len(r.window)-r.capacity:]
	}

	sig := r.strat.Evaluate(r.window)
	if sig.Action != ActionHold {
		select {
		case r.signalCh <- sig:
		default:
		}
	}
	return sig
}

// Run consumes candles from candleCh until it closes or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, candleCh <-chan model.Candle) {
	defer close(r.signalCh)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			r.Push(c)
		}
	}
}
