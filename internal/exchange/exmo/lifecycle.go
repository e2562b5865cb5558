package exmo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"cryptotraderv1/internal/exchange"
	"cryptotraderv1/internal/model"
)

// LiveConfig tunes the order lifecycle.
type LiveConfig struct {
	// SlipBps offsets the limit price from the reference so the order
	// crosses the book: above ref for buys, below for sells.
	SlipBps float64
	// RepriceBps is added per reprice attempt after an unfilled order is
	// cancelled.
	RepriceBps float64
	// RepriceAttempts bounds how many times an unfilled order is repriced.
	RepriceAttempts int

	PollInterval time.Duration // open-order poll cadence, default 2s
	FillWait     time.Duration // per-attempt wait before cancelling, default 20s
}

func (c *LiveConfig) fill() {
	if c.SlipBps == 0 {
		c.SlipBps = 10
	}
	if c.RepriceBps == 0 {
		c.RepriceBps = 10
	}
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.FillWait == 0 {
		c.FillWait = 20 * time.Second
	}
}

// Live implements exchange.Exchange against the EXMO REST API. Orders are
// never fire-and-forget: each attempt places a limit order, polls open
// orders for a bounded wait, and cancels whatever is still resting. An
// order that left the book within the wait is treated as filled.
type Live struct {
	client *Client
	cfg    LiveConfig

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLive wraps a signed client with lifecycle behavior.
func NewLive(client *Client, cfg LiveConfig) *Live {
	cfg.fill()
	return &Live{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func (l *Live) Name() string { return "exmo" }

// Client returns the underlying signed client.
func (l *Live) Client() *Client { return l.client }

func (l *Live) Balance(ctx context.Context, asset string) (float64, error) {
	balances, err := l.client.Balances(ctx)
	if err != nil {
		return 0, err
	}
	return balances[asset], nil
}

func (l *Live) Settings(ctx context.Context, pair model.TradingPair) (exchange.PairSettings, error) {
	minQty, minNotional, precision, err := l.client.PairSettings(ctx, pair)
	if err != nil {
		return exchange.PairSettings{}, err
	}
	return exchange.PairSettings{
		PriceTick:   math.Pow(10, -precision),
		QtyStep:     minQty,
		MinNotional: minNotional,
	}, nil
}

// Execute runs the place/poll/cancel lifecycle, repricing further across
// the spread on each unfilled attempt. A venue rejection comes back as an
// unexecuted Placement; only transport and contract failures are errors.
func (l *Live) Execute(ctx context.Context, pair model.TradingPair, side model.Side, qty, refPrice float64) (exchange.Placement, error) {
	if qty <= 0 || refPrice <= 0 {
		return exchange.Placement{}, fmt.Errorf("exmo: bad order qty=%v ref=%v", qty, refPrice)
	}
	apiSide := "buy"
	if side == model.SideSell {
		apiSide = "sell"
	}

	for attempt := 0; attempt <= l.cfg.RepriceAttempts; attempt++ {
		offsetBps := l.cfg.SlipBps + float64(attempt)*l.cfg.RepriceBps
		price := refPrice * (1 + side.Sign()*offsetBps/1e4)

		id, err := l.client.OrderCreate(ctx, pair, apiSide, qty, price)
		if err != nil {
			var o Outcome
			if errors.As(err, &o) && o.Kind == KindRejected {
				return exchange.Placement{Reason: o.APIError}, nil
			}
			return exchange.Placement{}, err
		}

		filled, err := l.waitFilled(ctx, pair, id)
		if err != nil {
			return exchange.Placement{}, err
		}
		if filled {
			log.Printf("[exmo] %s %s qty=%.8f limit=%.8f filled (attempt %d) order=%s",
				side, pair.Symbol(), qty, price, attempt+1, id)
			return exchange.Placement{
				OrderID:  id,
				Executed: true,
				Qty:      qty,
				Price:    price,
				Notional: qty * price,
			}, nil
		}

		if err := l.cancelResting(ctx, pair, id); err != nil {
			return exchange.Placement{}, err
		}
		log.Printf("[exmo] %s %s limit=%.8f unfilled after %s, cancelled order=%s",
			side, pair.Symbol(), price, l.cfg.FillWait, id)
	}

	return exchange.Placement{Reason: "unfilled"}, nil
}

// waitFilled polls open orders until the id disappears or the wait runs
// out. The venue never reports fills synchronously; absence from the book
// is the fill signal.
func (l *Live) waitFilled(ctx context.Context, pair model.TradingPair, orderID string) (bool, error) {
	deadline := l.now().Add(l.cfg.FillWait)
	for {
		open, err := l.client.OpenOrders(ctx, pair)
		if err != nil {
			return false, err
		}
		if !containsOrder(open, orderID) {
			return true, nil
		}
		if !l.now().Before(deadline) {
			return false, nil
		}
		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			return false, err
		}
	}
}

// cancelResting cancels the order, tolerating the race where it filled
// between the last poll and the cancel. A cancel rejection with the order
// gone from the book means the fill won the race.
func (l *Live) cancelResting(ctx context.Context, pair model.TradingPair, orderID string) error {
	err := l.client.OrderCancel(ctx, orderID)
	if err == nil {
		return nil
	}
	var o Outcome
	if errors.As(err, &o) && o.Kind == KindRejected {
		open, listErr := l.client.OpenOrders(ctx, pair)
		if listErr != nil {
			return listErr
		}
		if !containsOrder(open, orderID) {
			return nil
		}
	}
	return err
}

func containsOrder(orders []model.Order, id string) bool {
	for _, o := range orders {
		if o.OrderID == id {
			return true
		}
	}
	return false
}
