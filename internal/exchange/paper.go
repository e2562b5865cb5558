package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptotraderv1/internal/model"
)

// Paper simulates a venue in memory. Orders fill instantly at
// mid * (1 + sign*(spread+slippage) bps) with sign +1 for buys and -1 for
// sells. Balances never go negative: an overdraw is rejected before any
// state mutates.
type Paper struct {
	mu       sync.RWMutex
	mid      float64
	balances map[string]float64
	fills    []model.Fill
	settings PairSettings

	spreadBps float64
	slipBps   float64

	now func() time.Time
}

// NewPaper creates a paper venue seeded with the given balances.
func NewPaper(spreadBps, slipBps float64, balances map[string]float64) *Paper {
	b := make(map[string]float64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &Paper{
		balances:  b,
		fills:     make([]model.Fill, 0, 256),
		spreadBps: spreadBps,
		slipBps:   slipBps,
		now:       time.Now,
	}
}

func (p *Paper) Name() string { return "paper" }

// SetMid updates the mid price used for fills. The trading loop calls this
// with each candle close.
func (p *Paper) SetMid(px float64) {
	p.mu.Lock()
	p.mid = px
	p.mu.Unlock()
}

// SetBalance overwrites one asset balance. Used to restore a checkpointed
// session into a fresh in-memory venue.
func (p *Paper) SetBalance(asset string, amount float64) {
	p.mu.Lock()
	p.balances[asset] = amount
	p.mu.Unlock()
}

// SetSettings configures the constraints reported by Settings.
func (p *Paper) SetSettings(s PairSettings) {
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
}

// Fills returns a snapshot of all fills so far.
func (p *Paper) Fills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func (p *Paper) Balance(_ context.Context, asset string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[asset], nil
}

func (p *Paper) Settings(_ context.Context, _ model.TradingPair) (PairSettings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings, nil
}

// Execute fills the full qty at the adjusted mid or rejects without
// touching balances. refPrice is ignored: the paper venue's own mid is
// authoritative.
func (p *Paper) Execute(_ context.Context, pair model.TradingPair, side model.Side, qty, _ float64) (Placement, error) {
	if qty <= 0 {
		return Placement{}, fmt.Errorf("paper: non-positive qty %v", qty)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mid <= 0 {
		return Placement{Reason: "no_mid_price"}, nil
	}

	price := p.mid * (1 + side.Sign()*(p.spreadBps+p.slipBps)/1e4)
	notional := qty * price

	switch side {
	case model.SideBuy:
		if p.balances[pair.Quote] < notional {
			return Placement{Reason: "insufficient_quote"}, nil
		}
		p.balances[pair.Quote] -= notional
		p.balances[pair.Base] += qty
	case model.SideSell:
		if p.balances[pair.Base] < qty {
			return Placement{Reason: "insufficient_base"}, nil
		}
		p.balances[pair.Base] -= qty
		p.balances[pair.Quote] += notional
	default:
		return Placement{}, fmt.Errorf("paper: unknown side %q", side)
	}

	id := uuid.NewString()
	p.fills = append(p.fills, model.Fill{
		OrderID: id,
		Pair:    pair,
		Qty:     side.Sign() * qty,
		Price:   price,
		TS:      p.now(),
	})

	log.Printf("[paper] %s %s qty=%.8f price=%.8f notional=%.8f order=%s",
		side, pair.Symbol(), qty, price, notional, id)

	return Placement{
		OrderID:  id,
		Executed: true,
		Qty:      qty,
		Price:    price,
		Notional: notional,
	}, nil
}
