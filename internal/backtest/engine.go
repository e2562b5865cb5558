// Package backtest drives a strategy, sizer, and FIFO ledger over a
// historical candle sequence and collects trades, equity, and metrics.
//
// The engine is single-threaded and fully deterministic: the same candles
// and parameters always produce bit-identical trade and equity sequences.
// There is no wall-clock access and no randomness anywhere in the run.
package backtest

import (
	"fmt"
	"math"

	"cryptotraderv1/internal/ledger"
	"cryptotraderv1/internal/model"
	"cryptotraderv1/internal/risk"
	"cryptotraderv1/internal/stats"
	"cryptotraderv1/internal/strategy"
)

// State is the engine's position in its per-run state machine.
type State int

const (
	StateWarmup State = iota
	StateEvaluating
	StateEntering
	StateExiting
	StateHolding
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateWarmup:
		return "WARMUP"
	case StateEvaluating:
		return "EVALUATING"
	case StateEntering:
		return "ENTERING"
	case StateExiting:
		return "EXITING"
	case StateHolding:
		return "HOLDING"
	case StateFinalizing:
		return "FINALIZING"
	default:
		return "UNKNOWN"
	}
}

// Params configures one backtest run.
type Params struct {
	Pair      model.TradingPair
	Fast      int
	Slow      int
	MinGapBps float64

	StartCash float64
	FeeBps    float64
	SlipBps   float64

	// ATRPeriod defaults to 14. ATRMult > 0 arms an intrabar stop at
	// entry - ATRMult*ATR; TakeProfitBps > 0 arms an intrabar take at
	// entry * (1 + bps/1e4).
	ATRPeriod     int
	ATRMult       float64
	TakeProfitBps float64

	WarmupBars int

	Sizer risk.SizerConfig
	Guard risk.Limits

	// Collection switches let the optimizer skip allocations it does not
	// need for the chosen metric.
	CollectTrades bool
	CollectEquity bool
}

// Result is the output of one run.
type Result struct {
	Fast    int
	Slow    int
	Trades  []model.TradeRecord
	Equity  []model.EquityPoint
	Summary stats.Summary
}

// Engine holds the mutable state of one run. One engine per run; the
// zero-value is not usable, construct through Run.
type engine struct {
	p     Params
	strat *strategy.SMACrossover
	sizer *risk.Sizer
	guard *risk.Guard
	book  *ledger.Ledger

	cash       float64
	entryPrice float64
	state      State

	trades []model.TradeRecord
	equity []model.EquityPoint
}

// Run executes one deterministic backtest over the candle sequence.
// Candles are normalized (sorted, de-duplicated by timestamp) first. At
// FINALIZING any open position is closed at the last close so realized
// PnL reflects a fully liquidated run.
func Run(candles []model.Candle, p Params) (Result, error) {
	strat, err := strategy.NewSMACrossover(p.Fast, p.Slow, p.MinGapBps)
	if err != nil {
		return Result{}, err
	}
	sizer, err := risk.NewSizer(p.Sizer)
	if err != nil {
		return Result{}, err
	}
	if p.StartCash <= 0 {
		return Result{}, fmt.Errorf("backtest: StartCash must be positive, got %v", p.StartCash)
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = 14
	}

	candles = model.Normalize(candles)

	e := &engine{
		p:     p,
		strat: strat,
		sizer: sizer,
		guard: risk.NewGuard(p.Guard),
		book:  ledger.New(p.Pair),
		cash:  p.StartCash,
		state: StateWarmup,
	}

	atr := ATR(candles, p.ATRPeriod)
	needATR := p.ATRMult > 0 || p.Sizer.Policy == risk.PolicyRiskBased

	startIdx := p.Slow
	if p.Fast > startIdx {
		startIdx = p.Fast
	}
	if p.WarmupBars > startIdx {
		startIdx = p.WarmupBars
	}
	if needATR && p.ATRPeriod > startIdx {
		startIdx = p.ATRPeriod
	}

	for i := startIdx; i < len(candles); i++ {
		e.step(candles, i, atr[i])
	}

	// Liquidate whatever is still open at the last close.
	e.state = StateFinalizing
	if e.book.Qty() > 0 && len(candles) > 0 {
		last := candles[len(candles)-1]
		e.sell(e.book.Qty(), last.Close, last, "finalize")
		if p.CollectEquity && len(e.equity) > 0 {
			e.equity[len(e.equity)-1].Equity = e.cash
		}
	}

	res := Result{
		Fast:    p.Fast,
		Slow:    p.Slow,
		Trades:  e.trades,
		Equity:  e.equity,
		Summary: stats.Compute(e.equity, e.trades, p.StartCash),
	}
	return res, nil
}

func (e *engine) step(candles []model.Candle, i int, atr float64) {
	e.state = StateEvaluating
	c := candles[i]
	posQty := e.book.Qty()
	equityNow := e.cash + posQty*c.Close
	e.guard.OnBar(c.TS, equityNow)

	// Intrabar stop/take first: a stop-out on this bar pre-empts whatever
	// the crossover would have said about the exit.
	stopped := false
	if posQty > 0 {
		if stopPx, ok := e.stopPrice(atr); ok && c.Low <= stopPx {
			e.state = StateExiting
			e.sell(posQty, stopPx, c, "stop_loss")
			stopped = true
		} else if tpPx, ok := e.takePrice(); ok && c.High >= tpPx {
			e.state = StateExiting
			e.sell(posQty, tpPx, c, "take_profit")
			stopped = true
		}
		if stopped {
			e.guard.NotifyTrade(i, c.TS)
		}
	}

	sig := e.strat.Evaluate(candles[:i+1])

	switch {
	case !stopped && e.book.Qty() > 0 && sig.Action == strategy.ActionSell:
		e.state = StateExiting
		e.sell(e.book.Qty(), c.Close, c, sig.Reason)
		e.guard.NotifyTrade(i, c.TS)

	case e.book.Qty() == 0 && sig.Action == strategy.ActionBuy:
		if ok, _ := e.guard.CanTrade(i, e.cash); !ok {
			e.state = StateHolding
			return
		}
		stop := e.riskStop(c.Close, atr)
		d := e.sizer.Size(e.cash, c.Close, stop)
		if !d.OK {
			e.state = StateHolding
			return
		}
		e.state = StateEntering
		if e.buy(d.Qty, c.Close, c, sig.Reason) {
			e.guard.NotifyTrade(i, c.TS)
		}

	default:
		e.state = StateHolding
	}

	// Sample equity at the bar close, after any trades on this bar, so the
	// curve reflects the fees that were just paid.
	if e.p.CollectEquity {
		e.equity = append(e.equity, model.EquityPoint{TS: c.TS, Equity: e.cash + e.book.Qty()*c.Close})
	}
}

// stopPrice returns the armed stop level for the open position.
func (e *engine) stopPrice(atr float64) (float64, bool) {
	if e.p.ATRMult <= 0 || math.IsNaN(atr) {
		return 0, false
	}
	return e.entryPrice - e.p.ATRMult*atr, true
}

func (e *engine) takePrice() (float64, bool) {
	if e.p.TakeProfitBps <= 0 {
		return 0, false
	}
	return e.entryPrice * (1 + e.p.TakeProfitBps/1e4), true
}

// riskStop is the stop distance handed to the risk-based sizer: the ATR
// stop when available, otherwise a 50bps fallback below entry.
func (e *engine) riskStop(entry, atr float64) float64 {
	if e.p.ATRMult > 0 && !math.IsNaN(atr) {
		return entry - e.p.ATRMult*atr
	}
	return entry * 0.995
}

// buy fills at px, applying fee and slippage as a percentage of notional.
// Returns false when the total cost would overdraw cash.
func (e *engine) buy(qty, px float64, c model.Candle, note string) bool {
	cost := qty * px
	fee := cost * e.p.FeeBps / 1e4
	slip := cost * e.p.SlipBps / 1e4
	total := cost + fee + slip
	if total > e.cash+1e-9 {
		return false
	}
	if err := e.book.ApplyBuy(qty, px); err != nil {
		// Sizer output is validated positive; a failure here is a bug.
		panic(err)
	}
	e.cash -= total
	e.entryPrice = px

	if e.p.CollectTrades {
		e.trades = append(e.trades, model.TradeRecord{
			TS: c.TS, Side: model.SideBuy, Qty: qty, Price: px,
			Fee: fee, Slippage: slip, Note: note,
		})
	}
	return true
}

// sell closes qty at px with symmetric fee/slippage treatment and books
// the FIFO-realized PnL on the record.
func (e *engine) sell(qty, px float64, c model.Candle, note string) {
	realized, err := e.book.ApplySell(qty, px)
	if err != nil {
		// The engine only ever sells what the ledger holds.
		panic(err)
	}
	revenue := qty * px
	fee := revenue * e.p.FeeBps / 1e4
	slip := revenue * e.p.SlipBps / 1e4
	e.cash += revenue - fee - slip
	if e.book.Qty() == 0 {
		e.entryPrice = 0
	}

	if e.p.CollectTrades {
		e.trades = append(e.trades, model.TradeRecord{
			TS: c.TS, Side: model.SideSell, Qty: qty, Price: px,
			Fee: fee, Slippage: slip, RealizedPnL: &realized, Note: note,
		})
	}
}
