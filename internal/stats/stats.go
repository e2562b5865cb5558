// Package stats computes performance metrics from an equity curve and a
// trade list: drawdown, Sharpe, profit factor, win rate.
//
// Every ratio is division-guarded: with no data the value is 0.0, never an
// error or NaN. Profit factor is +Inf when there are wins and no losses.
package stats

import (
	"math"
	"sort"
	"strconv"

	"cryptotraderv1/internal/model"
)

// Summary is the metrics record handed to the presentation layer.
type Summary struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	TotalPnL     float64 `json:"total_pnl"`
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"` // percent of closes with positive pnl
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"` // fraction 0..1
	Sharpe       float64 `json:"sharpe"`       // per-second scaled
}

// Compute builds a Summary from an equity series and trade list. When the
// equity series is empty the final equity is reconstructed from trade cash
// flows against the starting balance.
func Compute(equity []model.EquityPoint, trades []model.TradeRecord, start float64) Summary {
	end := start
	if len(equity) > 0 {
		end = equity[len(equity)-1].Equity
	} else {
		for _, t := range trades {
			notional := t.Qty * t.Price
			if t.Side == model.SideBuy {
				end -= notional + t.Fee + t.Slippage
			} else {
				end += notional - t.Fee - t.Slippage
			}
		}
	}

	pnls := closePnLs(trades)
	var winSum, lossSum float64
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			winSum += p
			wins++
		} else if p < 0 {
			lossSum += -p
		}
	}

	pf := 0.0
	if lossSum == 0 {
		if winSum > 0 {
			pf = math.Inf(1)
		}
	} else {
		pf = winSum / lossSum
	}

	winRate := 0.0
	if len(pnls) > 0 {
		winRate = float64(wins) / float64(len(pnls)) * 100
	}

	return Summary{
		Start:        start,
		End:          end,
		TotalPnL:     end - start,
		Trades:       len(pnls),
		WinRate:      winRate,
		ProfitFactor: pf,
		MaxDrawdown:  MaxDrawdown(equity),
		Sharpe:       Sharpe(equity),
	}
}

// MaxDrawdown returns the largest peak-to-trough equity drop as a fraction
// of the running peak.
func MaxDrawdown(equity []model.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0].Equity
	worst := 0.0
	for _, p := range equity[1:] {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := 1 - p.Equity/peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Sharpe computes a Sharpe-like ratio from per-step equity returns, scaled
// to a per-second basis using the median inter-sample spacing so results
// are comparable across timeframes.
func Sharpe(equity []model.EquityPoint) float64 {
	if len(equity) < 3 {
		return 0
	}

	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			prev = 1
		}
		rets = append(rets, (equity[i].Equity-prev)/prev)
	}

	mu := mean(rets)
	sd := stddev(rets, mu)
	if sd <= 0 {
		return 0
	}

	dt := medianSpacingSeconds(equity)
	if dt <= 0 {
		dt = 1e-9
	}
	return mu / sd * math.Sqrt(1/dt)
}

// ProfitFactor returns sum(wins)/sum(|losses|) over closed trades, +Inf
// when there are wins and no losses, 0 otherwise.
func ProfitFactor(trades []model.TradeRecord) float64 {
	var winSum, lossSum float64
	for _, p := range closePnLs(trades) {
		if p > 0 {
			winSum += p
		} else if p < 0 {
			lossSum += -p
		}
	}
	if lossSum == 0 {
		if winSum > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return winSum / lossSum
}

// FormatPF renders a profit factor for logs, with "inf" for the no-loss
// sentinel.
func FormatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return strconv.FormatFloat(pf, 'f', 2, 64)
}

func closePnLs(trades []model.TradeRecord) []float64 {
	var pnls []float64
	for _, t := range trades {
		if t.Side == model.SideSell && t.RealizedPnL != nil {
			pnls = append(pnls, *t.RealizedPnL)
		}
	}
	return pnls
}

func medianSpacingSeconds(equity []model.EquityPoint) float64 {
	diffs := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		d := equity[i].TS.Sub(equity[i-1].TS).Seconds()
		if d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return 60 // assume minute bars when spacing is degenerate
	}
	sort.Float64s(diffs)
	mid := len(diffs) / 2
	if len(diffs)%2 == 1 {
		return diffs[mid]
	}
	return (diffs[mid-1] + diffs[mid]) / 2
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var s float64
	for _, x := range xs {
		d := x - mu
		s += d * d
	}
	return math.Sqrt(s / float64(len(xs)-1))
}
