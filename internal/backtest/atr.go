package backtest

import (
	"math"

	"cryptotraderv1/internal/model"
)

// ATR computes the average true range as a rolling mean of the true range
// over the given period. Entries before the window is full are NaN.
func ATR(candles []model.Candle, period int) []float64 {
	n := len(candles)
	out := make([]float64, n)
	if period <= 0 || n == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	tr := make([]float64, n)
	for i, c := range candles {
		hl := math.Abs(c.High - c.Low)
		if i == 0 {
			tr[i] = hl
			continue
		}
		prev := candles[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += tr[i]
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
