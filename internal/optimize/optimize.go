// Package optimize searches SMA parameter grids over historical candles
// and validates the winners out-of-sample.
//
// Every partition of the candle sequence is chronological. Parameters are
// always fitted on a training slice and scored once on data the fit never
// saw; nothing here shuffles or resamples.
package optimize

import (
	"fmt"
	"math"
	"sort"

	"cryptotraderv1/internal/backtest"
	"cryptotraderv1/internal/model"
	"cryptotraderv1/internal/stats"
)

// Metric selects which summary field ranks a parameter set.
type Metric string

const (
	MetricSharpe   Metric = "sharpe"
	MetricEnd      Metric = "end"
	MetricPnL      Metric = "pnl"
	MetricDrawdown Metric = "dd"
)

// Maximize reports the ranking direction: drawdown is minimized, the rest
// are maximized.
func (m Metric) Maximize() bool {
	return m != MetricDrawdown
}

func (m Metric) score(s stats.Summary) float64 {
	switch m {
	case MetricEnd:
		return s.End
	case MetricPnL:
		return s.TotalPnL
	case MetricDrawdown:
		return s.MaxDrawdown
	default:
		return s.Sharpe
	}
}

// Config describes one search: the (fast, slow) ranges, the ranking
// metric, and the backtest parameters shared by every cell.
type Config struct {
	FastMin, FastMax int
	SlowMin, SlowMax int
	Step             int // grid stride, defaults to 1

	Metric Metric

	// Base carries cash, fees, sizing, and guard settings. Fast and Slow
	// are overwritten per cell.
	Base backtest.Params
}

func (c Config) validate() error {
	if c.FastMin <= 0 || c.FastMax < c.FastMin {
		return fmt.Errorf("optimize: bad fast range [%d,%d]", c.FastMin, c.FastMax)
	}
	if c.SlowMin <= 0 || c.SlowMax < c.SlowMin {
		return fmt.Errorf("optimize: bad slow range [%d,%d]", c.SlowMin, c.SlowMax)
	}
	switch c.Metric {
	case MetricSharpe, MetricEnd, MetricPnL, MetricDrawdown:
	default:
		return fmt.Errorf("optimize: unknown metric %q", c.Metric)
	}
	return nil
}

func (c Config) step() int {
	if c.Step <= 0 {
		return 1
	}
	return c.Step
}

// Cell is one evaluated grid point.
type Cell struct {
	Fast    int
	Slow    int
	Score   float64
	Summary stats.Summary
}

// GridSearch backtests every (fast, slow) pair with fast < slow and
// returns the cells ranked best-first by the configured metric. Ties break
// on (fast, slow) so the ranking is deterministic.
func GridSearch(candles []model.Candle, cfg Config) ([]Cell, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var cells []Cell
	for fast := cfg.FastMin; fast <= cfg.FastMax; fast += cfg.step() {
		for slow := cfg.SlowMin; slow <= cfg.SlowMax; slow += cfg.step() {
			if fast >= slow {
				continue
			}
			p := cfg.Base
			p.Fast, p.Slow = fast, slow
			p.CollectTrades, p.CollectEquity = true, true

			res, err := backtest.Run(candles, p)
			if err != nil {
				return nil, fmt.Errorf("optimize: cell (%d,%d): %w", fast, slow, err)
			}
			cells = append(cells, Cell{
				Fast: fast, Slow: slow,
				Score:   cfg.Metric.score(res.Summary),
				Summary: res.Summary,
			})
		}
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("optimize: empty grid (fast [%d,%d], slow [%d,%d])",
			cfg.FastMin, cfg.FastMax, cfg.SlowMin, cfg.SlowMax)
	}

	rank(cells, cfg.Metric)
	return cells, nil
}

func rank(cells []Cell, m Metric) {
	max := m.Maximize()
	sort.SliceStable(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		as, bs := a.Score, b.Score
		// NaN scores sink to the bottom regardless of direction.
		if math.IsNaN(as) {
			return false
		}
		if math.IsNaN(bs) {
			return true
		}
		if as != bs {
			if max {
				return as > bs
			}
			return as < bs
		}
		if a.Fast != b.Fast {
			return a.Fast < b.Fast
		}
		return a.Slow < b.Slow
	})
}

// SplitReport is the outcome of a train/test evaluation: the winning
// train-slice cell and its single out-of-sample run.
type SplitReport struct {
	TrainBars int
	TestBars  int
	Best      Cell
	Test      stats.Summary
	TestScore float64
}

// SplitEvaluate fits the grid on the leading trainFrac of the candles and
// scores the winner exactly once on the remainder. The test slice never
// participates in parameter selection.
func SplitEvaluate(candles []model.Candle, cfg Config, trainFrac float64) (SplitReport, error) {
	if trainFrac <= 0 || trainFrac >= 1 {
		return SplitReport{}, fmt.Errorf("optimize: trainFrac must be in (0,1), got %v", trainFrac)
	}
	candles = model.Normalize(candles)
	cut := int(float64(len(candles)) * trainFrac)
	train, test := candles[:cut], candles[cut:]
	if len(test) <= cfg.SlowMax {
		return SplitReport{}, fmt.Errorf("optimize: test slice too short (%d bars for slow max %d)",
			len(test), cfg.SlowMax)
	}

	cells, err := GridSearch(train, cfg)
	if err != nil {
		return SplitReport{}, err
	}
	best := cells[0]

	p := cfg.Base
	p.Fast, p.Slow = best.Fast, best.Slow
	p.CollectTrades, p.CollectEquity = true, true
	res, err := backtest.Run(test, p)
	if err != nil {
		return SplitReport{}, fmt.Errorf("optimize: out-of-sample run: %w", err)
	}

	return SplitReport{
		TrainBars: len(train),
		TestBars:  len(test),
		Best:      best,
		Test:      res.Summary,
		TestScore: cfg.Metric.score(res.Summary),
	}, nil
}

// Fold is one walk-forward step: parameters fitted on [TrainStart,
// TrainEnd) and scored on [TrainEnd, TestEnd).
type Fold struct {
	TrainStart int
	TrainEnd   int
	TestEnd    int
	Best       Cell
	Test       stats.Summary
	TestScore  float64
}

// WalkForward slides a training window of windowBars across the sequence
// in stepBars increments, refitting the grid each step and scoring the
// winner on the stepBars that immediately follow the window.
func WalkForward(candles []model.Candle, cfg Config, windowBars, stepBars int) ([]Fold, error) {
	if windowBars <= cfg.SlowMax {
		return nil, fmt.Errorf("optimize: window %d bars cannot warm a slow SMA of %d", windowBars, cfg.SlowMax)
	}
	if stepBars <= cfg.SlowMax {
		return nil, fmt.Errorf("optimize: step %d bars too short for slow max %d", stepBars, cfg.SlowMax)
	}
	candles = model.Normalize(candles)

	var folds []Fold
	for start := 0; start+windowBars+stepBars <= len(candles); start += stepBars {
		trainEnd := start + windowBars
		testEnd := trainEnd + stepBars

		cells, err := GridSearch(candles[start:trainEnd], cfg)
		if err != nil {
			return nil, fmt.Errorf("optimize: fold at bar %d: %w", start, err)
		}
		best := cells[0]

		p := cfg.Base
		p.Fast, p.Slow = best.Fast, best.Slow
		p.CollectTrades, p.CollectEquity = true, true
		res, err := backtest.Run(candles[trainEnd:testEnd], p)
		if err != nil {
			return nil, fmt.Errorf("optimize: fold test at bar %d: %w", trainEnd, err)
		}

		folds = append(folds, Fold{
			TrainStart: start,
			TrainEnd:   trainEnd,
			TestEnd:    testEnd,
			Best:       best,
			Test:       res.Summary,
			TestScore:  cfg.Metric.score(res.Summary),
		})
	}
	if len(folds) == 0 {
		return nil, fmt.Errorf("optimize: %d bars cannot fit one fold of window %d + step %d",
			len(candles), windowBars, stepBars)
	}
	return folds, nil
}

// MeanTestScore averages the out-of-sample score across folds.
func MeanTestScore(folds []Fold) float64 {
	if len(folds) == 0 {
		return 0
	}
	var s float64
	for _, f := range folds {
		s += f.TestScore
	}
	return s / float64(len(folds))
}
