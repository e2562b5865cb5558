// cmd/optimize searches SMA parameter grids over a CSV candle file.
// Three modes: a plain in-sample grid, a train/test split with one
// out-of-sample run for the winner, and a walk-forward sweep.
//
// Usage:
//
//	go run ./cmd/optimize --csv=data/doge_eur_1m.csv --mode=split --metric=sharpe
package main

import (
	"flag"
	"fmt"
	"log"

	"cryptotraderv1/internal/backtest"
	"cryptotraderv1/internal/feed"
	"cryptotraderv1/internal/model"
	"cryptotraderv1/internal/optimize"
	"cryptotraderv1/internal/risk"
	"cryptotraderv1/internal/stats"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	csvPath := flag.String("csv", "", "Path to candle CSV (ts,open,high,low,close,volume)")
	pairSym := flag.String("pair", "DOGE_EUR", "Trading pair symbol")
	mode := flag.String("mode", "grid", "Search mode: grid|split|walk")
	metric := flag.String("metric", "sharpe", "Ranking metric: sharpe|end|pnl|dd")
	fastMin := flag.Int("fast-min", 5, "Fast SMA range start")
	fastMax := flag.Int("fast-max", 20, "Fast SMA range end")
	slowMin := flag.Int("slow-min", 10, "Slow SMA range start")
	slowMax := flag.Int("slow-max", 60, "Slow SMA range end")
	step := flag.Int("step", 1, "Grid stride")
	top := flag.Int("top", 10, "Grid mode: rows to print")
	trainFrac := flag.Float64("train-frac", 0.7, "Split mode: training fraction")
	window := flag.Int("window", 0, "Walk mode: training window bars")
	stepBars := flag.Int("step-bars", 0, "Walk mode: test/advance bars per fold")
	cash := flag.Float64("cash", 1000, "Starting quote-currency balance")
	feeBps := flag.Float64("fee", 30, "Fee per fill in bps of notional")
	slipBps := flag.Float64("slip", 10, "Slippage per fill in bps of notional")
	gapBps := flag.Float64("gap", 5, "Minimum SMA gap in bps to confirm a cross")
	quoteAmt := flag.Float64("quote", 100, "Quote currency per trade (fixed_quote sizing)")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("[optimize] --csv is required")
	}
	pair, err := model.ParsePair(*pairSym)
	if err != nil {
		log.Fatalf("[optimize] %v", err)
	}

	candles, err := feed.ReadCSVFile(*csvPath, pair.Symbol())
	if err != nil {
		log.Fatalf("[optimize] load candles: %v", err)
	}
	log.Printf("[optimize] loaded %d candles from %s", len(candles), *csvPath)

	cfg := optimize.Config{
		FastMin: *fastMin, FastMax: *fastMax,
		SlowMin: *slowMin, SlowMax: *slowMax,
		Step:   *step,
		Metric: optimize.Metric(*metric),
		Base: backtest.Params{
			Pair:      pair,
			MinGapBps: *gapBps,
			StartCash: *cash,
			FeeBps:    *feeBps,
			SlipBps:   *slipBps,
			Sizer: risk.SizerConfig{
				Policy:      risk.PolicyFixedQuote,
				QuoteAmount: *quoteAmt,
			},
		},
	}

	switch *mode {
	case "grid":
		runGrid(candles, cfg, *top)
	case "split":
		runSplit(candles, cfg, *trainFrac)
	case "walk":
		runWalk(candles, cfg, *window, *stepBars)
	default:
		log.Fatalf("[optimize] unknown mode %q", *mode)
	}
}

func runGrid(candles []model.Candle, cfg optimize.Config, top int) {
	cells, err := optimize.GridSearch(candles, cfg)
	if err != nil {
		log.Fatalf("[optimize] grid: %v", err)
	}

	fmt.Printf("\n%d cells ranked by %s (best first):\n\n", len(cells), cfg.Metric)
	fmt.Printf("%5s %5s %12s %10s %8s %8s %7s\n", "fast", "slow", "score", "end", "trades", "win%", "pf")
	if top > len(cells) {
		top = len(cells)
	}
	for _, c := range cells[:top] {
		fmt.Printf("%5d %5d %12.4f %10.2f %8d %7.1f%% %7s\n",
			c.Fast, c.Slow, c.Score, c.Summary.End, c.Summary.Trades,
			c.Summary.WinRate, stats.FormatPF(c.Summary.ProfitFactor))
	}
}

func runSplit(candles []model.Candle, cfg optimize.Config, trainFrac float64) {
	rep, err := optimize.SplitEvaluate(candles, cfg, trainFrac)
	if err != nil {
		log.Fatalf("[optimize] split: %v", err)
	}

	fmt.Printf("\ntrain %d bars / test %d bars, metric %s\n\n", rep.TrainBars, rep.TestBars, cfg.Metric)
	fmt.Printf("winner:        fast=%d slow=%d train score=%.4f\n", rep.Best.Fast, rep.Best.Slow, rep.Best.Score)
	fmt.Printf("out-of-sample: score=%.4f end=%.2f pnl=%.2f trades=%d win=%.1f%% pf=%s dd=%.2f%%\n",
		rep.TestScore, rep.Test.End, rep.Test.TotalPnL, rep.Test.Trades,
		rep.Test.WinRate, stats.FormatPF(rep.Test.ProfitFactor), rep.Test.MaxDrawdown*100)
}

func runWalk(candles []model.Candle, cfg optimize.Config, window, stepBars int) {
	if window <= 0 || stepBars <= 0 {
		log.Fatal("[optimize] walk mode requires --window and --step-bars")
	}
	folds, err := optimize.WalkForward(candles, cfg, window, stepBars)
	if err != nil {
		log.Fatalf("[optimize] walk: %v", err)
	}

	fmt.Printf("\n%d folds (window %d, step %d), metric %s:\n\n", len(folds), window, stepBars, cfg.Metric)
	fmt.Printf("%6s %6s %6s %5s %5s %12s %12s\n", "train", "end", "test", "fast", "slow", "train score", "test score")
	for _, f := range folds {
		fmt.Printf("%6d %6d %6d %5d %5d %12.4f %12.4f\n",
			f.TrainStart, f.TrainEnd, f.TestEnd, f.Best.Fast, f.Best.Slow, f.Best.Score, f.TestScore)
	}
	fmt.Printf("\nmean out-of-sample score: %.4f\n", optimize.MeanTestScore(folds))
}
