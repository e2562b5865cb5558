// cmd/backtest runs one deterministic backtest over a CSV candle file and
// prints a performance summary. Trades and the equity curve can be written
// out as CSV for inspection.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/doge_eur_1m.csv --fast=12 --slow=26
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"cryptotraderv1/internal/backtest"
	"cryptotraderv1/internal/feed"
	"cryptotraderv1/internal/model"
	"cryptotraderv1/internal/risk"
	"cryptotraderv1/internal/stats"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Flags
	csvPath := flag.String("csv", "", "Path to candle CSV (ts,open,high,low,close,volume)")
	pairSym := flag.String("pair", "DOGE_EUR", "Trading pair symbol")
	fast := flag.Int("fast", 12, "Fast SMA period")
	slow := flag.Int("slow", 26, "Slow SMA period")
	gapBps := flag.Float64("gap", 5, "Minimum SMA gap in bps to confirm a cross")
	cash := flag.Float64("cash", 1000, "Starting quote-currency balance")
	feeBps := flag.Float64("fee", 30, "Fee per fill in bps of notional")
	slipBps := flag.Float64("slip", 10, "Slippage per fill in bps of notional")
	policy := flag.String("policy", "fixed_quote", "Sizing policy: fixed_quote|percent_equity|risk_based")
	quoteAmt := flag.Float64("quote", 100, "fixed_quote: quote currency per trade")
	equityPct := flag.Float64("equity-pct", 25, "percent_equity: percent of equity per trade")
	riskPct := flag.Float64("risk-pct", 1, "risk_based: percent of equity at risk per trade")
	atrPeriod := flag.Int("atr-period", 14, "ATR period for stops")
	atrMult := flag.Float64("atr-mult", 0, "ATR stop multiple (0 disables the stop)")
	takeBps := flag.Float64("take", 0, "Take-profit in bps above entry (0 disables)")
	dailyLoss := flag.Float64("daily-loss", 0, "Pause trading after this daily loss in bps (0 disables)")
	cooldown := flag.Int("cooldown", 0, "Bars to wait between trades")
	warmup := flag.Int("warmup", 0, "Extra warmup bars before the first evaluation")
	tradesOut := flag.String("trades-out", "", "Write executed trades to this CSV path")
	equityOut := flag.String("equity-out", "", "Write the equity curve to this CSV path")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("[backtest] --csv is required")
	}
	pair, err := model.ParsePair(*pairSym)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	candles, err := feed.ReadCSVFile(*csvPath, pair.Symbol())
	if err != nil {
		log.Fatalf("[backtest] load candles: %v", err)
	}
	log.Printf("[backtest] loaded %d candles from %s", len(candles), *csvPath)

	p := backtest.Params{
		Pair:      pair,
		Fast:      *fast,
		Slow:      *slow,
		MinGapBps: *gapBps,

		StartCash: *cash,
		FeeBps:    *feeBps,
		SlipBps:   *slipBps,

		ATRPeriod:     *atrPeriod,
		ATRMult:       *atrMult,
		TakeProfitBps: *takeBps,
		WarmupBars:    *warmup,

		Sizer: risk.SizerConfig{
			Policy:      risk.Policy(*policy),
			QuoteAmount: *quoteAmt,
			EquityPct:   *equityPct,
			RiskPct:     *riskPct,
		},
		Guard: risk.Limits{
			MaxDailyLossBps: *dailyLoss,
			CooldownBars:    *cooldown,
		},

		CollectTrades: true,
		CollectEquity: true,
	}

	res, err := backtest.Run(candles, p)
	if err != nil {
		log.Fatalf("[backtest] run: %v", err)
	}

	printSummary(res, len(candles))

	if *tradesOut != "" {
		if err := writeTradesCSV(*tradesOut, res.Trades); err != nil {
			log.Fatalf("[backtest] write trades: %v", err)
		}
		log.Printf("[backtest] wrote %d trades to %s", len(res.Trades), *tradesOut)
	}
	if *equityOut != "" {
		if err := writeEquityCSV(*equityOut, res.Equity); err != nil {
			log.Fatalf("[backtest] write equity: %v", err)
		}
		log.Printf("[backtest] wrote %d equity points to %s", len(res.Equity), *equityOut)
	}
}

func printSummary(res backtest.Result, bars int) {
	s := res.Summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║         BACKTEST COMPLETE            ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  SMA fast/slow:   %4d / %-11d ║\n", res.Fast, res.Slow)
	fmt.Printf("║  Bars:            %-19d ║\n", bars)
	fmt.Printf("║  Start equity:    %-19.2f ║\n", s.Start)
	fmt.Printf("║  End equity:      %-19.2f ║\n", s.End)
	fmt.Printf("║  Total PnL:       %-19.2f ║\n", s.TotalPnL)
	fmt.Printf("║  Closed trades:   %-19d ║\n", s.Trades)
	fmt.Printf("║  Win rate:        %-18.1f%% ║\n", s.WinRate)
	fmt.Printf("║  Profit factor:   %-19s ║\n", stats.FormatPF(s.ProfitFactor))
	fmt.Printf("║  Max drawdown:    %-18.2f%% ║\n", s.MaxDrawdown*100)
	fmt.Printf("║  Sharpe:          %-19.4f ║\n", s.Sharpe)
	fmt.Println("╚══════════════════════════════════════╝")
}

func writeTradesCSV(path string, trades []model.TradeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"ts", "side", "qty", "price", "fee", "slippage", "realized_pnl", "note"}); err != nil {
		return err
	}
	for _, t := range trades {
		pnl := ""
		if t.RealizedPnL != nil {
			pnl = strconv.FormatFloat(*t.RealizedPnL, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatInt(t.TS.Unix(), 10),
			string(t.Side),
			strconv.FormatFloat(t.Qty, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Fee, 'f', -1, 64),
			strconv.FormatFloat(t.Slippage, 'f', -1, 64),
			pnl,
			t.Note,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeEquityCSV(path string, points []model.EquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"ts", "equity"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			strconv.FormatInt(p.TS.Unix(), 10),
			strconv.FormatFloat(p.Equity, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
