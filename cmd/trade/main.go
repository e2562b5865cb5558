// cmd/trade runs the live trading loop: candles in, signals through the
// risk guard and sizer, orders out to a paper or real venue, every fill
// journaled to SQLite and echoed to Redis for dashboards.
//
// Usage:
//
//	go run ./cmd/trade --mode=paper --feed=ws
//	EXMO_API_KEY=... EXMO_API_SECRET=... go run ./cmd/trade --mode=live
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cryptotraderv1/config"
	"cryptotraderv1/internal/exchange"
	"cryptotraderv1/internal/exchange/exmo"
	"cryptotraderv1/internal/feed"
	"cryptotraderv1/internal/ledger"
	"cryptotraderv1/internal/logger"
	"cryptotraderv1/internal/metrics"
	"cryptotraderv1/internal/model"
	"cryptotraderv1/internal/notification"
	"cryptotraderv1/internal/risk"
	"cryptotraderv1/internal/stats"
	redisstore "cryptotraderv1/internal/store/redis"
	sqlitestore "cryptotraderv1/internal/store/sqlite"
	"cryptotraderv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	mode := flag.String("mode", "paper", "Venue: paper|live")
	feedKind := flag.String("feed", "ws", "Candle source: ws|poll")
	equityOut := flag.String("equity-out", "", "Append per-bar equity rows to this CSV path")
	flag.Parse()

	cfg := config.Load()
	logger.Init("trade", logger.ParseLevel(cfg.LogLevel))

	pair, err := model.ParsePair(cfg.Pair)
	if err != nil {
		log.Fatalf("[trade] %v", err)
	}
	tf := time.Duration(cfg.TimeframeSec) * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Print("[trade] shutdown signal")
		cancel()
	}()

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[trade] sqlite open: %v", err)
	}
	defer store.Close()

	var pub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		pub, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			// Telemetry is optional; trading proceeds without it.
			log.Printf("[trade] redis unavailable, continuing without telemetry: %v", err)
			pub = nil
		} else {
			defer pub.Close()
			m.RedisBreakerState.Set(float64(redisstore.StateClosed))
			pub.OnBreakerChange(func(_, to redisstore.State) {
				m.RedisBreakerState.Set(float64(to))
			})
		}
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, health)
		srv.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
			srv.Stop(stopCtx)
			stop()
		}()
		if pub != nil {
			health.StartLivenessChecker(ctx, pub.Client(), store.DB(), 30*time.Second)
		} else {
			health.StartLivenessChecker(ctx, nil, store.DB(), 30*time.Second)
		}
	}

	t := &trader{
		cfg:    cfg,
		pair:   pair,
		tf:     tf,
		book:   ledger.New(pair),
		guard:  risk.NewGuard(risk.Limits{MaxDailyLossBps: cfg.MaxDailyLossBps, CooldownBars: cfg.CooldownBars}),
		store:  store,
		pub:    pub,
		m:      m,
		health: health,
	}

	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	t.notify = notification.NewFanout(backends...)

	// Venue
	switch *mode {
	case "live":
		cfg.RequireLiveCredentials()
		client := exmo.NewClient(exmo.Config{
			APIKey:    cfg.ExmoAPIKey,
			APISecret: cfg.ExmoAPISecret,
			BaseURL:   cfg.ExmoBaseURL,
		}, store.NonceSource("exmo"), m)
		t.live = exmo.NewLive(client, exmo.LiveConfig{
			SlipBps:         cfg.SlipBps,
			RepriceBps:      cfg.RepriceBps,
			RepriceAttempts: cfg.RepriceAttempts,
			FillWait:        time.Duration(cfg.FillWaitSec) * time.Second,
		})
		t.ex = t.live
	case "paper":
		t.paper = exchange.NewPaper(cfg.SpreadBps, cfg.SlipBps, map[string]float64{
			pair.Quote: cfg.StartCash,
		})
		t.ex = t.paper
	default:
		log.Fatalf("[trade] unknown mode %q", *mode)
	}

	if err := t.setup(ctx); err != nil {
		log.Fatalf("[trade] setup: %v", err)
	}

	strat, err := strategy.NewSMACrossover(cfg.Fast, cfg.Slow, cfg.MinGapBps)
	if err != nil {
		log.Fatalf("[trade] %v", err)
	}
	t.runner = strategy.NewRunner(strat, cfg.Slow+2, 16)

	// Candle source
	var fd feed.CandleFeed
	switch *feedKind {
	case "ws":
		wsf := feed.NewWSFeed("", pair, tf)
		wsf.OnReconnect = func() {
			m.WSReconnects.Inc()
			health.SetFeedConnected(false)
		}
		go wsf.Run(ctx)
		fd = wsf
	case "poll":
		resolutionMin := cfg.TimeframeSec / 60
		if resolutionMin < 1 {
			resolutionMin = 1
		}
		var src feed.CandleSource
		if t.live != nil {
			src = t.live.Client()
		} else {
			// Candle history is a public endpoint; no credentials needed.
			src = exmo.NewClient(exmo.Config{}, exmo.NewMemoryNonce(time.Now().UnixMilli()), m)
		}
		fd = feed.NewPoller(src, pair, resolutionMin, 0)
	default:
		log.Fatalf("[trade] unknown feed %q", *feedKind)
	}
	health.SetFeedConnected(true)

	if *equityOut != "" {
		f, err := os.OpenFile(*equityOut, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("[trade] open equity csv: %v", err)
		}
		defer f.Close()
		t.equityW = csv.NewWriter(f)
		defer t.equityW.Flush()
	}

	log.Printf("[trade] %s on %s, tf=%s, fast=%d slow=%d gap=%.1fbps, policy=%s",
		t.ex.Name(), pair.Symbol(), tf, cfg.Fast, cfg.Slow, cfg.MinGapBps, cfg.SizerPolicy)

	t.run(ctx, fd)
	log.Print("[trade] stopped")
}

// trader owns the per-session trading state.
type trader struct {
	cfg  *config.Config
	pair model.TradingPair
	tf   time.Duration

	ex    exchange.Exchange
	live  *exmo.Live      // nil in paper mode
	paper *exchange.Paper // nil in live mode

	runner *strategy.Runner
	sizer  *risk.Sizer
	guard  *risk.Guard
	book   *ledger.Ledger

	store  *sqlitestore.Store
	pub    *redisstore.Publisher
	m      *metrics.Metrics
	health *metrics.HealthStatus
	notify *notification.Fanout

	settings exchange.PairSettings

	cash       float64
	realized   float64
	roundTrips int
	wins       int
	trades     []model.TradeRecord

	barIndex       int
	pausedNotified bool
	lastHeartbeat  time.Time
	equityW        *csv.Writer
}

// setup fetches pair settings, builds the sizer, and restores any persisted
// session state so a restart resumes instead of re-entering blindly.
func (t *trader) setup(ctx context.Context) error {
	if t.paper != nil {
		t.paper.SetSettings(exchange.PairSettings{
			QtyStep:     t.cfg.QtyStep,
			PriceTick:   t.cfg.PriceTick,
			MinNotional: t.cfg.MinNotional,
		})
	}
	s, err := t.ex.Settings(ctx, t.pair)
	if err != nil {
		return err
	}
	// Config overrides win over what the venue reports.
	if t.cfg.QtyStep > 0 {
		s.QtyStep = t.cfg.QtyStep
	}
	if t.cfg.PriceTick > 0 {
		s.PriceTick = t.cfg.PriceTick
	}
	if t.cfg.MinNotional > 0 {
		s.MinNotional = t.cfg.MinNotional
	}
	t.settings = s

	t.sizer, err = risk.NewSizer(risk.SizerConfig{
		Policy:      risk.Policy(t.cfg.SizerPolicy),
		QuoteAmount: t.cfg.QuoteAmount,
		EquityPct:   t.cfg.EquityPct,
		RiskPct:     t.cfg.RiskPct,
		QtyStep:     s.QtyStep,
		PriceTick:   s.PriceTick,
		MinNotional: s.MinNotional,
	})
	if err != nil {
		return err
	}

	st, found, err := t.store.LoadState(t.pair.Symbol())
	if err != nil {
		return err
	}
	if found {
		if st.Qty > 0 {
			if err := t.book.ApplyBuy(st.Qty, st.AvgPrice); err != nil {
				return err
			}
		}
		t.cash = st.Cash
		t.realized = st.RealizedPnL
		t.roundTrips = st.RoundTrips
		t.wins = st.Wins
		if t.paper != nil {
			// A fresh in-memory venue must agree with the checkpoint.
			t.paper.SetBalance(t.pair.Base, st.Qty)
			t.paper.SetBalance(t.pair.Quote, st.Cash)
		}
		// A restart must not reset an active pause or cooldown.
		t.guard.Restore(risk.GuardState{
			DayStart:       st.DayStart,
			DayStartEquity: st.DayStartEquity,
			PausedReason:   st.PausedReason,
			LastTradeAt:    st.LastTradeAt,
		}, time.Now().UTC(), t.tf)
		log.Printf("[trade] resumed state: qty=%.8f avg=%.8f cash=%.2f pnl=%.2f trips=%d paused=%q",
			st.Qty, st.AvgPrice, st.Cash, st.RealizedPnL, st.RoundTrips, st.PausedReason)
	} else {
		t.cash = t.cfg.StartCash
	}

	// The wallet is authoritative for live sessions.
	t.syncWallet(ctx)

	if t.trades, err = t.store.Trades(t.pair.Symbol(), 0); err != nil {
		return err
	}
	return nil
}

// syncWallet refreshes cash from the venue's quote balance.
func (t *trader) syncWallet(ctx context.Context) {
	bal, err := t.ex.Balance(ctx, t.pair.Quote)
	if err != nil {
		log.Printf("[trade] balance sync failed, keeping cash=%.2f: %v", t.cash, err)
		return
	}
	t.cash = bal
}

func (t *trader) run(ctx context.Context, fd feed.CandleFeed) {
	for {
		c, err := fd.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.saveState()
				return
			}
			log.Printf("[trade] feed: %v", err)
			t.saveState()
			return
		}
		t.onCandle(ctx, c)
	}
}

func (t *trader) onCandle(ctx context.Context, c model.Candle) {
	t.barIndex++
	t.m.CandlesTotal.Inc()
	t.health.SetFeedConnected(true)
	t.health.SetLastCandleTime(c.TS)

	if t.paper != nil {
		t.paper.SetMid(c.Close)
	}

	equity := t.cash + t.book.Qty()*c.Close
	t.guard.OnBar(c.TS, equity)
	if t.guard.PausedReason == "" {
		t.pausedNotified = false
	}

	sig := t.runner.Push(c)
	t.m.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()

	switch {
	case sig.Action == strategy.ActionBuy && t.book.Qty() == 0:
		t.tryEnter(ctx, c, sig, equity)
	case sig.Action == strategy.ActionSell && t.book.Qty() > 0:
		t.tryExit(ctx, c, sig)
	}

	equity = t.cash + t.book.Qty()*c.Close
	t.m.Equity.Set(equity)
	t.m.PositionQty.Set(t.book.Qty())
	t.m.RealizedPnL.Set(t.realized)

	if t.equityW != nil {
		if err := appendEquityRow(t.equityW, c.TS, equity); err != nil {
			log.Printf("[trade] equity csv: %v", err)
		}
	}

	if time.Since(t.lastHeartbeat) >= time.Duration(t.cfg.HeartbeatSec)*time.Second {
		t.heartbeat(ctx, c, equity)
		t.lastHeartbeat = time.Now()
	}
}

func (t *trader) tryEnter(ctx context.Context, c model.Candle, sig strategy.Signal, equity float64) {
	if ok, reason := t.guard.CanTrade(t.barIndex, equity); !ok {
		log.Printf("[trade] entry blocked: %s", reason)
		t.m.OrdersBlocked.WithLabelValues("guard").Inc()
		if t.guard.PausedReason != "" && !t.pausedNotified {
			t.pausedNotified = true
			// Checkpoint right away so a crash mid-pause resumes paused.
			t.saveState()
			t.notify.Send(ctx, notification.PauseAlert(t.pair.Symbol(), t.guard.PausedReason))
		}
		return
	}

	// The 50bps fallback stop only feeds the risk_based sizer.
	d := t.sizer.Size(t.cash, c.Close, c.Close*0.995)
	if !d.OK {
		log.Printf("[trade] no entry: %s", d.Reason)
		t.m.OrdersBlocked.WithLabelValues("sizer").Inc()
		return
	}

	tctx := logger.WithTraceID(ctx, logger.GenerateTraceID(t.pair.Symbol(), c.TS))
	pl, err := t.ex.Execute(tctx, t.pair, model.SideBuy, d.Qty, c.Close)
	if err != nil {
		slog.Error("entry failed", append(logger.LogWithTrace(tctx), "err", err)...)
		return
	}
	if !pl.Executed {
		log.Printf("[trade] entry rejected: %s", pl.Reason)
		t.m.OrdersBlocked.WithLabelValues("venue").Inc()
		return
	}

	if err := t.book.ApplyBuy(pl.Qty, pl.Price); err != nil {
		log.Printf("[trade] ledger buy: %v", err)
		return
	}
	t.guard.NotifyTrade(t.barIndex, c.TS)
	t.recordFill(tctx, c, model.SideBuy, pl, nil, sig.Reason)
}

func (t *trader) tryExit(ctx context.Context, c model.Candle, sig strategy.Signal) {
	qty := t.book.Qty()

	// Leftovers below the exchange's quantity step cannot be sold; sweep
	// them on a live venue, otherwise just mark the position flat.
	if t.settings.QtyStep > 0 && qty < t.settings.QtyStep {
		log.Printf("[trade] dust leftover %.8f below step %.8f, marking flat", qty, t.settings.QtyStep)
		if t.live != nil {
			if _, err := t.live.SweepDust(ctx, t.pair, t.settings.QtyStep, t.cfg.DustCostCeiling); err != nil {
				log.Printf("[trade] dust sweep: %v", err)
			}
		}
		t.book = ledger.New(t.pair)
		t.saveState()
		return
	}

	tctx := logger.WithTraceID(ctx, logger.GenerateTraceID(t.pair.Symbol(), c.TS))
	pl, err := t.ex.Execute(tctx, t.pair, model.SideSell, qty, c.Close)
	if err != nil {
		slog.Error("exit failed", append(logger.LogWithTrace(tctx), "err", err)...)
		return
	}
	if !pl.Executed {
		log.Printf("[trade] exit rejected: %s", pl.Reason)
		t.m.OrdersBlocked.WithLabelValues("venue").Inc()
		return
	}

	realized, err := t.book.ApplySell(pl.Qty, pl.Price)
	if err != nil {
		log.Printf("[trade] ledger sell: %v", err)
		return
	}
	t.realized += realized
	t.roundTrips++
	if realized > 0 {
		t.wins++
	}
	t.guard.NotifyTrade(t.barIndex, c.TS)
	t.recordFill(tctx, c, model.SideSell, pl, &realized, sig.Reason)
}

// recordFill journals the fill, refreshes the wallet, persists state, and
// publishes telemetry. Persistence failures are logged, never fatal: the
// in-memory session stays correct and the next fill retries the write.
func (t *trader) recordFill(ctx context.Context, c model.Candle, side model.Side, pl exchange.Placement, realized *float64, note string) {
	rec := model.TradeRecord{
		TS:          c.TS,
		Side:        side,
		Qty:         pl.Qty,
		Price:       pl.Price,
		Fee:         pl.Notional * t.cfg.FeeBps / 1e4,
		RealizedPnL: realized,
		Note:        note,
	}
	t.trades = append(t.trades, rec)
	t.m.FillsTotal.WithLabelValues(string(side)).Inc()

	slog.Info("fill",
		append(logger.LogWithTrace(ctx),
			"side", string(side), "qty", pl.Qty, "price", pl.Price,
			"notional", pl.Notional, "order_id", pl.OrderID)...)

	if err := t.store.AppendTrade(t.pair.Symbol(), rec, pl.OrderID); err != nil {
		log.Printf("[trade] journal: %v", err)
	}

	t.notify.Send(ctx, notification.FillAlert(
		t.ex.Name(), t.pair.Symbol(), string(side), pl.Qty, pl.Price, realized, note))

	t.syncWallet(ctx)
	t.saveState()

	if t.pub != nil {
		t.pub.PublishFill(ctx, model.Fill{
			OrderID: pl.OrderID,
			Pair:    t.pair,
			Qty:     side.Sign() * pl.Qty,
			Price:   pl.Price,
			TS:      c.TS,
		})
	}
}

func (t *trader) saveState() {
	pos := t.book.Position()
	gs := t.guard.State()
	err := t.store.SaveState(sqlitestore.TradingState{
		Pair:           t.pair.Symbol(),
		Qty:            pos.Qty,
		Cash:           t.cash,
		AvgPrice:       pos.AvgPrice,
		RealizedPnL:    t.realized,
		RoundTrips:     t.roundTrips,
		Wins:           t.wins,
		DayStart:       gs.DayStart,
		DayStartEquity: gs.DayStartEquity,
		PausedReason:   gs.PausedReason,
		LastTradeAt:    gs.LastTradeAt,
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[trade] state save: %v", err)
	}
}

// appendEquityRow writes one ts,equity row and surfaces the writer's
// sticky error after the flush, so a full disk does not drop rows silently.
func appendEquityRow(w *csv.Writer, ts time.Time, equity float64) error {
	if err := w.Write([]string{
		strconv.FormatInt(ts.Unix(), 10),
		strconv.FormatFloat(equity, 'f', -1, 64),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (t *trader) heartbeat(ctx context.Context, c model.Candle, equity float64) {
	winRate := 0.0
	if t.roundTrips > 0 {
		winRate = float64(t.wins) / float64(t.roundTrips) * 100
	}
	var extraMS int64
	if t.live != nil {
		extra := t.live.Client().Limiter().Extra()
		extraMS = extra.Milliseconds()
		t.m.AdaptiveDelay.Set(extra.Seconds())
	}

	log.Printf("[trade] hb price=%.8f qty=%.8f equity=%.2f pnl=%.2f trips=%d win=%.1f%% pf=%s",
		c.Close, t.book.Qty(), equity, t.realized, t.roundTrips, winRate,
		stats.FormatPF(stats.ProfitFactor(t.trades)))

	if t.pub == nil {
		return
	}
	t.pub.PublishHeartbeat(ctx, redisstore.Heartbeat{
		Pair:          t.pair.Symbol(),
		TS:            c.TS.Unix(),
		Price:         c.Close,
		PositionQty:   t.book.Qty(),
		AvgPrice:      t.book.AvgPrice(),
		Cash:          t.cash,
		Equity:        equity,
		RealizedPnL:   t.realized,
		UnrealizedPnL: t.book.UnrealizedPnL(c.Close),
		WinRate:       winRate,
		ProfitFactor:  stats.FormatPF(stats.ProfitFactor(t.trades)),
		RoundTrips:    t.roundTrips,
		ExtraDelayMS:  extraMS,
	})
}
