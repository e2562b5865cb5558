package risk

import (
	"fmt"
	"time"
)

// Limits configures the trading guard. Zero values disable a check.
type Limits struct {
	MaxDailyLossBps float64 // e.g. 50 pauses trading at -0.50% on the day
	CooldownBars    int     // bars to wait after a trade before the next entry
}

// Guard pauses trading after a daily loss limit is hit and enforces a
// cooldown between trades. Day boundaries follow the candle feed's clock:
// callers report each bar via OnBar and the guard rolls its day-start
// equity when the calendar day changes.
type Guard struct {
	limits         Limits
	dayStart       time.Time
	dayStartEquity float64
	lastTradeBar   int
	lastTradeAt    time.Time
	hasTraded      bool
	PausedReason   string
}

// GuardState is the persistable part of a Guard. Bar indexes restart at
// zero with the process, so the last trade is checkpointed as wall-clock
// time and converted back to bars on restore.
type GuardState struct {
	DayStart       time.Time
	DayStartEquity float64
	PausedReason   string
	LastTradeAt    time.Time
}

// NewGuard creates a guard with the given limits.
func NewGuard(limits Limits) *Guard {
	return &Guard{limits: limits}
}

// State returns a checkpoint of the guard for persistence.
func (g *Guard) State() GuardState {
	return GuardState{
		DayStart:       g.dayStart,
		DayStartEquity: g.dayStartEquity,
		PausedReason:   g.PausedReason,
		LastTradeAt:    g.lastTradeAt,
	}
}

// Restore rebuilds the guard from a checkpoint. The daily-loss baseline
// survives as-is; an active cooldown is re-anchored by counting how many
// bars of length barLen elapsed between the last trade and now, so a
// restart never resets a cooldown that should still be running.
func (g *Guard) Restore(st GuardState, now time.Time, barLen time.Duration) {
	g.dayStart = st.DayStart
	g.dayStartEquity = st.DayStartEquity
	g.PausedReason = st.PausedReason
	if st.LastTradeAt.IsZero() {
		return
	}
	g.hasTraded = true
	g.lastTradeAt = st.LastTradeAt
	elapsed := 0
	if barLen > 0 && now.After(st.LastTradeAt) {
		elapsed = int(now.Sub(st.LastTradeAt) / barLen)
	}
	// Bar counting starts over after a restart; shifting the last trade
	// into negative indexes keeps the cooldown window in place.
	g.lastTradeBar = -elapsed
}

// OnBar rolls the guard's day window. Call once per bar before CanTrade.
func (g *Guard) OnBar(ts time.Time, equity float64) {
	if g.dayStart.IsZero() || !sameDay(g.dayStart, ts) {
		g.dayStart = ts
		g.dayStartEquity = equity
		g.PausedReason = ""
	}
}

// NotifyTrade records that a trade executed on the given bar.
func (g *Guard) NotifyTrade(barIndex int, ts time.Time) {
	g.lastTradeBar = barIndex
	g.lastTradeAt = ts
	g.hasTraded = true
}

// CanTrade reports whether a new trade is allowed right now. The daily-loss
// check runs first: once it trips, the guard stays paused until the next
// day rollover regardless of cooldown state.
func (g *Guard) CanTrade(barIndex int, equity float64) (bool, string) {
	if reason := g.checkDailyLoss(equity); reason != "" {
		g.PausedReason = reason
		return false, reason
	}
	if reason := g.checkCooldown(barIndex); reason != "" {
		return false, reason
	}
	return true, ""
}

func (g *Guard) checkDailyLoss(equity float64) string {
	if g.limits.MaxDailyLossBps <= 0 || g.dayStartEquity <= 0 {
		return ""
	}
	changeBps := (equity - g.dayStartEquity) / g.dayStartEquity * 1e4
	if changeBps <= -g.limits.MaxDailyLossBps {
		return fmt.Sprintf("daily loss limit hit (%.1f bps <= -%.1f bps)", changeBps, g.limits.MaxDailyLossBps)
	}
	return ""
}

func (g *Guard) checkCooldown(barIndex int) string {
	if g.limits.CooldownBars <= 0 || !g.hasTraded {
		return ""
	}
	elapsed := barIndex - g.lastTradeBar
	if elapsed < g.limits.CooldownBars {
		return fmt.Sprintf("cooldown active (%d/%d bars)", elapsed, g.limits.CooldownBars)
	}
	return ""
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
