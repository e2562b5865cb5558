package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TradingState is the restart checkpoint for one pair. It is written
// after every state-changing event so a restarted process resumes its
// position instead of re-entering blindly. The guard fields carry the
// daily-loss baseline and cooldown anchor: a crash mid-drawdown must not
// reset the pause.
type TradingState struct {
	Pair        string
	Qty         float64
	Cash        float64
	AvgPrice    float64
	RealizedPnL float64
	RoundTrips  int
	Wins        int

	DayStart       time.Time
	DayStartEquity float64
	PausedReason   string
	LastTradeAt    time.Time

	UpdatedAt time.Time
}

// SaveState upserts the checkpoint for the state's pair.
func (s *Store) SaveState(st TradingState) error {
	_, err := s.db.Exec(`
		INSERT INTO trading_state (pair, qty, cash, avg_price, realized_pnl, round_trips, wins,
			day_start, day_start_equity, paused_reason, last_trade_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair) DO UPDATE SET
			qty = excluded.qty,
			cash = excluded.cash,
			avg_price = excluded.avg_price,
			realized_pnl = excluded.realized_pnl,
			round_trips = excluded.round_trips,
			wins = excluded.wins,
			day_start = excluded.day_start,
			day_start_equity = excluded.day_start_equity,
			paused_reason = excluded.paused_reason,
			last_trade_at = excluded.last_trade_at,
			updated_at = excluded.updated_at`,
		st.Pair, st.Qty, st.Cash, st.AvgPrice, st.RealizedPnL,
		st.RoundTrips, st.Wins,
		unixOrZero(st.DayStart), st.DayStartEquity, st.PausedReason, unixOrZero(st.LastTradeAt),
		st.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite state save: %w", err)
	}
	return nil
}

// LoadState reads the checkpoint for a pair. found is false when no
// checkpoint exists yet.
func (s *Store) LoadState(pair string) (st TradingState, found bool, err error) {
	var dayStart, lastTrade, updated int64
	err = s.db.QueryRow(`
		SELECT pair, qty, cash, avg_price, realized_pnl, round_trips, wins,
			day_start, day_start_equity, paused_reason, last_trade_at, updated_at
		FROM trading_state WHERE pair = ?`, pair).
		Scan(&st.Pair, &st.Qty, &st.Cash, &st.AvgPrice, &st.RealizedPnL,
			&st.RoundTrips, &st.Wins,
			&dayStart, &st.DayStartEquity, &st.PausedReason, &lastTrade, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return TradingState{}, false, nil
	}
	if err != nil {
		return TradingState{}, false, fmt.Errorf("sqlite state load: %w", err)
	}
	st.DayStart = timeOrZero(dayStart)
	st.LastTradeAt = timeOrZero(lastTrade)
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return st, true, nil
}

// unixOrZero maps the zero time to 0 so it round-trips through an
// INTEGER column.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
