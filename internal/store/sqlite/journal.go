package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"cryptotraderv1/internal/model"
)

// AppendTrade writes one executed trade to the journal.
func (s *Store) AppendTrade(pair string, rec model.TradeRecord, orderID string) error {
	var pnl sql.NullFloat64
	if rec.RealizedPnL != nil {
		pnl = sql.NullFloat64{Float64: *rec.RealizedPnL, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO trades (ts, pair, side, qty, price, fee, slippage, realized_pnl, note, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TS.Unix(), pair, string(rec.Side), rec.Qty, rec.Price,
		rec.Fee, rec.Slippage, pnl, rec.Note, orderID)
	if err != nil {
		return fmt.Errorf("sqlite journal insert: %w", err)
	}
	return nil
}

// Trades returns the most recent journal rows for a pair, oldest first.
// limit <= 0 returns everything.
func (s *Store) Trades(pair string, limit int) ([]model.TradeRecord, error) {
	q := `SELECT ts, side, qty, price, fee, slippage, realized_pnl, note
	      FROM trades WHERE pair = ? ORDER BY ts DESC, id DESC`
	args := []any{pair}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal query: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var (
			ts   int64
			side string
			pnl  sql.NullFloat64
			rec  model.TradeRecord
		)
		if err := rows.Scan(&ts, &side, &rec.Qty, &rec.Price, &rec.Fee, &rec.Slippage, &pnl, &rec.Note); err != nil {
			return nil, fmt.Errorf("sqlite journal scan: %w", err)
		}
		rec.TS = time.Unix(ts, 0).UTC()
		rec.Side = model.Side(side)
		if pnl.Valid {
			v := pnl.Float64
			rec.RealizedPnL = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
