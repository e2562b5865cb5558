// Package sqlite persists what must survive a restart: the trade journal,
// the trading state the live loop resumes from, and the API nonce counter.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single-writer SQLite database in WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			ts           INTEGER NOT NULL,
			pair         TEXT    NOT NULL,
			side         TEXT    NOT NULL,
			qty          REAL    NOT NULL,
			price        REAL    NOT NULL,
			fee          REAL    NOT NULL DEFAULT 0,
			slippage     REAL    NOT NULL DEFAULT 0,
			realized_pnl REAL,
			note         TEXT,
			order_id     TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trades_pair_ts ON trades (pair, ts);

		CREATE TABLE IF NOT EXISTS trading_state (
			pair             TEXT PRIMARY KEY,
			qty              REAL    NOT NULL,
			cash             REAL    NOT NULL,
			avg_price        REAL    NOT NULL,
			realized_pnl     REAL    NOT NULL,
			round_trips      INTEGER NOT NULL,
			wins             INTEGER NOT NULL,
			day_start        INTEGER NOT NULL DEFAULT 0,
			day_start_equity REAL    NOT NULL DEFAULT 0,
			paused_reason    TEXT    NOT NULL DEFAULT '',
			last_trade_at    INTEGER NOT NULL DEFAULT 0,
			updated_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS nonce (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
