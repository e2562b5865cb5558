package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Nonce is a persisted monotonic counter satisfying exmo.NonceSource.
// Each Next is an atomic read-increment-write inside one transaction, so
// values never repeat across concurrent callers or process restarts.
type Nonce struct {
	store *Store
	name  string
	seed  func() int64
}

// NonceSource returns the named counter. A fresh counter starts above the
// current Unix-millisecond clock, which keeps it ahead of any nonce a
// previous non-persisted client may have sent.
func (s *Store) NonceSource(name string) *Nonce {
	return &Nonce{store: s, name: name, seed: func() int64 { return time.Now().UnixMilli() }}
}

func (n *Nonce) Next() (int64, error) {
	tx, err := n.store.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("sqlite nonce begin: %w", err)
	}
	defer tx.Rollback()

	var value int64
	err = tx.QueryRow(`SELECT value FROM nonce WHERE name = ?`, n.name).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value = n.seed()
	case err != nil:
		return 0, fmt.Errorf("sqlite nonce read: %w", err)
	}

	value++
	if _, err := tx.Exec(`
		INSERT INTO nonce (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, n.name, value); err != nil {
		return 0, fmt.Errorf("sqlite nonce write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite nonce commit: %w", err)
	}
	return value, nil
}
