package exmo

import "sync"

// NonceSource yields strictly increasing nonces for signed requests. The
// production implementation persists the counter (see store/sqlite) so a
// restart continues the sequence instead of replaying values the exchange
// has already seen.
type NonceSource interface {
	Next() (int64, error)
}

// MemoryNonce is an in-process NonceSource for tests and paper runs.
type MemoryNonce struct {
	mu   sync.Mutex
	last int64
}

// NewMemoryNonce starts the sequence after the given seed.
func NewMemoryNonce(seed int64) *MemoryNonce {
	return &MemoryNonce{last: seed}
}

func (m *MemoryNonce) Next() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last++
	return m.last, nil
}
