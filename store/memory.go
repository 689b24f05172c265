package store

import (
	"sync"

	"github.com/nspcc-dev/peerreview-contract/fhe"
)

// Memory is an in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	records map[fhe.Handle]fhe.Record

	lastBlock *uint32
}

// NewMemory creates empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[fhe.Handle]fhe.Record)}
}

// Put implements Store.
func (m *Memory) Put(h fhe.Handle, r fhe.Record) error {
	m.mu.Lock()
	m.records[h] = fhe.Record{
		Ciphertext: append([]byte(nil), r.Ciphertext...),
		Divisor:    r.Divisor,
	}
	m.mu.Unlock()
	return nil
}

// Get implements Store.
func (m *Memory) Get(h fhe.Handle) (fhe.Record, error) {
	m.mu.RLock()
	r, ok := m.records[h]
	m.mu.RUnlock()
	if !ok {
		return fhe.Record{}, ErrNotFound
	}
	return r, nil
}

// Has implements Store.
func (m *Memory) Has(h fhe.Handle) (bool, error) {
	m.mu.RLock()
	_, ok := m.records[h]
	m.mu.RUnlock()
	return ok, nil
}

// LastBlock implements Store.
func (m *Memory) LastBlock() (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastBlock == nil {
		return 0, ErrNotFound
	}
	return *m.lastBlock, nil
}

// SetLastBlock implements Store.
func (m *Memory) SetLastBlock(index uint32) error {
	m.mu.Lock()
	m.lastBlock = &index
	m.mu.Unlock()
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
