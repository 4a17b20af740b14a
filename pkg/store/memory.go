package store

import (
	"fmt"
	"sync"
)

// Memory is a map-backed Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) WriteTx() WriteTx {
	return &memoryTx{db: m, pending: make(map[string][]byte)}
}

func (m *Memory) Close() error { return nil }

type memoryTx struct {
	db *Memory
	// nil value marks a deletion
	pending map[string][]byte
	done    bool
}

func (tx *memoryTx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.pending[string(key)]; ok {
		if v == nil {
			return nil, ErrKeyNotFound
		}
		return append([]byte(nil), v...), nil
	}
	return tx.db.Get(key)
}

func (tx *memoryTx) Set(key, value []byte) error {
	if tx.done {
		return fmt.Errorf("cannot write to memory tx: already committed or discarded")
	}
	tx.pending[string(key)] = append([]byte{}, value...)
	return nil
}

func (tx *memoryTx) Delete(key []byte) error {
	if tx.done {
		return fmt.Errorf("cannot write to memory tx: already committed or discarded")
	}
	tx.pending[string(key)] = nil
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return fmt.Errorf("cannot commit memory tx: already committed or discarded")
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k, v := range tx.pending {
		if v == nil {
			delete(tx.db.data, k)
			continue
		}
		tx.db.data[k] = v
	}
	tx.done = true
	tx.pending = nil
	return nil
}

func (tx *memoryTx) Discard() {
	tx.done = true
	tx.pending = nil
}
