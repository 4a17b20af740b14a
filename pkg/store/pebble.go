package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// Pebble is a Store persisted with pebble.
type Pebble struct {
	db *pebble.DB
}

var _ Store = (*Pebble)(nil)

// NewPebble opens (or creates) a pebble database under path.
func NewPebble(path string) (*Pebble, error) {
	if path == "" {
		return nil, fmt.Errorf("pebble store requires a path")
	}
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", path, err)
	}
	o := &pebble.Options{
		Levels: []pebble.LevelOptions{
			{
				Compression: pebble.SnappyCompression,
			},
		},
	}
	db, err := pebble.Open(path, o)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

func get(reader pebble.Reader, k []byte) ([]byte, error) {
	v, closer, err := reader.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	// The returned slice is only valid until Close is called.
	v2 := make([]byte, len(v))
	copy(v2, v)

	if err := closer.Close(); err != nil {
		return nil, err
	}
	return v2, nil
}

func (p *Pebble) Get(k []byte) ([]byte, error) {
	return get(p.db, k)
}

func (p *Pebble) WriteTx() WriteTx {
	return &pebbleTx{batch: p.db.NewIndexedBatch()}
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleTx struct {
	batch *pebble.Batch
}

func (tx *pebbleTx) Get(k []byte) ([]byte, error) {
	if tx.batch == nil {
		return nil, fmt.Errorf("cannot read pebble tx: already committed or discarded")
	}
	return get(tx.batch, k)
}

func (tx *pebbleTx) Set(k, v []byte) error {
	if tx.batch == nil {
		return fmt.Errorf("cannot write pebble tx: already committed or discarded")
	}
	return tx.batch.Set(k, v, nil)
}

func (tx *pebbleTx) Delete(k []byte) error {
	if tx.batch == nil {
		return fmt.Errorf("cannot write pebble tx: already committed or discarded")
	}
	return tx.batch.Delete(k, nil)
}

func (tx *pebbleTx) Commit() error {
	if tx.batch == nil {
		return fmt.Errorf("cannot commit pebble tx: already committed or discarded")
	}
	err := tx.batch.Commit(pebble.Sync)
	tx.batch.Close()
	tx.batch = nil
	return err
}

func (tx *pebbleTx) Discard() {
	if tx.batch == nil {
		// discarding after commit is allowed so callers can defer it
		return
	}
	tx.batch.Close()
	tx.batch = nil
}
