package store

import (
	"fmt"
	"io"
)

const (
	TypeMemory = "memory"
	TypePebble = "pebble"
)

// ErrKeyNotFound is used to indicate that a key does not exist in the store.
var ErrKeyNotFound = fmt.Errorf("key not found")

// Reader contains the read-only store operations.
type Reader interface {
	// Get retrieves the value for the given key. If the key does not exist,
	// returns ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
}

// WriteTx stages writes until Commit. Reads through a WriteTx observe its own staged
// writes. Discard may be called after Commit, which makes it safe to defer.
type WriteTx interface {
	Reader

	// Set adds a key-value pair. If the key already exists, its value is updated.
	Set(key []byte, value []byte) error
	// Delete deletes a key and its value.
	Delete(key []byte) error
	// Commit atomically applies every staged write.
	Commit() error
	// Discard drops every staged write.
	Discard()
}

// Store wraps the faucet state storage. All methods are safe for concurrent use, but
// write transactions are not isolated from each other: callers serialize them.
type Store interface {
	io.Closer
	Reader

	// WriteTx creates a new write transaction.
	WriteTx() WriteTx
}

// Options defines generic parameters for opening a Store.
type Options struct {
	Type string
	Path string
}

// Open returns the store selected by opts.Type.
func Open(opts Options) (Store, error) {
	switch opts.Type {
	case "", TypeMemory:
		return NewMemory(), nil
	case TypePebble:
		return NewPebble(opts.Path)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", opts.Type)
	}
}
