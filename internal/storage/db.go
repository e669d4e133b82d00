// Package storage provides the key-value layer wallet records are kept in.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch groups writes that must land together. Nothing is visible to
// readers until Commit returns nil.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that can commit a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// batchOp is one buffered write. A nil value means delete.
type batchOp struct {
	key   []byte
	value []byte
}

func newBatchOp(key, value []byte, del bool) batchOp {
	k := make([]byte, len(key))
	copy(k, key)
	if del {
		return batchOp{key: k}
	}
	v := make([]byte, len(value))
	copy(v, value)
	return batchOp{key: k, value: v}
}
