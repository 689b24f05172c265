// Package store provides persistent storage of ciphertext records indexed
// by their handles.
package store

import (
	"errors"

	"github.com/nspcc-dev/peerreview-contract/fhe"
)

// ErrNotFound is returned when there is no record for the requested handle.
var ErrNotFound = errors.New("record not found")

// Store is a ciphertext record storage. Implementations are safe for
// concurrent use.
type Store interface {
	Put(fhe.Handle, fhe.Record) error
	Get(fhe.Handle) (fhe.Record, error)
	Has(fhe.Handle) (bool, error)

	// LastBlock returns index of the last block whose operations are
	// stored. ErrNotFound is returned if no block has been processed.
	LastBlock() (uint32, error)
	SetLastBlock(uint32) error

	Close() error
}
