package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nspcc-dev/peerreview-contract/fhe"
	"go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	metaBucket    = []byte("meta")

	lastBlockKey = []byte("last_block")
)

// Bolt is a Store kept in a single bbolt database file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens or creates database file at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Put implements Store.
func (b *Bolt) Put(h fhe.Handle, r fhe.Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Put(h[:], r.Marshal())
	})
}

// Get implements Store.
func (b *Bolt) Get(h fhe.Handle) (fhe.Record, error) {
	var res fhe.Record

	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(recordsBucket).Get(h[:])
		if data == nil {
			return ErrNotFound
		}
		// Unmarshal copies, data is valid within transaction only
		return res.Unmarshal(data)
	})

	return res, err
}

// Has implements Store.
func (b *Bolt) Has(h fhe.Handle) (bool, error) {
	var ok bool

	err := b.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(recordsBucket).Get(h[:]) != nil
		return nil
	})

	return ok, err
}

// LastBlock implements Store.
func (b *Bolt) LastBlock() (uint32, error) {
	var res uint32

	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metaBucket).Get(lastBlockKey)
		if data == nil {
			return ErrNotFound
		}
		if len(data) != 4 {
			return fmt.Errorf("invalid last block value length %d", len(data))
		}
		res = binary.LittleEndian.Uint32(data)
		return nil
	})

	return res, err
}

// SetLastBlock implements Store.
func (b *Bolt) SetLastBlock(index uint32) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(lastBlockKey, binary.LittleEndian.AppendUint32(nil, index))
	})
}

// Close implements Store.
func (b *Bolt) Close() error {
	return b.db.Close()
}
