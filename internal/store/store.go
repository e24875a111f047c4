// Package store wraps bbolt as the embedded ordered key-value store the
// index lives in. The schema (SPEC_FULL.md §3) only ever needs point
// get/put/delete, so a single bucket is enough — the tag byte already
// disambiguates key families.
package store

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

var bucketName = []byte("index")

// Store is the embedded key-value store backing the UTXO index.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w: %w", errs.ErrStorageError, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w: %w", errs.ErrStorageError, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or nil if absent. The returned slice is a
// copy and safe to retain past the call.
func (s *Store) Get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get: %w: %w", errs.ErrStorageError, err)
	}
	return out, nil
}

// Put writes key=value.
func (s *Store) Put(key, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("put: %w: %w", errs.ErrStorageError, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete: %w: %w", errs.ErrStorageError, err)
	}
	return nil
}

// Tx is a single read-write bbolt transaction, scoped to the index bucket.
// The block applier runs an entire block's mutations inside one Tx so that
// Exec/Undo either fully apply or (on error) leave whatever partial state
// bbolt's own transaction semantics produced — see SPEC_FULL.md §7 on
// failure semantics: a failed block is fatal, not auto-rolled-back by the
// caller's retry logic.
type Tx struct {
	b *bbolt.Bucket
}

func (t *Tx) Get(key []byte) ([]byte, error) {
	v := t.b.Get(key)
	if v == nil {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *Tx) Put(key, value []byte) error {
	return t.b.Put(key, value)
}

func (t *Tx) Delete(key []byte) error {
	return t.b.Delete(key)
}

// Update runs fn inside a single read-write transaction over the index bucket.
func (s *Store) Update(fn func(*Tx) error) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Tx{b: tx.Bucket(bucketName)})
	})
	if err != nil {
		return fmt.Errorf("update: %w: %w", errs.ErrStorageError, err)
	}
	return nil
}

// View runs fn inside a single read-only transaction over the index bucket.
func (s *Store) View(fn func(*Tx) error) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		return fn(&Tx{b: tx.Bucket(bucketName)})
	})
	if err != nil {
		return fmt.Errorf("view: %w: %w", errs.ErrStorageError, err)
	}
	return nil
}
