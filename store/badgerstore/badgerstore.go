// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package badgerstore implements store.Store on an embedded Badger
// database. Documents and transactions are stored as JSON values under
// the "doc/" and "tx/" key prefixes; keys embed zero-padded ids so that
// iteration order is id order.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/retry"
	"github.com/esims/chainvault/store"
)

var (
	txPrefix = []byte("tx/")
	txSeqKey = []byte("seq/tx")
)

// conflictPolicy governs retries of transactions that lose a write
// conflict to a concurrent update.
var conflictPolicy = retry.MaxRetries(retry.Backoff(time.Millisecond, 50*time.Millisecond, 2), 10)

func docKey(id int64) []byte { return []byte(fmt.Sprintf("doc/%020d", id)) }
func txKey(id int64) []byte  { return []byte(fmt.Sprintf("tx/%020d", id)) }

// Store is a store.Store backed by Badger.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens, creating if necessary, the database in directory path.
// An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.E(errors.Unavailable, "opening badger store", path, err)
	}
	seq, err := db.GetSequence(txSeqKey, 64)
	if err != nil {
		_ = db.Close()
		return nil, errors.E("allocating transaction sequence", err)
	}
	return &Store{db: db, seq: seq, now: time.Now}, nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for retries := 0; ; retries++ {
		err := s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
		if werr := retry.Wait(ctx, conflictPolicy, retries); werr != nil {
			return errors.E(errors.Unavailable, "badger write conflict", werr)
		}
	}
}

func get(txn *badger.Txn, key []byte, v interface{}) (bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(b []byte) error { return json.Unmarshal(b, v) })
}

func set(txn *badger.Txn, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func getDocument(txn *badger.Txn, id int64) (store.Document, error) {
	var d store.Document
	ok, err := get(txn, docKey(id), &d)
	if err != nil {
		return d, err
	}
	if !ok {
		return d, store.NoDocument(id)
	}
	return d, nil
}

// Document implements store.Store.
func (s *Store) Document(_ context.Context, id int64) (store.Document, error) {
	var d store.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		d, err = getDocument(txn, id)
		return err
	})
	return d, err
}

// PutDocument implements store.Store.
func (s *Store) PutDocument(ctx context.Context, d store.Document) error {
	if d.Status == "" {
		d.Status = store.StatusPending
	}
	if err := store.CheckStatus(d.Status); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		var old store.Document
		ok, err := get(txn, docKey(d.ID), &old)
		if err != nil {
			return err
		}
		next := d
		next.EncScheme, next.KeyVersion, next.WrappedKey, next.KDFSalt = "", 0, "", ""
		next.ChunkSize, next.RecoveredRef = 0, ""
		if ok {
			next.EncScheme, next.KeyVersion, next.WrappedKey, next.KDFSalt = old.EncScheme, old.KeyVersion, old.WrappedKey, old.KDFSalt
			next.ChunkSize, next.RecoveredRef = old.ChunkSize, old.RecoveredRef
		}
		return set(txn, docKey(d.ID), next)
	})
}

func (s *Store) updateDocument(ctx context.Context, id int64, fn func(d *store.Document)) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		d, err := getDocument(txn, id)
		if err != nil {
			return err
		}
		fn(&d)
		return set(txn, docKey(id), d)
	})
}

// SetStatus implements store.Store.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	if err := store.CheckStatus(status); err != nil {
		return err
	}
	return s.updateDocument(ctx, id, func(d *store.Document) { d.Status = status })
}

// SetRecoveredRef implements store.Store.
func (s *Store) SetRecoveredRef(ctx context.Context, id int64, ref string) error {
	return s.updateDocument(ctx, id, func(d *store.Document) { d.RecoveredRef = ref })
}

func (s *Store) newTransaction(t store.Transaction) (store.Transaction, error) {
	n, err := s.seq.Next()
	if err != nil {
		return t, errors.E("allocating transaction id", err)
	}
	now := s.now().UTC()
	t.ID = int64(n) + 1
	t.CreatedAt, t.UpdatedAt = now, now
	return t, nil
}

// RecordTransaction implements store.Store.
func (s *Store) RecordTransaction(ctx context.Context, t store.Transaction) (store.Transaction, error) {
	t, err := s.newTransaction(t)
	if err != nil {
		return store.Transaction{}, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := getDocument(txn, t.DocumentID); err != nil {
			return err
		}
		return set(txn, txKey(t.ID), t)
	})
	if err != nil {
		return store.Transaction{}, err
	}
	return t, nil
}

// CompleteAnchoring implements store.Store.
func (s *Store) CompleteAnchoring(ctx context.Context, docID int64, a store.Anchoring, t store.Transaction) (store.Transaction, error) {
	t.DocumentID = docID
	t, err := s.newTransaction(t)
	if err != nil {
		return store.Transaction{}, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		d, err := getDocument(txn, docID)
		if err != nil {
			return err
		}
		if d, err = a.Apply(d); err != nil {
			return err
		}
		if err := set(txn, docKey(docID), d); err != nil {
			return err
		}
		return set(txn, txKey(t.ID), t)
	})
	if err != nil {
		return store.Transaction{}, err
	}
	return t, nil
}

// SetBlockNumber implements store.Store.
func (s *Store) SetBlockNumber(ctx context.Context, txID int64, block int64) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var t store.Transaction
		ok, err := get(txn, txKey(txID), &t)
		if err != nil {
			return err
		}
		if !ok {
			return store.NoTransaction(txID)
		}
		if t.BlockNumber != nil {
			if *t.BlockNumber != block {
				return store.BlockConflict(txID, *t.BlockNumber, block)
			}
			return nil
		}
		t.BlockNumber = &block
		t.UpdatedAt = s.now().UTC()
		return set(txn, txKey(txID), t)
	})
}

func (s *Store) scan(keep func(store.Transaction) bool) ([]store.Transaction, error) {
	var out []store.Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = txPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var t store.Transaction
			if err := it.Item().Value(func(b []byte) error { return json.Unmarshal(b, &t) }); err != nil {
				return err
			}
			if keep(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

// Transactions implements store.Store.
func (s *Store) Transactions(_ context.Context, docID int64) ([]store.Transaction, error) {
	return s.scan(func(t store.Transaction) bool { return t.DocumentID == docID })
}

// PendingTransactions implements store.Store.
func (s *Store) PendingTransactions(context.Context) ([]store.Transaction, error) {
	return s.scan(func(t store.Transaction) bool { return t.BlockNumber == nil })
}

// Close implements store.Store.
func (s *Store) Close() error {
	err := s.seq.Release()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
