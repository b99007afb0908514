// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package memstore implements an in-memory store.Store. It is used in
// tests and for dry runs; nothing survives the process.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/esims/chainvault/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu   sync.Mutex
	docs map[int64]store.Document
	txs  []store.Transaction
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[int64]store.Document), now: time.Now}
}

// Document implements store.Store.
func (s *Store) Document(_ context.Context, id int64) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return store.Document{}, store.NoDocument(id)
	}
	return d, nil
}

// PutDocument implements store.Store.
func (s *Store) PutDocument(_ context.Context, d store.Document) error {
	if d.Status == "" {
		d.Status = store.StatusPending
	}
	if err := store.CheckStatus(d.Status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.docs[d.ID]; ok {
		d.EncScheme, d.KeyVersion, d.WrappedKey, d.KDFSalt = old.EncScheme, old.KeyVersion, old.WrappedKey, old.KDFSalt
		d.ChunkSize, d.RecoveredRef = old.ChunkSize, old.RecoveredRef
	} else {
		d.EncScheme, d.KeyVersion, d.WrappedKey, d.KDFSalt = "", 0, "", ""
		d.ChunkSize, d.RecoveredRef = 0, ""
	}
	s.docs[d.ID] = d
	return nil
}

func (s *Store) update(id int64, fn func(d *store.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return store.NoDocument(id)
	}
	fn(&d)
	s.docs[id] = d
	return nil
}

// SetStatus implements store.Store.
func (s *Store) SetStatus(_ context.Context, id int64, status string) error {
	if err := store.CheckStatus(status); err != nil {
		return err
	}
	return s.update(id, func(d *store.Document) { d.Status = status })
}

// SetRecoveredRef implements store.Store.
func (s *Store) SetRecoveredRef(_ context.Context, id int64, ref string) error {
	return s.update(id, func(d *store.Document) { d.RecoveredRef = ref })
}

// appendLocked requires s.mu.
func (s *Store) appendLocked(t store.Transaction) store.Transaction {
	now := s.now()
	t.ID = int64(len(s.txs) + 1)
	t.CreatedAt, t.UpdatedAt = now, now
	if t.BlockNumber != nil {
		b := *t.BlockNumber
		t.BlockNumber = &b
	}
	s.txs = append(s.txs, t)
	return t
}

// RecordTransaction implements store.Store.
func (s *Store) RecordTransaction(_ context.Context, t store.Transaction) (store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[t.DocumentID]; !ok {
		return store.Transaction{}, store.NoDocument(t.DocumentID)
	}
	return s.appendLocked(t), nil
}

// CompleteAnchoring implements store.Store.
func (s *Store) CompleteAnchoring(_ context.Context, docID int64, a store.Anchoring, t store.Transaction) (store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[docID]
	if !ok {
		return store.Transaction{}, store.NoDocument(docID)
	}
	d, err := a.Apply(d)
	if err != nil {
		return store.Transaction{}, err
	}
	t.DocumentID = docID
	s.docs[docID] = d
	return s.appendLocked(t), nil
}

// SetBlockNumber implements store.Store.
func (s *Store) SetBlockNumber(_ context.Context, txID int64, block int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txID < 1 || txID > int64(len(s.txs)) {
		return store.NoTransaction(txID)
	}
	t := &s.txs[txID-1]
	if t.BlockNumber != nil {
		if *t.BlockNumber != block {
			return store.BlockConflict(txID, *t.BlockNumber, block)
		}
		return nil
	}
	t.BlockNumber = &block
	t.UpdatedAt = s.now()
	return nil
}

func (s *Store) filter(keep func(store.Transaction) bool) []store.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Transaction
	for _, t := range s.txs {
		if !keep(t) {
			continue
		}
		if t.BlockNumber != nil {
			b := *t.BlockNumber
			t.BlockNumber = &b
		}
		out = append(out, t)
	}
	return out
}

// Transactions implements store.Store.
func (s *Store) Transactions(_ context.Context, docID int64) ([]store.Transaction, error) {
	return s.filter(func(t store.Transaction) bool { return t.DocumentID == docID }), nil
}

// PendingTransactions implements store.Store.
func (s *Store) PendingTransactions(context.Context) ([]store.Transaction, error) {
	return s.filter(func(t store.Transaction) bool { return t.BlockNumber == nil }), nil
}

// Close implements store.Store.
func (*Store) Close() error { return nil }
