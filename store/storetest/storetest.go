// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package storetest contains behavior tests shared by every
// store.Store implementation.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/store"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// TestAll runs every shared test against a fresh store returned by
// open. Each subtest gets its own store.
func TestAll(t *testing.T, open func(t *testing.T) store.Store) {
	for _, test := range []struct {
		name string
		fn   func(ctx context.Context, t *testing.T, s store.Store)
	}{
		{"Documents", testDocuments},
		{"Transactions", testTransactions},
		{"CompleteAnchoring", testCompleteAnchoring},
		{"RawAnchoring", testRawAnchoring},
		{"BlockNumbers", testBlockNumbers},
		{"ConcurrentRecords", testConcurrentRecords},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			s := open(t)
			defer func() { assert.NoError(t, s.Close()) }()
			test.fn(context.Background(), t, s)
		})
	}
}

func testDocuments(ctx context.Context, t *testing.T, s store.Store) {
	_, err := s.Document(ctx, 1)
	expect.True(t, errors.Is(errors.NotExist, err))

	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 1, ProjectID: 7, Checksum: "ab", ContentRef: "cid"}))
	d, err := s.Document(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, d.ProjectID, int64(7))
	expect.EQ(t, d.Status, store.StatusPending)
	expect.False(t, d.Encrypted())

	assert.NoError(t, s.SetStatus(ctx, 1, store.StatusSubmitted))
	assert.NoError(t, s.SetRecoveredRef(ctx, 1, "recovered/1.bin"))
	d, err = s.Document(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, d.Status, store.StatusSubmitted)
	expect.EQ(t, d.RecoveredRef, "recovered/1.bin")

	expect.True(t, errors.Is(errors.Invalid, s.SetStatus(ctx, 1, "archived")))
	expect.True(t, errors.Is(errors.NotExist, s.SetStatus(ctx, 2, store.StatusApproved)))
	expect.True(t, errors.Is(errors.NotExist, s.SetRecoveredRef(ctx, 2, "x")))

	// Replacing descriptive fields keeps everything else.
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 1, ProjectID: 8, Status: store.StatusApproved}))
	d, err = s.Document(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, d.ProjectID, int64(8))
	expect.EQ(t, d.RecoveredRef, "recovered/1.bin")
}

func testTransactions(ctx context.Context, t *testing.T, s store.Store) {
	_, err := s.RecordTransaction(ctx, store.Transaction{DocumentID: 1, TxHash: "0x01"})
	expect.True(t, errors.Is(errors.NotExist, err))

	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 1}))
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 2}))
	var ids []int64
	for i, hash := range []string{"0x01", "0x02", "0x03"} {
		doc := int64(1 + i%2)
		tx, err := s.RecordTransaction(ctx, store.Transaction{DocumentID: doc, Method: "addEncryptedChunks", TxHash: hash, BatchID: "b1"})
		assert.NoError(t, err)
		expect.True(t, tx.ID > 0)
		expect.False(t, tx.CreatedAt.IsZero())
		expect.False(t, tx.Mined())
		ids = append(ids, tx.ID)
	}
	expect.True(t, ids[0] < ids[1] && ids[1] < ids[2])

	txs, err := s.Transactions(ctx, 1)
	assert.NoError(t, err)
	assert.EQ(t, len(txs), 2)
	expect.EQ(t, txs[0].TxHash, "0x01")
	expect.EQ(t, txs[1].TxHash, "0x03")
	expect.EQ(t, txs[0].BatchID, "b1")
	expect.EQ(t, txs[0].Method, "addEncryptedChunks")

	txs, err = s.Transactions(ctx, 3)
	assert.NoError(t, err)
	expect.EQ(t, len(txs), 0)
}

func testCompleteAnchoring(ctx context.Context, t *testing.T, s store.Store) {
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 1}))
	m := encryption.KeyMaterial{Scheme: encryption.DeriveScheme, KeyVersion: 2, Salt: []byte("0123456789abcdef")}
	a := store.Anchoring{Material: &m, ChunkSize: 1024}

	tx, err := s.CompleteAnchoring(ctx, 1, a, store.Transaction{TxHash: "0xaa", Method: "addEncryptedChunks"})
	assert.NoError(t, err)
	expect.EQ(t, tx.DocumentID, int64(1))
	d, err := s.Document(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, d.EncScheme, encryption.DeriveScheme)
	expect.EQ(t, d.KeyVersion, 2)
	expect.EQ(t, d.ChunkSize, 1024)
	expect.EQ(t, d.WrappedKey, "")
	got, err := d.Material()
	assert.NoError(t, err)
	expect.EQ(t, got.Salt, m.Salt)

	// Write-once: neither the metadata nor the transaction are applied.
	m2 := encryption.KeyMaterial{Scheme: encryption.WrapScheme, KeyVersion: 1, WrappedKey: make([]byte, 40)}
	_, err = s.CompleteAnchoring(ctx, 1, store.Anchoring{Material: &m2, ChunkSize: 10}, store.Transaction{TxHash: "0xbb"})
	expect.True(t, errors.Is(errors.Conflict, err))
	d, err = s.Document(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, d.EncScheme, encryption.DeriveScheme)
	txs, err := s.Transactions(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, len(txs), 1)

	// Metadata that breaks the exactly-one rule is rejected.
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 2}))
	bad := encryption.KeyMaterial{Scheme: encryption.WrapScheme, KeyVersion: 1, WrappedKey: make([]byte, 40), Salt: make([]byte, 16)}
	_, err = s.CompleteAnchoring(ctx, 2, store.Anchoring{Material: &bad, ChunkSize: 10}, store.Transaction{TxHash: "0xcc"})
	expect.True(t, err != nil)
	d, err = s.Document(ctx, 2)
	assert.NoError(t, err)
	expect.False(t, d.Encrypted())

	_, err = s.CompleteAnchoring(ctx, 3, a, store.Transaction{TxHash: "0xdd"})
	expect.True(t, errors.Is(errors.NotExist, err))
}

func testRawAnchoring(ctx context.Context, t *testing.T, s store.Store) {
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 5}))
	_, err := s.CompleteAnchoring(ctx, 5, store.Anchoring{ChunkSize: 512}, store.Transaction{TxHash: "0x05"})
	assert.NoError(t, err)
	d, err := s.Document(ctx, 5)
	assert.NoError(t, err)
	expect.EQ(t, d.ChunkSize, 512)
	expect.False(t, d.Encrypted())
	_, err = d.Material()
	expect.True(t, errors.Is(errors.Precondition, err))
}

func testBlockNumbers(ctx context.Context, t *testing.T, s store.Store) {
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 1}))
	a, err := s.RecordTransaction(ctx, store.Transaction{DocumentID: 1, TxHash: "0x01"})
	assert.NoError(t, err)
	b, err := s.RecordTransaction(ctx, store.Transaction{DocumentID: 1, TxHash: "0x02"})
	assert.NoError(t, err)

	pending, err := s.PendingTransactions(ctx)
	assert.NoError(t, err)
	expect.EQ(t, len(pending), 2)

	assert.NoError(t, s.SetBlockNumber(ctx, a.ID, 17))
	assert.NoError(t, s.SetBlockNumber(ctx, a.ID, 17))
	expect.True(t, errors.Is(errors.Conflict, s.SetBlockNumber(ctx, a.ID, 18)))
	expect.True(t, errors.Is(errors.NotExist, s.SetBlockNumber(ctx, b.ID+100, 1)))

	pending, err = s.PendingTransactions(ctx)
	assert.NoError(t, err)
	assert.EQ(t, len(pending), 1)
	expect.EQ(t, pending[0].ID, b.ID)

	txs, err := s.Transactions(ctx, 1)
	assert.NoError(t, err)
	assert.EQ(t, len(txs), 2)
	assert.True(t, txs[0].Mined())
	expect.EQ(t, *txs[0].BlockNumber, int64(17))
}

func testConcurrentRecords(ctx context.Context, t *testing.T, s store.Store) {
	assert.NoError(t, s.PutDocument(ctx, store.Document{ID: 1}))
	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.RecordTransaction(ctx, store.Transaction{DocumentID: 1, TxHash: string(rune('a'+i)) + "-hash"})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		expect.NoError(t, err)
	}
	txs, err := s.Transactions(ctx, 1)
	assert.NoError(t, err)
	expect.EQ(t, len(txs), n)
	seen := make(map[int64]bool)
	for _, tx := range txs {
		expect.False(t, seen[tx.ID])
		seen[tx.ID] = true
	}
}
