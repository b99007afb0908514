// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package anchor_test

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/esims/chainvault/anchor"
	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/chain/chaintest"
	"github.com/esims/chainvault/contract"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/digest"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/store/memstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	b      *chaintest.Backend
	g      *contract.Gateway
	st     *memstore.Store
	master encryption.MasterKey
}

func newEnv(t *testing.T, receiptTimeout time.Duration) *env {
	b := chaintest.New()
	a, err := contract.ParseABI(contract.DefaultABI)
	require.NoError(t, err)
	g := contract.New(b.Client(t, chain.Options{ReceiptTimeout: receiptTimeout}), a)
	master, err := encryption.NewMasterKey(1, bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	st := memstore.New()
	require.NoError(t, st.PutDocument(context.Background(), store.Document{ID: 1, ProjectID: 9, ContentRef: "bafy-doc-1"}))
	return &env{b: b, g: g, st: st, master: master}
}

func (e *env) anchorer(opts anchor.Options) *anchor.Anchorer {
	return anchor.New(e.g, e.st, &e.master, opts, nil, nil)
}

func content(n int) []byte {
	p := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(p)
	return p
}

func TestAnchor(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	plaintext := content(50000)

	res, err := e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, plaintext)
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, 3, res.ChunkCount)
	assert.Equal(t, 3, res.ChunksAnchored)
	assert.Len(t, res.TxHashes, 3)
	assert.Equal(t, anchor.RegistrationSubmitted, res.Registration.State)
	assert.NotEmpty(t, res.BatchID)

	assert.Equal(t, []string{
		contract.MethodRecordSubmission,
		contract.MethodAddEncryptedChunks,
		contract.MethodAddEncryptedChunks,
		contract.MethodAddEncryptedChunks,
	}, e.b.Methods())
	for i, s := range e.b.Sent() {
		assert.Equal(t, uint64(i), s.Nonce)
		assert.False(t, s.Reverted)
	}
	var sizes []int
	for _, p := range e.b.EncryptedChunks(1) {
		sizes = append(sizes, len(p)-encryption.MinPayloadSize)
	}
	assert.Equal(t, []int{24576, 24576, 848}, sizes)

	txs, err := e.st.Transactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	for i, tx := range txs {
		assert.Equal(t, res.BatchID, tx.BatchID)
		require.True(t, tx.Mined(), "tx %d", i)
		assert.Equal(t, int64(i+1), *tx.BlockNumber)
	}
	assert.Equal(t, res.TxHashes, []string{txs[1].TxHash, txs[2].TxHash, txs[3].TxHash})

	d, err := e.st.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, encryption.WrapScheme, d.EncScheme)
	assert.Equal(t, 1, d.KeyVersion)
	assert.Equal(t, 24576, d.ChunkSize)
	assert.NotEmpty(t, d.WrappedKey)
	assert.Empty(t, d.KDFSalt)
	assert.Equal(t, digest.FromBytes(plaintext).Hex(), d.Checksum)
	assert.Equal(t, store.StatusSubmitted, d.Status)

	rec, err := e.g.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.Exists())
}

func TestAnchorDeriveScheme(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	opts := anchor.DefaultOptions()
	opts.Scheme = encryption.DeriveScheme
	opts.MaxPerTx = 2
	opts.ChunkSize = 1000
	res, err := e.anchorer(opts).Anchor(ctx, 1, content(4500))
	require.NoError(t, err)
	assert.Equal(t, 5, res.ChunkCount)
	assert.Len(t, res.TxHashes, 3)
	assert.Len(t, e.b.EncryptedChunks(1), 5)

	d, err := e.st.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, encryption.DeriveScheme, d.EncScheme)
	assert.Empty(t, d.WrappedKey)
	assert.NotEmpty(t, d.KDFSalt)
}

func TestAnchorTwice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	a := e.anchorer(anchor.DefaultOptions())
	_, err := a.Anchor(ctx, 1, content(100))
	require.NoError(t, err)
	sent := len(e.b.Sent())

	res, err := a.Anchor(ctx, 1, content(100))
	assert.True(t, errors.Is(errors.Conflict, err), "got %v", err)
	assert.Empty(t, res.TxHashes)
	assert.Len(t, e.b.Sent(), sent)

	// The ledger guard holds even when the local metadata is missing.
	require.NoError(t, e.st.PutDocument(ctx, store.Document{ID: 2}))
	e.b.SetEncryptedChunk(2, 0, make([]byte, 40))
	_, err = a.Anchor(ctx, 2, content(100))
	assert.True(t, errors.Is(errors.Conflict, err), "got %v", err)
	assert.Len(t, e.b.Sent(), sent)
}

// racedStore completes a rival anchoring of the same document just
// before the run's own final batch is recorded.
type racedStore struct {
	*memstore.Store
	rival encryption.KeyMaterial
}

func (s *racedStore) CompleteAnchoring(ctx context.Context, docID int64, a store.Anchoring, t store.Transaction) (store.Transaction, error) {
	rival := store.Transaction{DocumentID: docID, Method: t.Method, TxHash: common.HexToHash("0xr1").Hex()}
	if _, err := s.Store.CompleteAnchoring(ctx, docID, store.Anchoring{Material: &s.rival, ChunkSize: a.ChunkSize}, rival); err != nil {
		return store.Transaction{}, err
	}
	return s.Store.CompleteAnchoring(ctx, docID, a, t)
}

func TestAnchorConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	scheme, err := encryption.Lookup(encryption.WrapScheme)
	require.NoError(t, err)
	_, rival, err := scheme.NewDataKey(e.master)
	require.NoError(t, err)
	st := &racedStore{Store: e.st, rival: rival}

	res, err := anchor.New(e.g, st, &e.master, anchor.DefaultOptions(), nil, nil).Anchor(ctx, 1, content(50000))
	assert.True(t, errors.Is(errors.Conflict, err), "got %v", err)
	assert.Contains(t, err.Error(), "batch 3 of 3")
	require.Len(t, res.TxHashes, 3)

	txs, err := e.st.Transactions(ctx, 1)
	require.NoError(t, err)
	recorded := make(map[string]bool)
	for _, tx := range txs {
		recorded[tx.TxHash] = true
	}
	for _, s := range e.b.Sent() {
		assert.True(t, recorded[s.Hash.Hex()], "broadcast %s %s not recorded", s.Method, s.Hash.Hex())
	}
	assert.Equal(t, e.b.Sent()[3].Hash.Hex(), res.TxHashes[2])
}

func TestAnchorRegistered(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	e.b.SetRecord(1, common.HexToAddress("0x1234"), contract.StatusSubmitted)
	_, err := e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, content(100))
	assert.True(t, errors.Is(errors.Conflict, err))
	assert.Empty(t, e.b.Sent())

	// A zeroed submitter is no record.
	e.b.SetRecord(1, common.Address{}, contract.StatusApproved)
	_, err = e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, content(100))
	assert.NoError(t, err)
}

func TestAnchorPartialFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	var adds int
	e.b.SendErr = func(method string, _ *types.Transaction) error {
		if method != contract.MethodAddEncryptedChunks {
			return nil
		}
		if adds++; adds == 2 {
			return fmt.Errorf("connection reset by peer")
		}
		return nil
	}
	opts := anchor.DefaultOptions()
	opts.ChunkSize = 100
	res, err := e.anchorer(opts).Anchor(ctx, 1, content(250))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.ChainUnavailable, err), "got %v", err)
	assert.Contains(t, err.Error(), "batch 2 of 3")
	assert.Equal(t, 3, res.ChunkCount)
	assert.Equal(t, 1, res.ChunksAnchored)
	assert.Len(t, res.TxHashes, 1)
	assert.False(t, res.Complete())

	// The partial trail is recorded; the metadata is not.
	txs, err := e.st.Transactions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	d, err := e.st.Document(ctx, 1)
	require.NoError(t, err)
	assert.False(t, d.Encrypted())
	assert.Equal(t, 2, adds, "no retry after the failure")
	assert.Len(t, e.b.EncryptedChunks(1), 1)
}

func TestRegistrationFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	e.b.SendErr = func(method string, _ *types.Transaction) error {
		if method == contract.MethodRecordSubmission {
			return fmt.Errorf("nonce too low")
		}
		return nil
	}
	res, err := e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, content(100))
	require.NoError(t, err)
	assert.Equal(t, anchor.RegistrationFailed, res.Registration.State)
	assert.Error(t, res.Registration.Err)
	assert.Equal(t, []string{contract.MethodAddEncryptedChunks}, e.b.Methods())
	d, err := e.st.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, d.Status)
	assert.Equal(t, "failed", res.Registration.State.String())

	opts := anchor.DefaultOptions()
	opts.Register = false
	require.NoError(t, e.st.PutDocument(ctx, store.Document{ID: 2}))
	res, err = e.anchorer(opts).Anchor(ctx, 2, content(100))
	require.NoError(t, err)
	assert.Equal(t, anchor.RegistrationDisabled, res.Registration.State)
	assert.Equal(t, "disabled", res.Registration.State.String())
	assert.Empty(t, res.Registration.TxHash)
}

func TestAnchorPreconditions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)

	_, err := anchor.New(e.g, e.st, nil, anchor.DefaultOptions(), nil, nil).Anchor(ctx, 1, content(10))
	assert.True(t, errors.Is(errors.NotConfigured, err))

	_, err = e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, nil)
	assert.True(t, errors.Is(errors.Invalid, err))

	_, err = e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 404, content(10))
	assert.True(t, errors.Is(errors.NotExist, err))

	opts := anchor.DefaultOptions()
	opts.MaxPerTx = 0
	_, err = e.anchorer(opts).Anchor(ctx, 1, content(10))
	assert.True(t, errors.Is(errors.Invalid, err))

	opts = anchor.DefaultOptions()
	opts.Scheme = "rot13"
	_, err = e.anchorer(opts).Anchor(ctx, 1, content(10))
	assert.Error(t, err)

	require.NoError(t, e.st.PutDocument(ctx, store.Document{ID: 1, Checksum: digest.FromBytes([]byte("other")).Hex()}))
	_, err = e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, content(10))
	assert.True(t, errors.Is(errors.Integrity, err))

	assert.Empty(t, e.b.Sent())
}

func TestAnchorRaw(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	opts := anchor.DefaultOptions()
	opts.ChunkSize = 10
	opts.MaxPerTx = 2
	opts.Register = false
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	res, err := anchor.New(e.g, e.st, nil, opts, nil, nil).AnchorRaw(ctx, 1, plaintext)
	require.NoError(t, err)
	assert.Equal(t, 5, res.ChunkCount)
	assert.Equal(t, anchor.RegistrationDisabled, res.Registration.State)
	assert.Equal(t, []string{
		contract.MethodAddFileChunks,
		contract.MethodAddFileChunks,
		contract.MethodAddFileChunk,
	}, e.b.Methods())
	assert.Equal(t, plaintext, bytes.Join(e.b.RawChunks(1), nil))

	d, err := e.st.Document(ctx, 1)
	require.NoError(t, err)
	assert.False(t, d.Encrypted())
	assert.Equal(t, 10, d.ChunkSize)

	_, err = anchor.New(e.g, e.st, nil, opts, nil, nil).AnchorRaw(ctx, 1, plaintext)
	assert.True(t, errors.Is(errors.Conflict, err))
}

func TestAnchorHash(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	opts := anchor.DefaultOptions()
	opts.AnchorHash = true
	plaintext := content(10)
	res, err := e.anchorer(opts).Anchor(ctx, 1, plaintext)
	require.NoError(t, err)
	assert.Len(t, res.TxHashes, 2)
	hashes := e.b.FileHashes(1)
	require.Len(t, hashes, 1)
	assert.Equal(t, [32]byte(digest.FromBytes(plaintext)), hashes[0])
}

func TestAnchorReceiptTimeout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 50*time.Millisecond)
	e.b.HideReceipts = true
	res, err := e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, content(30000))
	require.NoError(t, err)
	assert.True(t, res.Complete())
	pending, err := e.st.PendingTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	d, err := e.st.Document(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.Encrypted())
}

func TestAnchorGasFallback(t *testing.T) {
	ctx := context.Background()

	// Small chunks fit in the fallback gas limit.
	e := newEnv(t, time.Second)
	e.b.FailEstimate = true
	opts := anchor.DefaultOptions()
	opts.ChunkSize = 1024
	_, err := e.anchorer(opts).Anchor(ctx, 1, content(3000))
	require.NoError(t, err)
	for _, s := range e.b.Sent() {
		assert.Equal(t, uint64(chain.FallbackGasLimit), s.Gas)
	}

	// Full-size chunks run out of gas under the fallback limit; the
	// reverted batch stops the run.
	e = newEnv(t, time.Second)
	e.b.FailEstimate = true
	res, err := e.anchorer(anchor.DefaultOptions()).Anchor(ctx, 1, content(50000))
	assert.True(t, errors.Is(errors.Remote, err), "got %v", err)
	assert.Equal(t, 0, res.ChunksAnchored)
	assert.Len(t, res.TxHashes, 1)
	assert.Equal(t, []string{contract.MethodRecordSubmission, contract.MethodAddEncryptedChunks}, e.b.Methods())
}
