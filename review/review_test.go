// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package review_test

import (
	"context"
	"testing"

	"github.com/esims/chainvault/chain/chaintest"
	"github.com/esims/chainvault/contract"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/review"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/store/memstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*chaintest.Backend, *contract.Gateway, *memstore.Store) {
	b := chaintest.New()
	st := memstore.New()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, st.PutDocument(context.Background(), store.Document{ID: id, Status: store.StatusSubmitted}))
	}
	return b, b.Gateway(t), st
}

func TestApproveReject(t *testing.T) {
	ctx := context.Background()
	b, g, st := setup(t)
	submitter := common.HexToAddress("0xabc")
	b.SetRecord(1, submitter, contract.StatusSubmitted)
	b.SetRecord(2, submitter, contract.StatusSubmitted)
	r := review.New(g, st, nil, nil)

	res, err := r.Approve(ctx, 1)
	require.NoError(t, err)
	assert.True(t, res.Mined)
	assert.Equal(t, store.StatusApproved, res.Status)
	res, err = r.Reject(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, res.Status)
	assert.Equal(t, []string{contract.MethodMarkApproved, contract.MethodMarkRejected}, b.Methods())

	for id, want := range map[int64]string{1: store.StatusApproved, 2: store.StatusRejected} {
		d, err := st.Document(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, d.Status)
		txs, err := st.Transactions(ctx, id)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.True(t, txs[0].Mined())
	}
	rec, err := g.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusApproved, rec.Status)

	// Reviewed documents cannot be reviewed again.
	_, err = r.Reject(ctx, 1)
	assert.True(t, errors.Is(errors.Precondition, err))
	assert.Len(t, b.Sent(), 2)
}

func TestReviewUnregistered(t *testing.T) {
	ctx := context.Background()
	b, g, st := setup(t)
	r := review.New(g, st, nil, nil)
	_, err := r.Approve(ctx, 3)
	assert.True(t, errors.Is(errors.Precondition, err))

	// A zeroed submitter is no record, whatever its status.
	b.SetRecord(3, common.Address{}, contract.StatusSubmitted)
	_, err = r.Approve(ctx, 3)
	assert.True(t, errors.Is(errors.Precondition, err))

	_, err = r.Approve(ctx, 404)
	assert.True(t, errors.Is(errors.NotExist, err))
	assert.Empty(t, b.Sent())
}

func TestReviewUnconfirmed(t *testing.T) {
	ctx := context.Background()
	b := chaintest.New()
	st := memstore.New()
	require.NoError(t, st.PutDocument(ctx, store.Document{ID: 1}))
	b.SetRecord(1, common.HexToAddress("0xabc"), contract.StatusSubmitted)
	b.HideReceipts = true
	res, err := review.New(b.Gateway(t), st, nil, nil).Approve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, res.Mined)
	pending, err := st.PendingTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	d, err := st.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, d.Status)
}
