// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package recovery_test

import (
	"context"
	"testing"

	"github.com/esims/chainvault/anchor"
	"github.com/esims/chainvault/chain/chaintest"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/recovery"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/store/memstore"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestVerify(t *testing.T) {
	ctx := context.Background()
	b := chaintest.New()
	g := b.Gateway(t)
	st := memstore.New()
	assert.NoError(t, st.PutDocument(ctx, store.Document{ID: 1}))
	data := []byte("0123456789abcdefghij")
	opts := anchor.DefaultOptions()
	opts.ChunkSize = 8
	opts.MaxPerTx = 3
	opts.Register = false
	_, err := anchor.New(g, st, nil, opts, nil, nil).AnchorRaw(ctx, 1, data)
	assert.NoError(t, err)
	v := recovery.NewVerifier(g, st)

	sum, err := v.VerifyChecksum(ctx, 1, data)
	assert.NoError(t, err)
	expect.True(t, sum.Match())
	sum, err = v.VerifyChecksum(ctx, 1, data[1:])
	assert.NoError(t, err)
	expect.False(t, sum.Match())

	raw, err := v.VerifyRaw(ctx, 1, data)
	assert.NoError(t, err)
	expect.True(t, raw.Match())
	expect.EQ(t, raw, recovery.RawReport{ChunkCount: 3, Matched: 3})

	edited := append([]byte(nil), data...)
	edited[9] = 'X'
	raw, err = v.VerifyRaw(ctx, 1, append(edited, "tail"...))
	assert.NoError(t, err)
	expect.False(t, raw.Match())
	expect.EQ(t, raw.Mismatched, []int{1})
	expect.EQ(t, raw.Leftover, 4)

	raw, err = v.VerifyRaw(ctx, 1, data[:12])
	assert.NoError(t, err)
	expect.EQ(t, raw.Matched, 1)
	expect.EQ(t, raw.Mismatched, []int{1, 2})

	assert.NoError(t, st.PutDocument(ctx, store.Document{ID: 2}))
	_, err = v.VerifyChecksum(ctx, 2, data)
	expect.True(t, errors.Is(errors.Precondition, err))
	_, err = v.VerifyRaw(ctx, 2, data)
	expect.True(t, errors.Is(errors.NotExist, err))
}
