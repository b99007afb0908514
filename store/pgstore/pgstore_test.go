// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/store/storetest"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// dsnEnv names a database the tests may freely truncate.
const dsnEnv = "CHAINVAULT_TEST_DATABASE_URL"

func open(t *testing.T) store.Store {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	assert.NoError(t, err)
	_, err = s.pool.Exec(ctx, `TRUNCATE ledger_transactions, documents RESTART IDENTITY`)
	assert.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.TestAll(t, open)
}

func TestOpenNotConfigured(t *testing.T) {
	_, err := Open(context.Background(), "")
	expect.True(t, errors.Is(errors.NotConfigured, err))
	_, err = Open(context.Background(), "postgres://%zz")
	expect.True(t, errors.Is(errors.Invalid, err))
}
