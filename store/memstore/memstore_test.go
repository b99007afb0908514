// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package memstore_test

import (
	"testing"

	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/store/memstore"
	"github.com/esims/chainvault/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.TestAll(t, func(*testing.T) store.Store { return memstore.New() })
}
