// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command chainvault anchors documents to the ledger as encrypted
// chunks and recovers them.
//
// Configuration is read from a profile (-profile, default
// ./chainvault.profile), then the environment, then -set flags:
//
//	chainvault -set chain.endpoint=http://localhost:8545 \
//		-set chain.contract=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//		anchor -project 3 12 report.pdf
//
// Capabilities that are not configured are reported as unavailable.
package main

import (
	"v.io/x/lib/cmdline"
)

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCLI().root())
}
