// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"strings"
)

// EnvParams maps environment variables to the profile parameters
// they set.
var EnvParams = map[string]string{
	"ETH_RPC_URL":          "chain.endpoint",
	"ETH_CONTRACT_ADDRESS": "chain.contract",
	"ETH_ABI_PATH":         "chain.abi",
	"ETH_PRIVATE_KEY":      "chain.signing-key",
	"ETH_CHAIN_ID":         "chain.chain-id",
	"ANCHOR_CHUNK_SIZE":    "anchor.chunk-size",
	"ANCHOR_MAX_PER_TX":    "anchor.max-per-tx",
	"MASTER_KEY":           "keys.master-key",
	"MASTER_KEY_VERSION":   "keys.version",
	"KEY_SCHEME":           "keys.scheme",
	"DATABASE_URL":         "store.dsn",
	"ARTIFACT_DIR":         "artifacts.dir",
	"ARTIFACT_S3_URL":      "artifacts.s3",
	"LOG_LEVEL":            "log.level",
}

// ApplyEnv sets the parameters named in EnvParams from the
// environment, using lookup to read variables. A nil lookup reads the
// process environment. Empty variables are ignored.
func (p *Profile) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for name, path := range EnvParams {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		// Paths in EnvParams are well formed.
		_ = p.Set(path, strings.TrimSpace(v))
	}
}
