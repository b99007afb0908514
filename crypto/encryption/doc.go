// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package encryption implements the envelope encryption used for
// ledger-anchored documents.
//
// A document's plaintext is split into fixed-size chunks (Split). Each
// chunk is sealed independently with AES-256-GCM under a per-document
// data key and a fresh random 12-byte nonce, producing the on-chain
// payload
//
//	nonce (12 bytes) || ciphertext || tag (16 bytes)
//
// The data key itself is never stored in the clear. A Scheme protects
// it with a versioned master key: envelope-wrap-v1 stores the data key
// wrapped with AES key wrap (RFC 3394), and kdf-derive-v1 stores only a
// random salt from which the data key is re-derived with HKDF-SHA256.
// Schemes are looked up by name in a registry (Lookup), so that the
// scheme tag recorded with a document selects the recovery procedure.
package encryption
