// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package digest provides the SHA-256 content digest that identifies a
// document's original bytes, both in the metadata store (as lowercase
// hex) and on the ledger (as a bytes32 value).
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/esims/chainvault/errors"
)

// Size is the length of a digest in bytes.
const Size = sha256.Size

// Digest is a SHA-256 digest.
type Digest [Size]byte

// Zero is the zero digest; it is never the digest of real content.
var Zero Digest

// FromBytes computes the digest of p.
func FromBytes(p []byte) Digest {
	return sha256.Sum256(p)
}

// FromReader computes the digest of everything read from r.
func FromReader(r io.Reader) (Digest, error) {
	w := NewWriter()
	if _, err := io.Copy(w, r); err != nil {
		return Zero, err
	}
	return w.Digest(), nil
}

// Parse parses a hex digest. A leading "0x" is accepted and case is
// ignored; the decoded value must be exactly 32 bytes.
func Parse(s string) (Digest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != hex.EncodedLen(Size) {
		return Zero, errors.E(errors.Invalid, "digest must be 32 bytes (64 hex characters)")
	}
	var d Digest
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Zero, errors.E(errors.Invalid, "decoding digest", err)
	}
	return d, nil
}

// IsZero tells whether d is the zero digest.
func (d Digest) IsZero() bool { return d == Zero }

// Hex returns the lowercase hex encoding of d, without prefix.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// String returns the hex encoding of d.
func (d Digest) String() string { return d.Hex() }

// Short returns an abbreviated hex encoding of d, for log lines.
func (d Digest) Short() string { return d.Hex()[:12] }

// Writer computes a digest of the bytes written to it.
type Writer struct{ h hash.Hash }

// NewWriter returns a new digest writer.
func NewWriter() *Writer { return &Writer{sha256.New()} }

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) { return w.h.Write(p) }

// Digest returns the digest of the bytes written so far.
func (w *Writer) Digest() Digest {
	var d Digest
	copy(d[:], w.h.Sum(nil))
	return d
}
