// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package recovery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/esims/chainvault/digest"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/store"
)

// ChecksumReport compares local bytes with a document's checksum.
type ChecksumReport struct {
	Want, Got string
}

// Match tells whether the checksums agree.
func (r ChecksumReport) Match() bool { return r.Want == r.Got }

// RawReport compares local bytes with a document's raw chunks.
type RawReport struct {
	ChunkCount int
	Matched    int
	// Mismatched lists the indexes of chunks that differ from, or run
	// past the end of, the local bytes.
	Mismatched []int
	// Leftover counts local bytes past the last chunk.
	Leftover int
}

// Match tells whether the chunks reassemble exactly to the local bytes.
func (r RawReport) Match() bool {
	return len(r.Mismatched) == 0 && r.Leftover == 0
}

// Verifier checks local copies of documents against what the store
// and the ledger hold.
type Verifier struct {
	gateway Gateway
	store   store.Store
}

// NewVerifier returns a verifier.
func NewVerifier(g Gateway, st store.Store) *Verifier {
	return &Verifier{gateway: g, store: st}
}

// VerifyChecksum compares the SHA-256 of data with the document's
// stored checksum.
func (v *Verifier) VerifyChecksum(ctx context.Context, docID int64, data []byte) (ChecksumReport, error) {
	doc, err := v.store.Document(ctx, docID)
	if err != nil {
		return ChecksumReport{}, err
	}
	if doc.Checksum == "" {
		return ChecksumReport{}, errors.E(errors.Precondition, fmt.Sprintf("document %d has no checksum", docID))
	}
	want, err := digest.Parse(doc.Checksum)
	if err != nil {
		return ChecksumReport{}, err
	}
	return ChecksumReport{Want: want.Hex(), Got: digest.FromBytes(data).Hex()}, nil
}

// VerifyRaw compares each raw chunk on the ledger with the slice of
// data at the same offset.
func (v *Verifier) VerifyRaw(ctx context.Context, docID int64, data []byte) (RawReport, error) {
	if _, err := v.store.Document(ctx, docID); err != nil {
		return RawReport{}, err
	}
	chunks, err := readAll(ctx, docID, v.gateway.RawChunkCount, v.gateway.ReadRawChunk, nil)
	if err != nil {
		return RawReport{}, err
	}
	rep := RawReport{ChunkCount: len(chunks)}
	var off int
	for i, c := range chunks {
		end := off + len(c)
		if end <= len(data) && bytes.Equal(c, data[off:end]) {
			rep.Matched++
		} else {
			rep.Mismatched = append(rep.Mismatched, i)
		}
		off = end
	}
	if off < len(data) {
		rep.Leftover = len(data) - off
	}
	return rep, nil
}
