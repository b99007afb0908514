// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption

import (
	"bytes"
	"io"

	"github.com/esims/chainvault/errors"
	chunker "github.com/ipfs/boxo/chunker"
)

// DefaultChunkSize is the plaintext chunk size used when none is configured.
const DefaultChunkSize = 24 * 1024

// Split splits p into consecutive chunks of size bytes; the last chunk
// may be shorter. Empty input yields no chunks.
func Split(p []byte, size int) ([][]byte, error) {
	if size <= 0 {
		return nil, errors.E(errors.Invalid, "chunk size must be positive")
	}
	s := chunker.NewSizeSplitter(bytes.NewReader(p), int64(size))
	chunks := make([][]byte, 0, ChunkCount(len(p), size))
	for {
		c, err := s.NextBytes()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, errors.E("splitting plaintext", err)
		}
		chunks = append(chunks, c)
	}
}

// ChunkCount returns the number of chunks Split produces for n bytes,
// ceil(n/size).
func ChunkCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Batches groups items into consecutive batches of at most n items.
func Batches(items [][]byte, n int) [][][]byte {
	if n < 1 {
		n = 1
	}
	batches := make([][][]byte, 0, (len(items)+n-1)/n)
	for len(items) > 0 {
		k := n
		if k > len(items) {
			k = len(items)
		}
		batches = append(batches, items[:k])
		items = items[k:]
	}
	return batches
}
