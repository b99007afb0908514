// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/esims/chainvault/errors"
)

const (
	// DataKeySize is the size of a data key: AES-256.
	DataKeySize = 32
	// NonceSize is the size of the per-chunk GCM nonce.
	NonceSize = 12
	// TagSize is the size of the GCM authentication tag.
	TagSize = 16
	// MinPayloadSize is the size of a sealed empty chunk.
	MinPayloadSize = NonceSize + TagSize
)

var randomSource io.Reader = rand.Reader

// SetRandSource sets the source of random numbers used for data keys,
// nonces and salts. It is intended for testing.
func SetRandSource(rd io.Reader) {
	randomSource = rd
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randomSource, b); err != nil {
		return nil, errors.E("reading random bytes", err)
	}
	return b, nil
}

// ChunkError annotates an error with the index of the chunk that caused it.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string { return fmt.Sprintf("chunk %d: %v", e.Index, e.Err) }

// Unwrap returns the underlying error.
func (e *ChunkError) Unwrap() error { return e.Err }

// AtIndex annotates err with chunk index i, keeping err's kind.
func AtIndex(i int, err error) error {
	return errors.E(errors.Recover(err).Kind, &ChunkError{Index: i, Err: err})
}

// FailedIndex returns the chunk index recorded in err by AtIndex.
func FailedIndex(err error) (int, bool) {
	var ce *ChunkError
	if errors.As(err, &ce) {
		return ce.Index, true
	}
	return 0, false
}

// CheckPayload rejects payloads too short to hold a nonce and a tag.
func CheckPayload(payload []byte) error {
	if len(payload) < MinPayloadSize {
		return errors.E(errors.InvalidPayload,
			fmt.Sprintf("payload has %d bytes, need at least %d", len(payload), MinPayloadSize))
	}
	return nil
}

// Cipher seals and opens chunks under a single data key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher returns a Cipher for the given 32-byte data key.
func NewCipher(dataKey []byte) (*Cipher, error) {
	if len(dataKey) != DataKeySize {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("data key has %d bytes, want %d", len(dataKey), DataKeySize))
	}
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	return &Cipher{aead}, nil
}

// Seal encrypts one chunk under a fresh random nonce and returns
// nonce || ciphertext || tag.
func (c *Cipher) Seal(chunk []byte) ([]byte, error) {
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(chunk)+TagSize)
	copy(out, nonce)
	return c.aead.Seal(out, nonce, chunk, nil), nil
}

// Open authenticates and decrypts one payload produced by Seal.
func (c *Cipher) Open(payload []byte) ([]byte, error) {
	if err := CheckPayload(payload); err != nil {
		return nil, err
	}
	p, err := c.aead.Open(nil, payload[:NonceSize], payload[NonceSize:], nil)
	if err != nil {
		return nil, errors.E(errors.Integrity, "authenticating chunk", err)
	}
	return p, nil
}

// SealAll seals each chunk in order.
func (c *Cipher) SealAll(chunks [][]byte) ([][]byte, error) {
	payloads := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		p, err := c.Seal(chunk)
		if err != nil {
			return nil, AtIndex(i, err)
		}
		payloads[i] = p
	}
	return payloads, nil
}

// OpenAll opens every payload in index order and concatenates the
// plaintexts. It fails on the first bad payload, reporting its index,
// and returns no partial output.
func (c *Cipher) OpenAll(payloads [][]byte) ([]byte, error) {
	var n int
	for i, p := range payloads {
		if err := CheckPayload(p); err != nil {
			return nil, AtIndex(i, err)
		}
		n += len(p) - MinPayloadSize
	}
	out := make([]byte, 0, n)
	for i, payload := range payloads {
		p, err := c.Open(payload)
		if err != nil {
			return nil, AtIndex(i, err)
		}
		out = append(out, p...)
	}
	return out, nil
}
