// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption

import (
	"github.com/esims/chainvault/errors"
)

// Sealed is an encrypted document ready for anchoring.
type Sealed struct {
	// Payloads are the sealed chunks in file order.
	Payloads [][]byte
	// Material describes how the data key is protected.
	Material KeyMaterial
	// ChunkSize is the plaintext chunk size used.
	ChunkSize int
}

// SealDocument splits plaintext into chunkSize chunks, creates a data key
// with the named scheme under master, and seals every chunk.
func SealDocument(scheme string, master MasterKey, plaintext []byte, chunkSize int) (Sealed, error) {
	s, err := Lookup(scheme)
	if err != nil {
		return Sealed{}, err
	}
	chunks, err := Split(plaintext, chunkSize)
	if err != nil {
		return Sealed{}, err
	}
	dataKey, m, err := s.NewDataKey(master)
	if err != nil {
		return Sealed{}, err
	}
	c, err := NewCipher(dataKey)
	if err != nil {
		return Sealed{}, err
	}
	payloads, err := c.SealAll(chunks)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Payloads: payloads, Material: m, ChunkSize: chunkSize}, nil
}

// OpenDocument recovers the data key described by m and opens payloads
// in order. It returns either the complete plaintext or an error; a
// failing chunk is reported through FailedIndex.
func OpenDocument(master MasterKey, m KeyMaterial, payloads [][]byte) ([]byte, error) {
	if err := CheckVersion(m, master); err != nil {
		return nil, err
	}
	s, err := Lookup(m.Scheme)
	if err != nil {
		return nil, err
	}
	dataKey, err := s.DataKey(master, m)
	if err != nil {
		return nil, err
	}
	c, err := NewCipher(dataKey)
	if err != nil {
		return nil, err
	}
	p, err := c.OpenAll(payloads)
	if err != nil {
		return nil, errors.E("opening document", err)
	}
	return p, nil
}
