// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/esims/chainvault/errors"
)

// MasterKey is a versioned key-encryption key. It is supplied
// out of band and only held in memory.
type MasterKey struct {
	Version int
	Key     []byte
}

// NewMasterKey validates and returns a master key. Keys must be 16, 24
// or 32 bytes and versions start at 1.
func NewMasterKey(version int, key []byte) (MasterKey, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return MasterKey{}, errors.E(errors.Invalid, fmt.Sprintf("master key has %d bytes, want 16, 24 or 32", len(key)))
	}
	if version < 1 {
		return MasterKey{}, errors.E(errors.Invalid, fmt.Sprintf("master key version %d must be positive", version))
	}
	return MasterKey{Version: version, Key: append([]byte{}, key...)}, nil
}

// ParseMasterKey decodes key material given as hex (optionally 0x
// prefixed) or base64, and validates it with NewMasterKey.
func ParseMasterKey(version int, s string) (MasterKey, error) {
	s = strings.TrimSpace(s)
	if key, ok := decodeHexKey(s); ok {
		return NewMasterKey(version, key)
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(s); err == nil {
			return NewMasterKey(version, key)
		}
	}
	return MasterKey{}, errors.E(errors.Invalid, "master key is neither hex nor base64")
}

func decodeHexKey(s string) ([]byte, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	switch len(s) {
	case 32, 48, 64:
	default:
		return nil, false
	}
	key, err := hex.DecodeString(s)
	return key, err == nil
}

// String does not reveal the key.
func (k MasterKey) String() string {
	return fmt.Sprintf("master key v%d (%d bits)", k.Version, len(k.Key)*8)
}

// KeyMaterial is what a document stores about its data key: the scheme
// tag, the master key version and exactly one of WrappedKey or Salt.
type KeyMaterial struct {
	Scheme     string
	KeyVersion int
	WrappedKey []byte
	Salt       []byte
}

// CheckVersion fails with KeyVersionMismatch when key is not the
// version that protected m. It performs no cryptographic work.
func CheckVersion(m KeyMaterial, key MasterKey) error {
	if m.KeyVersion != key.Version {
		return errors.E(errors.KeyVersionMismatch,
			fmt.Sprintf("document key version %d, presented key version %d", m.KeyVersion, key.Version))
	}
	return nil
}

// Validate checks that m is well formed for its scheme: exactly one of
// WrappedKey and Salt is set, as the scheme requires.
func (m KeyMaterial) Validate() error {
	s, err := Lookup(m.Scheme)
	if err != nil {
		return err
	}
	return s.Validate(m)
}
