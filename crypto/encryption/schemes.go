// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption

import (
	"crypto/aes"
	"crypto/sha256"
	"fmt"
	"io"

	keywrap "github.com/NickBall/go-aes-key-wrap"
	"github.com/esims/chainvault/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// WrapScheme wraps a random data key with the master key.
	WrapScheme = "envelope-wrap-v1"
	// DeriveScheme derives the data key from the master key and a salt.
	DeriveScheme = "kdf-derive-v1"

	// SaltSize is the size of the kdf-derive-v1 salt.
	SaltSize = 16

	deriveLabel = "chainvault/kdf-derive-v1/data-key"
)

func init() {
	mustRegister(wrapScheme{})
	mustRegister(deriveScheme{})
}

type wrapScheme struct{}

func (wrapScheme) Name() string { return WrapScheme }

func (wrapScheme) NewDataKey(master MasterKey) ([]byte, KeyMaterial, error) {
	dataKey, err := randomBytes(DataKeySize)
	if err != nil {
		return nil, KeyMaterial{}, err
	}
	block, err := aes.NewCipher(master.Key)
	if err != nil {
		return nil, KeyMaterial{}, errors.E(errors.Invalid, "master key", err)
	}
	wrapped, err := keywrap.Wrap(block, dataKey)
	if err != nil {
		return nil, KeyMaterial{}, errors.E("wrapping data key", err)
	}
	return dataKey, KeyMaterial{Scheme: WrapScheme, KeyVersion: master.Version, WrappedKey: wrapped}, nil
}

func (s wrapScheme) DataKey(master MasterKey, m KeyMaterial) ([]byte, error) {
	if err := CheckVersion(m, master); err != nil {
		return nil, err
	}
	if err := s.Validate(m); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(master.Key)
	if err != nil {
		return nil, errors.E(errors.Invalid, "master key", err)
	}
	dataKey, err := keywrap.Unwrap(block, m.WrappedKey)
	if err != nil {
		return nil, errors.E(errors.KeyUnwrapFailed, err)
	}
	if len(dataKey) != DataKeySize {
		return nil, errors.E(errors.KeyUnwrapFailed, fmt.Sprintf("unwrapped key has %d bytes", len(dataKey)))
	}
	return dataKey, nil
}

func (wrapScheme) Validate(m KeyMaterial) error {
	if m.Scheme != WrapScheme {
		return errors.E(errors.Invalid, fmt.Sprintf("material is for scheme %q", m.Scheme))
	}
	if len(m.Salt) != 0 {
		return errors.E(errors.Invalid, WrapScheme+" material must not carry a salt")
	}
	// A wrapped 32-byte key is 40 bytes: one extra 64-bit block.
	if len(m.WrappedKey) != DataKeySize+8 {
		return errors.E(errors.Invalid, fmt.Sprintf("wrapped key has %d bytes, want %d", len(m.WrappedKey), DataKeySize+8))
	}
	return nil
}

type deriveScheme struct{}

func (deriveScheme) Name() string { return DeriveScheme }

func (deriveScheme) NewDataKey(master MasterKey) ([]byte, KeyMaterial, error) {
	salt, err := randomBytes(SaltSize)
	if err != nil {
		return nil, KeyMaterial{}, err
	}
	dataKey, err := derive(master.Key, salt)
	if err != nil {
		return nil, KeyMaterial{}, err
	}
	return dataKey, KeyMaterial{Scheme: DeriveScheme, KeyVersion: master.Version, Salt: salt}, nil
}

func (s deriveScheme) DataKey(master MasterKey, m KeyMaterial) ([]byte, error) {
	if err := CheckVersion(m, master); err != nil {
		return nil, err
	}
	if err := s.Validate(m); err != nil {
		return nil, err
	}
	return derive(master.Key, m.Salt)
}

func (deriveScheme) Validate(m KeyMaterial) error {
	if m.Scheme != DeriveScheme {
		return errors.E(errors.Invalid, fmt.Sprintf("material is for scheme %q", m.Scheme))
	}
	if len(m.WrappedKey) != 0 {
		return errors.E(errors.Invalid, DeriveScheme+" material must not carry a wrapped key")
	}
	if len(m.Salt) != SaltSize {
		return errors.E(errors.Invalid, fmt.Sprintf("salt has %d bytes, want %d", len(m.Salt), SaltSize))
	}
	return nil
}

// derive computes HKDF-SHA256(master, salt, deriveLabel), 32 bytes.
func derive(master, salt []byte) ([]byte, error) {
	dataKey := make([]byte, DataKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(deriveLabel)), dataKey); err != nil {
		return nil, errors.E("deriving data key", err)
	}
	return dataKey, nil
}
