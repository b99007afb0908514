// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption_test

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func masterKey(t testing.TB, version, size int) encryption.MasterKey {
	key := make([]byte, size)
	_, err := rand.Read(key)
	require.NoError(t, err)
	k, err := encryption.NewMasterKey(version, key)
	require.NoError(t, err)
	return k
}

func TestSplitScenario(t *testing.T) {
	p := make([]byte, 50000)
	_, _ = rand.Read(p)
	chunks, err := encryption.Split(p, 24576)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 24576)
	assert.Len(t, chunks[1], 24576)
	assert.Len(t, chunks[2], 848)
	assert.Equal(t, p, bytes.Join(chunks, nil))
	assert.Equal(t, 3, encryption.ChunkCount(len(p), 24576))
}

func TestSplitEdges(t *testing.T) {
	chunks, err := encryption.Split(nil, encryption.DefaultChunkSize)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = encryption.Split(make([]byte, 2*encryption.DefaultChunkSize), encryption.DefaultChunkSize)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	_, err = encryption.Split([]byte("x"), 0)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestBatches(t *testing.T) {
	items := [][]byte{{0}, {1}, {2}, {3}, {4}}
	assert.Len(t, encryption.Batches(items, 1), 5)
	b := encryption.Batches(items, 2)
	require.Len(t, b, 3)
	assert.Equal(t, [][]byte{{4}}, b[2])
	assert.Len(t, encryption.Batches(items, 0), 5)
	assert.Empty(t, encryption.Batches(nil, 3))
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scheme := rapid.SampledFrom(encryption.Schemes()).Draw(rt, "scheme")
		size := rapid.SampledFrom([]int{16, 24, 32}).Draw(rt, "keySize")
		chunkSize := rapid.IntRange(1, 4096).Draw(rt, "chunkSize")
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 20000).Draw(rt, "plaintext")
		master := masterKey(t, 1, size)

		sealed, err := encryption.SealDocument(scheme, master, plaintext, chunkSize)
		if err != nil {
			rt.Fatal(err)
		}
		if got, want := len(sealed.Payloads), encryption.ChunkCount(len(plaintext), chunkSize); got != want {
			rt.Fatalf("got %d payloads, want %d", got, want)
		}
		if err := sealed.Material.Validate(); err != nil {
			rt.Fatal(err)
		}
		got, err := encryption.OpenDocument(master, sealed.Material, sealed.Payloads)
		if err != nil {
			rt.Fatal(err)
		}
		if !bytes.Equal(got, plaintext) {
			rt.Fatalf("round trip mismatch for %d bytes", len(plaintext))
		}
	})
}

func TestShortPayloadRejected(t *testing.T) {
	c, err := encryption.NewCipher(make([]byte, encryption.DataKeySize))
	require.NoError(t, err)
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.SliceOfN(rapid.Byte(), 0, encryption.MinPayloadSize-1).Draw(rt, "payload")
		_, err := c.Open(p)
		if !errors.Is(errors.InvalidPayload, err) {
			rt.Fatalf("%d-byte payload: got %v, want InvalidPayload", len(p), err)
		}
	})
}

func TestPayloadFormat(t *testing.T) {
	c, err := encryption.NewCipher(make([]byte, encryption.DataKeySize))
	require.NoError(t, err)
	chunk := []byte("survey field book page 1")
	p1, err := c.Seal(chunk)
	require.NoError(t, err)
	p2, err := c.Seal(chunk)
	require.NoError(t, err)
	assert.Len(t, p1, encryption.NonceSize+len(chunk)+encryption.TagSize)
	assert.NotEqual(t, p1[:encryption.NonceSize], p2[:encryption.NonceSize], "nonces must not repeat")

	empty, err := c.Seal(nil)
	require.NoError(t, err)
	assert.Len(t, empty, encryption.MinPayloadSize)
	out, err := c.Open(empty)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReorderChangesOutput(t *testing.T) {
	master := masterKey(t, 1, 32)
	plaintext := append(bytes.Repeat([]byte{'a'}, 100), bytes.Repeat([]byte{'b'}, 100)...)
	sealed, err := encryption.SealDocument(encryption.WrapScheme, master, plaintext, 100)
	require.NoError(t, err)
	require.Len(t, sealed.Payloads, 2)

	swapped := [][]byte{sealed.Payloads[1], sealed.Payloads[0]}
	got, err := encryption.OpenDocument(master, sealed.Material, swapped)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, got)
}

func TestCorruptChunkIndex(t *testing.T) {
	master := masterKey(t, 1, 32)
	sealed, err := encryption.SealDocument(encryption.DeriveScheme, master, make([]byte, 300), 100)
	require.NoError(t, err)

	tampered := append([][]byte{}, sealed.Payloads...)
	tampered[1] = append([]byte{}, tampered[1]...)
	tampered[1][encryption.NonceSize] ^= 1
	_, err = encryption.OpenDocument(master, sealed.Material, tampered)
	require.True(t, errors.Is(errors.Integrity, err), "got %v", err)
	i, ok := encryption.FailedIndex(err)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	tampered[1] = tampered[1][:10]
	_, err = encryption.OpenDocument(master, sealed.Material, tampered)
	require.True(t, errors.Is(errors.InvalidPayload, err), "got %v", err)
	i, ok = encryption.FailedIndex(err)
	require.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestExactlyOneOfWrappedKeyOrSalt(t *testing.T) {
	master := masterKey(t, 3, 24)
	for _, scheme := range []string{encryption.WrapScheme, encryption.DeriveScheme} {
		sealed, err := encryption.SealDocument(scheme, master, []byte("x"), 10)
		require.NoError(t, err)
		m := sealed.Material
		assert.Equal(t, scheme, m.Scheme)
		assert.Equal(t, 3, m.KeyVersion)
		assert.True(t, (len(m.WrappedKey) > 0) != (len(m.Salt) > 0), "scheme %s: wrapped=%d salt=%d", scheme, len(m.WrappedKey), len(m.Salt))
	}

	bad := encryption.KeyMaterial{Scheme: encryption.WrapScheme, KeyVersion: 1, WrappedKey: make([]byte, 40), Salt: make([]byte, 16)}
	assert.True(t, errors.Is(errors.Invalid, bad.Validate()))
	bad = encryption.KeyMaterial{Scheme: encryption.DeriveScheme, KeyVersion: 1}
	assert.True(t, errors.Is(errors.Invalid, bad.Validate()))
	bad = encryption.KeyMaterial{Scheme: "envelope-aeskw-v0", KeyVersion: 1}
	assert.True(t, errors.Is(errors.Invalid, bad.Validate()))
}

func TestWrongMasterKey(t *testing.T) {
	master := masterKey(t, 1, 32)
	other := masterKey(t, 1, 32)
	sealed, err := encryption.SealDocument(encryption.WrapScheme, master, []byte("confidential"), 4)
	require.NoError(t, err)
	out, err := encryption.OpenDocument(other, sealed.Material, sealed.Payloads)
	assert.True(t, errors.Is(errors.KeyUnwrapFailed, err), "got %v", err)
	assert.Nil(t, out)

	corrupt := sealed.Material
	corrupt.WrappedKey = append([]byte{}, corrupt.WrappedKey...)
	corrupt.WrappedKey[5] ^= 0x80
	_, err = encryption.OpenDocument(master, corrupt, sealed.Payloads)
	assert.True(t, errors.Is(errors.KeyUnwrapFailed, err), "got %v", err)
}

func TestDeriveSaltSensitivity(t *testing.T) {
	master := masterKey(t, 1, 32)
	sealed, err := encryption.SealDocument(encryption.DeriveScheme, master, []byte("as-built drawing"), 8)
	require.NoError(t, err)

	s, err := encryption.Lookup(encryption.DeriveScheme)
	require.NoError(t, err)
	k1, err := s.DataKey(master, sealed.Material)
	require.NoError(t, err)

	changed := sealed.Material
	changed.Salt = append([]byte{}, changed.Salt...)
	changed.Salt[0] ^= 1
	k2, err := s.DataKey(master, changed)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	_, err = encryption.OpenDocument(master, changed, sealed.Payloads)
	assert.True(t, errors.Is(errors.Integrity, err), "got %v", err)

	other := masterKey(t, 1, 32)
	_, err = encryption.OpenDocument(other, sealed.Material, sealed.Payloads)
	assert.True(t, errors.Is(errors.Integrity, err), "got %v", err)
}

func TestKeyVersionMismatch(t *testing.T) {
	master := masterKey(t, 2, 32)
	sealed, err := encryption.SealDocument(encryption.WrapScheme, master, []byte("x"), 1)
	require.NoError(t, err)
	rotated := encryption.MasterKey{Version: 3, Key: master.Key}
	_, err = encryption.OpenDocument(rotated, sealed.Material, sealed.Payloads)
	assert.True(t, errors.Is(errors.KeyVersionMismatch, err), "got %v", err)
	assert.True(t, errors.Is(errors.KeyVersionMismatch, encryption.CheckVersion(sealed.Material, rotated)))
	assert.NoError(t, encryption.CheckVersion(sealed.Material, master))
}

func TestMasterKeyParsing(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, 32)
	for _, s := range []string{
		hex.EncodeToString(raw),
		"0x" + hex.EncodeToString(raw),
		base64.StdEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
	} {
		k, err := encryption.ParseMasterKey(1, s)
		require.NoError(t, err, s)
		assert.Equal(t, raw, k.Key)
	}
	_, err := encryption.ParseMasterKey(1, base64.StdEncoding.EncodeToString(make([]byte, 20)))
	assert.True(t, errors.Is(errors.Invalid, err))
	_, err = encryption.NewMasterKey(0, raw)
	assert.True(t, errors.Is(errors.Invalid, err))
	assert.NotContains(t, encryption.MasterKey{Version: 1, Key: raw}.String(), "abab")
}

func TestUnknownScheme(t *testing.T) {
	_, err := encryption.SealDocument("rot13-v1", masterKey(t, 1, 16), []byte("x"), 1)
	assert.True(t, errors.Is(errors.Invalid, err))
	assert.Equal(t, []string{encryption.WrapScheme, encryption.DeriveScheme}, encryption.Schemes())
}
