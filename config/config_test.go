// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/log"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParse(t *testing.T) {
	p := New()
	err := p.Parse(strings.NewReader(`
// Deployment defaults.
param chain endpoint = "http://localhost:8545"
param anchor (
	chunk-size = 1024
	max-per-tx = 4; register = true
)
param store driver = memory
param chain rpc-rate = 2.5
param chain chain-id = -1
`))
	require.NoError(t, err)
	for path, want := range map[string]string{
		"chain.endpoint":    `"http://localhost:8545"`,
		"anchor.chunk-size": "1024",
		"anchor.register":   "true",
		"store.driver":      `"memory"`,
		"chain.rpc-rate":    "2.5",
		"chain.chain-id":    "-1",
	} {
		got, ok := p.Get(path)
		expect.True(t, ok)
		expect.EQ(t, got, want)
	}
	_, ok := p.Get("anchor.missing")
	expect.False(t, ok)
}

func TestParseOverride(t *testing.T) {
	p := New()
	require.NoError(t, p.Parse(strings.NewReader(`param anchor max-per-tx = 2`)))
	require.NoError(t, p.Parse(strings.NewReader(`param anchor max-per-tx = 8`)))
	got, _ := p.Get("anchor.max-per-tx")
	assert.Equal(t, "8", got)
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		`instance chain/other chain`,
		`param chain endpoint "x"`,
		`param chain (endpoint = "x"`,
		`param chain endpoint = )`,
		`param = 1`,
	} {
		err := New().Parse(strings.NewReader(src))
		assert.True(t, errors.Is(errors.Invalid, err), "%s: got %v", src, err)
	}
}

func TestPrintRoundTrip(t *testing.T) {
	p := New()
	require.NoError(t, p.Parse(strings.NewReader(`param anchor (chunk-size = 10; register = false)
param chain endpoint = "http://x"`)))
	var b bytes.Buffer
	require.NoError(t, p.PrintTo(&b))
	q := New()
	require.NoError(t, q.Parse(&b))
	for _, path := range []string{"anchor.chunk-size", "anchor.register", "chain.endpoint"} {
		v, _ := p.Get(path)
		w, _ := q.Get(path)
		assert.Equal(t, v, w, path)
	}
}

func TestYAML(t *testing.T) {
	p := New()
	require.NoError(t, p.ParseYAML(strings.NewReader(`
chain:
  endpoint: http://localhost:8545
  receipt-timeout: 5s
anchor:
  max-per-tx: 3
  register: true
`)))
	s, err := p.Settings()
	require.NoError(t, err)
	require.NotNil(t, s.Chain)
	assert.Equal(t, "http://localhost:8545", s.Chain.Endpoint)
	assert.Equal(t, 5*time.Second, s.Chain.ReceiptTimeout)
	assert.Equal(t, 3, s.Anchor.MaxPerTx)
	assert.True(t, s.Anchor.Register)

	err = New().ParseYAML(strings.NewReader("chain: [1, 2]"))
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestDefaults(t *testing.T) {
	s, err := New().Settings()
	require.NoError(t, err)
	assert.Nil(t, s.Chain)
	assert.Nil(t, s.Keys)
	assert.Equal(t, encryption.DefaultChunkSize, s.Anchor.ChunkSize)
	assert.Equal(t, 1, s.Anchor.MaxPerTx)
	assert.Equal(t, "badger", s.Store.Driver)
	assert.Equal(t, log.InfoLevel, s.Log.Level)

	_, err = s.Keys.Master()
	assert.True(t, errors.Is(errors.NotConfigured, err))
}

func TestEnvOverlay(t *testing.T) {
	p := New()
	require.NoError(t, p.Parse(strings.NewReader(`param anchor max-per-tx = 2`)))
	key := strings.Repeat("ab", 32)
	p.ApplyEnv(env(map[string]string{
		"ETH_RPC_URL":          "http://node:8545",
		"ETH_CONTRACT_ADDRESS": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"ANCHOR_MAX_PER_TX":    "6",
		"MASTER_KEY":           key,
		"MASTER_KEY_VERSION":   "3",
		"KEY_SCHEME":           encryption.DeriveScheme,
		"DATABASE_URL":         "postgres://u@db/chainvault",
		"ETH_ABI_PATH":         "   ",
	}))
	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", s.Chain.Endpoint)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", s.Chain.Contract)
	assert.Empty(t, s.Chain.ABIPath)
	assert.Equal(t, 6, s.Anchor.MaxPerTx)
	assert.Equal(t, "postgres", s.Store.Driver)
	require.NotNil(t, s.Keys)
	assert.Equal(t, encryption.DeriveScheme, s.Keys.Scheme)
	m, err := s.Keys.Master()
	require.NoError(t, err)
	assert.Equal(t, 3, m.Version)
	assert.Len(t, m.Key, 32)
}

func TestMasterKeyReference(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "config")
	defer cleanup()
	path := filepath.Join(dir, "master")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("01", 16)+"\n"), 0600))
	k := &KeySettings{MasterKey: "file://" + path, Version: 1, Scheme: encryption.WrapScheme}
	m, err := k.Master()
	require.NoError(t, err)
	assert.Len(t, m.Key, 16)
}

func TestValidate(t *testing.T) {
	for _, src := range []string{
		`param anchor chunk-size = 0`,
		`param anchor max-per-tx = -1`,
		`param keys (master-key = "x"; scheme = "rot13")`,
		`param keys (master-key = "x"; version = 0)`,
		`param store driver = mysql`,
		`param artifacts s3 = "gs://bucket"`,
		`param log level = loud`,
		`param anchor chunk-size = "big"`,
		`param chain (endpoint = "http://x"; receipt-timeout = "soon")`,
	} {
		p := New()
		require.NoError(t, p.Parse(strings.NewReader(src)), src)
		_, err := p.Settings()
		assert.True(t, errors.Is(errors.Invalid, err), "%s: got %v", src, err)
	}
	p := New()
	require.NoError(t, p.Set("store.driver", "postgres"))
	_, err := p.Settings()
	assert.True(t, errors.Is(errors.NotConfigured, err))
}

func TestFlags(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "config")
	defer cleanup()
	base := filepath.Join(dir, "base.profile")
	require.NoError(t, os.WriteFile(base, []byte(`param anchor (max-per-tx = 2; chunk-size = 100)`), 0644))
	overlay := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(overlay, []byte("anchor:\n  chunk-size: 200\n"), 0644))

	p := New()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	p.RegisterFlags(fs, "", filepath.Join(dir, "missing.profile"))
	require.NoError(t, fs.Parse([]string{
		"-profile", base, "-profile", overlay,
		"-set", "anchor.max-per-tx=9",
	}))
	dumped, err := p.ProcessFlags(env(map[string]string{"ANCHOR_MAX_PER_TX": "5", "ANCHOR_CHUNK_SIZE": "300"}), nil)
	require.NoError(t, err)
	assert.False(t, dumped)
	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, 9, s.Anchor.MaxPerTx, "-set overrides the environment")
	assert.Equal(t, 300, s.Anchor.ChunkSize, "the environment overrides profiles")

	err = fs.Parse([]string{"-set", "novalue"})
	assert.Error(t, err)
}

func TestDefaultProfileMissing(t *testing.T) {
	p := New()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	p.RegisterFlags(fs, "", "/nonexistent/chainvault.profile")
	require.NoError(t, fs.Parse([]string{"-profiledump"}))
	var b bytes.Buffer
	dumped, err := p.ProcessFlags(noEnv, &b)
	require.NoError(t, err)
	assert.True(t, dumped)
	assert.Empty(t, b.String())
}

func TestSetPath(t *testing.T) {
	p := New()
	assert.True(t, errors.Is(errors.Invalid, p.Set("endpoint", "x")))
	assert.True(t, errors.Is(errors.Invalid, p.Set("chain.", "x")))
	require.NoError(t, p.Set("chain.endpoint", "http://x"))
	v, ok := p.Get("chain.endpoint")
	assert.True(t, ok)
	assert.Equal(t, `"http://x"`, v)
}
