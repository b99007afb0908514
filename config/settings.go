// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/security/keycrypt"
)

// Defaults.
const (
	DefaultReceiptTimeout = 20 * time.Second
	DefaultRPCTimeout     = 20 * time.Second
	DefaultStorePath      = "chainvault.db"
	DefaultArtifactDir    = "recovered"
)

// ChainSettings configures the chain client.
type ChainSettings struct {
	// Endpoint is the JSON-RPC URL of the node.
	Endpoint string
	// Contract is the hex address of the anchoring contract.
	Contract string
	// ABIPath optionally names a JSON ABI file; the embedded ABI is
	// used when it is empty.
	ABIPath string
	// SigningKey is the hex private key of the signing account, or a
	// keycrypt reference (env://NAME, file:///path) to it.
	SigningKey string
	// ChainID, when nonzero, is checked against the node's chain id.
	ChainID int64
	// ReceiptTimeout bounds how long WaitReceipt polls.
	ReceiptTimeout time.Duration
	// RPCTimeout bounds each HTTP round trip to the node.
	RPCTimeout time.Duration
	// RPCRate limits RPC calls per second; zero means unlimited.
	RPCRate float64
}

// KeySettings configures the deployment master key.
type KeySettings struct {
	// MasterKey is hex or base64 key material, or a keycrypt
	// reference to it.
	MasterKey string
	// Version is the master key version.
	Version int
	// Scheme is the key management scheme used for new documents.
	Scheme string
}

// Master resolves and parses the master key.
func (k *KeySettings) Master() (encryption.MasterKey, error) {
	if k == nil || k.MasterKey == "" {
		return encryption.MasterKey{}, errors.E(errors.NotConfigured, "master key")
	}
	b, err := keycrypt.Get(k.MasterKey)
	if err != nil {
		return encryption.MasterKey{}, errors.E(errors.NotConfigured, "resolving master key", err)
	}
	return encryption.ParseMasterKey(k.Version, string(b))
}

// AnchorSettings configures the anchoring orchestrator.
type AnchorSettings struct {
	ChunkSize int
	MaxPerTx  int
	// Register submits the document record when the contract has none.
	Register bool
	// AnchorHash anchors the document checksum before its chunks.
	AnchorHash bool
}

// StoreSettings selects the metadata store.
type StoreSettings struct {
	// Driver is one of "memory", "badger" or "postgres".
	Driver string
	// DSN is the postgres connection string.
	DSN string
	// Path is the badger directory.
	Path string
}

// ArtifactSettings selects where recovered files are written.
type ArtifactSettings struct {
	// Dir is a local directory.
	Dir string
	// S3, when set, is an s3://bucket/prefix URL used instead of Dir.
	S3     string
	Region string
}

// Settings is the resolved deployment configuration. Chain and Keys
// are nil when the corresponding settings are absent; operations that
// need them fail with errors.NotConfigured.
type Settings struct {
	Chain     *ChainSettings
	Keys      *KeySettings
	Anchor    AnchorSettings
	Store     StoreSettings
	Artifacts ArtifactSettings
	Log       log.Config
}

// Settings resolves the profile into Settings and validates them.
func (p *Profile) Settings() (*Settings, error) {
	var s Settings

	chain := p.reader("chain")
	if endpoint := chain.String("endpoint", ""); endpoint != "" {
		s.Chain = &ChainSettings{
			Endpoint:       endpoint,
			Contract:       chain.String("contract", ""),
			ABIPath:        chain.String("abi", ""),
			SigningKey:     chain.String("signing-key", ""),
			ChainID:        int64(chain.Int("chain-id", 0)),
			ReceiptTimeout: chain.Duration("receipt-timeout", DefaultReceiptTimeout),
			RPCTimeout:     chain.Duration("rpc-timeout", DefaultRPCTimeout),
			RPCRate:        chain.Float("rpc-rate", 0),
		}
	}

	keys := p.reader("keys")
	if master := keys.String("master-key", ""); master != "" {
		s.Keys = &KeySettings{
			MasterKey: master,
			Version:   keys.Int("version", 1),
			Scheme:    keys.String("scheme", encryption.WrapScheme),
		}
	}

	anchor := p.reader("anchor")
	s.Anchor = AnchorSettings{
		ChunkSize:  anchor.Int("chunk-size", encryption.DefaultChunkSize),
		MaxPerTx:   anchor.Int("max-per-tx", 1),
		Register:   anchor.Bool("register", false),
		AnchorHash: anchor.Bool("anchor-hash", false),
	}

	store := p.reader("store")
	s.Store = StoreSettings{
		DSN:  store.String("dsn", ""),
		Path: store.String("path", DefaultStorePath),
	}
	driver := "badger"
	if s.Store.DSN != "" {
		driver = "postgres"
	}
	s.Store.Driver = store.String("driver", driver)

	artifacts := p.reader("artifacts")
	s.Artifacts = ArtifactSettings{
		Dir:    artifacts.String("dir", DefaultArtifactDir),
		S3:     artifacts.String("s3", ""),
		Region: artifacts.String("region", "us-west-2"),
	}

	logs := p.reader("log")
	s.Log.Level = log.InfoLevel
	if name := logs.String("level", ""); name != "" {
		lvl, ok := log.ParseLevel(name)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown log level %q", name))
		}
		s.Log.Level = lvl
	}
	if out := logs.String("output", ""); out != "" {
		s.Log.OutputPaths = strings.Split(out, ",")
	}

	for _, r := range []*reader{chain, keys, anchor, store, artifacts, logs} {
		if r.err != nil {
			return nil, r.err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks settings that are present. Absent capabilities are
// not errors here.
func (s *Settings) Validate() error {
	if s.Anchor.ChunkSize <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("anchor chunk size %d must be positive", s.Anchor.ChunkSize))
	}
	if s.Anchor.MaxPerTx <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("anchor max chunks per transaction %d must be positive", s.Anchor.MaxPerTx))
	}
	if s.Keys != nil {
		if s.Keys.Version < 1 {
			return errors.E(errors.Invalid, fmt.Sprintf("master key version %d must be positive", s.Keys.Version))
		}
		if _, err := encryption.Lookup(s.Keys.Scheme); err != nil {
			return err
		}
	}
	if s.Chain != nil && s.Chain.RPCRate < 0 {
		return errors.E(errors.Invalid, "rpc rate must not be negative")
	}
	switch s.Store.Driver {
	case "memory", "badger":
	case "postgres":
		if s.Store.DSN == "" {
			return errors.E(errors.NotConfigured, "postgres store requires a dsn")
		}
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown store driver %q", s.Store.Driver))
	}
	if s.Artifacts.S3 != "" && !strings.HasPrefix(s.Artifacts.S3, "s3://") {
		return errors.E(errors.Invalid, fmt.Sprintf("artifact location %q is not an s3:// URL", s.Artifacts.S3))
	}
	return nil
}
