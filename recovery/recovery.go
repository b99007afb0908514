// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package recovery reads anchored documents back from the ledger.
//
// Recovery is read-only with respect to the ledger. It either returns
// the complete document, written as a new artifact, or fails without
// writing anything: the key version is checked before any chunk is
// read, every payload is checked as it is read, and the reassembled
// bytes must match the document's checksum.
package recovery

import (
	"context"
	"fmt"

	"github.com/esims/chainvault/artifact"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/digest"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/eventlog"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/store"
)

// Gateway is the ledger surface used for recovery. It is implemented
// by *contract.Gateway.
type Gateway interface {
	EncryptedChunkCount(ctx context.Context, docID int64) (int64, error)
	ReadEncryptedChunk(ctx context.Context, docID, index int64) ([]byte, error)
	RawChunkCount(ctx context.Context, docID int64) (int64, error)
	ReadRawChunk(ctx context.Context, docID, index int64) ([]byte, error)
}

// Caller describes who asks for a recovery.
type Caller struct {
	// Key is the master key presented by the caller, if any.
	Key *encryption.MasterKey
	// Privileged callers without a key of their own recover with the
	// profile key held by the Recoverer.
	Privileged bool
}

// Result describes a successful recovery.
type Result struct {
	DocumentID int64
	// Bytes is the size of the recovered document.
	Bytes      int
	ChunkCount int
	// Ref locates the artifact the document was written to.
	Ref string
}

// Recoverer runs recoveries. It is safe for concurrent use.
type Recoverer struct {
	gateway   Gateway
	store     store.Store
	artifacts artifact.Store
	profile   *encryption.MasterKey
	log       *log.Logger
	events    eventlog.Eventer
}

// New returns a recoverer. profile is the key used for privileged
// callers that present none; it may be nil.
func New(g Gateway, st store.Store, artifacts artifact.Store, profile *encryption.MasterKey, logger *log.Logger, events eventlog.Eventer) *Recoverer {
	return &Recoverer{
		gateway:   g,
		store:     st,
		artifacts: artifacts,
		profile:   profile,
		log:       log.OrNop(logger),
		events:    eventlog.OrNop(events),
	}
}

func (r *Recoverer) key(c Caller) (encryption.MasterKey, error) {
	switch {
	case c.Key != nil:
		return *c.Key, nil
	case !c.Privileged:
		return encryption.MasterKey{}, errors.E(errors.NotAllowed, "a master key is required")
	case r.profile == nil:
		return encryption.MasterKey{}, errors.E(errors.NotConfigured, "profile master key")
	default:
		return *r.profile, nil
	}
}

// Recover reads the document's encrypted chunks, opens them with the
// caller's key and stores the plaintext as a new artifact. The
// document's recovered reference is updated on success.
func (r *Recoverer) Recover(ctx context.Context, docID int64, c Caller) (Result, error) {
	ctx, _ = log.NewRun(log.WithDocument(ctx, docID))
	doc, err := r.store.Document(ctx, docID)
	if err != nil {
		return Result{}, err
	}
	m, err := doc.Material()
	if err != nil {
		return Result{}, err
	}
	key, err := r.key(c)
	if err != nil {
		return Result{}, err
	}
	if err := encryption.CheckVersion(m, key); err != nil {
		return Result{}, err
	}
	payloads, err := readAll(ctx, docID, r.gateway.EncryptedChunkCount, r.gateway.ReadEncryptedChunk, encryption.CheckPayload)
	if err != nil {
		return Result{}, err
	}
	plaintext, err := encryption.OpenDocument(key, m, payloads)
	if err != nil {
		r.log.Error(ctx, "recovery failed", "scheme", m.Scheme, "error", err)
		return Result{}, err
	}
	return r.persist(ctx, doc, plaintext, len(payloads), m.Scheme)
}

// RecoverRaw reassembles the document's raw chunks and stores them as
// a new artifact. No key is needed.
func (r *Recoverer) RecoverRaw(ctx context.Context, docID int64) (Result, error) {
	ctx, _ = log.NewRun(log.WithDocument(ctx, docID))
	doc, err := r.store.Document(ctx, docID)
	if err != nil {
		return Result{}, err
	}
	chunks, err := readAll(ctx, docID, r.gateway.RawChunkCount, r.gateway.ReadRawChunk, nil)
	if err != nil {
		return Result{}, err
	}
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	plaintext := make([]byte, 0, n)
	for _, c := range chunks {
		plaintext = append(plaintext, c...)
	}
	return r.persist(ctx, doc, plaintext, len(chunks), "raw")
}

func (r *Recoverer) persist(ctx context.Context, doc store.Document, plaintext []byte, chunks int, scheme string) (Result, error) {
	if doc.Checksum != "" {
		want, err := digest.Parse(doc.Checksum)
		if err != nil {
			return Result{}, errors.E(fmt.Sprintf("document %d checksum", doc.ID), err)
		}
		if got := digest.FromBytes(plaintext); got != want {
			return Result{}, errors.E(errors.Integrity,
				fmt.Sprintf("recovered document %d has checksum %s, want %s", doc.ID, got.Short(), want.Short()))
		}
	}
	ref, err := r.artifacts.Put(ctx, artifact.Name(doc.ID), plaintext)
	if err != nil {
		return Result{}, errors.E("writing recovered artifact", err)
	}
	if err := r.store.SetRecoveredRef(ctx, doc.ID, ref); err != nil {
		return Result{}, err
	}
	res := Result{DocumentID: doc.ID, Bytes: len(plaintext), ChunkCount: chunks, Ref: ref}
	r.log.Info(ctx, "recovered document", "bytes", res.Bytes, "chunks", chunks, "ref", ref)
	r.events.Event(ctx, eventlog.Recovery, "documentID", doc.ID, "scheme", scheme,
		"bytes", res.Bytes, "chunks", chunks, "ref", ref)
	return res, nil
}

// MaxChunks bounds the chunk count a document may report. A larger
// count is treated as corrupt ledger data.
const MaxChunks = 1 << 20

// readAll reads chunks 0..count-1 in order. check, if set, validates
// each chunk as it arrives; the first failure stops the read.
func readAll(
	ctx context.Context, docID int64,
	count func(context.Context, int64) (int64, error),
	read func(context.Context, int64, int64) ([]byte, error),
	check func([]byte) error,
) ([][]byte, error) {
	n, err := count(ctx, docID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errors.E(errors.NotExist, "no chunks found", fmt.Sprintf("document %d", docID))
	}
	if n > MaxChunks {
		return nil, errors.E(errors.InvalidPayload,
			fmt.Sprintf("document %d reports %d chunks, more than the limit of %d", docID, n, MaxChunks))
	}
	chunks := make([][]byte, 0, min(n, 1024))
	for i := 0; i < int(n); i++ {
		p, err := read(ctx, docID, int64(i))
		if err != nil {
			return nil, encryption.AtIndex(i, err)
		}
		if check != nil {
			if err := check(p); err != nil {
				return nil, encryption.AtIndex(i, err)
			}
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}
