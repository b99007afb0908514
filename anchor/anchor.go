// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package anchor writes documents to the ledger.
//
// Anchoring is write-once. A document that already has chunks on the
// ledger, or an on-chain record with a non-zero submitter, is rejected
// with errors.Conflict before anything is sent. An anchoring run
// submits its transactions strictly in sequence and records each one
// in the store as soon as the node accepts it. The first failure stops
// the run; nothing is retried, and the transactions already recorded
// are reported in the Result returned with the error.
package anchor

import (
	"context"
	"fmt"

	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/config"
	"github.com/esims/chainvault/contract"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/digest"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/eventlog"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/txreport"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// Gateway is the ledger surface used for anchoring. It is implemented
// by *contract.Gateway.
type Gateway interface {
	GetRecord(ctx context.Context, docID int64) (contract.Record, error)
	RecordSubmission(ctx context.Context, docID, projectID int64, contentRef, checksum string) (chain.Submission, error)
	AddFileHash(ctx context.Context, docID int64, hash string) (chain.Submission, error)
	AddRawChunks(ctx context.Context, docID int64, chunks [][]byte) (chain.Submission, error)
	AddEncryptedChunks(ctx context.Context, docID int64, payloads [][]byte) (chain.Submission, error)
	RawChunkCount(ctx context.Context, docID int64) (int64, error)
	EncryptedChunkCount(ctx context.Context, docID int64) (int64, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Options control an anchoring run.
type Options struct {
	// ChunkSize is the plaintext chunk size in bytes.
	ChunkSize int
	// MaxPerTx is the number of chunks submitted per transaction.
	MaxPerTx int
	// Scheme is the key protection scheme for encrypted anchoring.
	Scheme string
	// Register submits recordSubmission before the chunks when the
	// document has no on-chain record.
	Register bool
	// AnchorHash submits the document's SHA-256 with addFileHash
	// before the chunks.
	AnchorHash bool
}

// DefaultOptions returns options with the default chunk size, one
// chunk per transaction, and registration enabled.
func DefaultOptions() Options {
	return Options{
		ChunkSize: encryption.DefaultChunkSize,
		MaxPerTx:  1,
		Scheme:    encryption.WrapScheme,
		Register:  true,
	}
}

// OptionsFrom returns the options configured by s.
func OptionsFrom(s *config.Settings) Options {
	o := DefaultOptions()
	o.ChunkSize = s.Anchor.ChunkSize
	o.MaxPerTx = s.Anchor.MaxPerTx
	o.Register = s.Anchor.Register
	o.AnchorHash = s.Anchor.AnchorHash
	if s.Keys != nil && s.Keys.Scheme != "" {
		o.Scheme = s.Keys.Scheme
	}
	return o
}

func (o Options) validate() error {
	if o.ChunkSize <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("chunk size %d", o.ChunkSize))
	}
	if o.MaxPerTx <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("max chunks per transaction %d", o.MaxPerTx))
	}
	return nil
}

// RegistrationState describes what happened to the register-if-absent
// step of a run.
type RegistrationState int

const (
	// RegistrationDisabled means registration was not requested or the
	// run stopped before it.
	RegistrationDisabled RegistrationState = iota
	// RegistrationSubmitted means recordSubmission was broadcast and
	// recorded.
	RegistrationSubmitted
	// RegistrationFailed means recordSubmission could not be broadcast.
	// The run continued without it.
	RegistrationFailed
)

func (s RegistrationState) String() string {
	switch s {
	case RegistrationSubmitted:
		return "submitted"
	case RegistrationFailed:
		return "failed"
	default:
		return "disabled"
	}
}

// Registration is the outcome of the register-if-absent step.
type Registration struct {
	State  RegistrationState
	TxHash string
	// Err is the broadcast failure when State is RegistrationFailed.
	Err error
}

// Result reports the progress of an anchoring run. It is meaningful
// whether or not the run failed.
type Result struct {
	DocumentID     int64
	BatchID        string
	ChunkCount     int
	ChunksAnchored int
	// TxHashes lists the chunk and file-hash transactions in
	// submission order.
	TxHashes     []string
	Registration Registration
}

// Complete tells whether every chunk was anchored.
func (r Result) Complete() bool {
	return r.ChunkCount > 0 && r.ChunksAnchored == r.ChunkCount
}

// Anchorer runs anchoring. It holds no per-run state and is safe for
// concurrent use; runs for the same signing account serialize their
// submissions in the chain client.
type Anchorer struct {
	gateway Gateway
	store   store.Store
	master  *encryption.MasterKey
	opts    Options
	log     *log.Logger
	events  eventlog.Eventer
}

// New returns an anchorer. master may be nil, in which case only raw
// anchoring is available.
func New(g Gateway, st store.Store, master *encryption.MasterKey, opts Options, logger *log.Logger, events eventlog.Eventer) *Anchorer {
	return &Anchorer{
		gateway: g,
		store:   st,
		master:  master,
		opts:    opts,
		log:     log.OrNop(logger),
		events:  eventlog.OrNop(events),
	}
}

// WithOptions returns an anchorer that shares a's dependencies but
// runs with opts.
func (a *Anchorer) WithOptions(opts Options) *Anchorer {
	b := *a
	b.opts = opts
	return &b
}

// Options returns the options a runs with.
func (a *Anchorer) Options() Options {
	return a.opts
}

// run is the state of one anchoring run.
type run struct {
	*Anchorer
	doc    store.Document
	method string
	res    Result

	// saveChecksum is set when the document's checksum was computed
	// from the content and must be stored.
	saveChecksum bool
}

// Anchor splits plaintext into chunks, encrypts them under a fresh
// data key protected by the configured scheme, and appends them to
// the document's encrypted chunks. The document's key material is
// stored with the last chunk transaction.
func (a *Anchorer) Anchor(ctx context.Context, docID int64, plaintext []byte) (Result, error) {
	ctx, _ = log.NewRun(log.WithDocument(ctx, docID))
	if a.master == nil {
		return Result{DocumentID: docID}, errors.E(errors.NotConfigured, "master key")
	}
	r, err := a.begin(ctx, docID, plaintext, contract.MethodAddEncryptedChunks)
	if err != nil {
		return r.res, err
	}
	if r.doc.Encrypted() {
		return r.res, errors.E(errors.Conflict, fmt.Sprintf("document %d is already anchored", docID))
	}
	if err := r.guard(ctx, a.gateway.EncryptedChunkCount); err != nil {
		return r.res, err
	}
	sealed, err := encryption.SealDocument(a.opts.Scheme, *a.master, plaintext, a.opts.ChunkSize)
	if err != nil {
		return r.res, err
	}
	r.res.ChunkCount = len(sealed.Payloads)
	material := sealed.Material
	return r.submit(ctx, sealed.Payloads, store.Anchoring{Material: &material, ChunkSize: sealed.ChunkSize}, a.gateway.AddEncryptedChunks)
}

// AnchorRaw appends plaintext to the document's unencrypted chunks.
// It records the chunk size but no key material.
func (a *Anchorer) AnchorRaw(ctx context.Context, docID int64, plaintext []byte) (Result, error) {
	ctx, _ = log.NewRun(log.WithDocument(ctx, docID))
	r, err := a.begin(ctx, docID, plaintext, contract.MethodAddFileChunks)
	if err != nil {
		return r.res, err
	}
	if err := r.guard(ctx, a.gateway.RawChunkCount); err != nil {
		return r.res, err
	}
	chunks, err := encryption.Split(plaintext, a.opts.ChunkSize)
	if err != nil {
		return r.res, err
	}
	r.res.ChunkCount = len(chunks)
	return r.submit(ctx, chunks, store.Anchoring{ChunkSize: a.opts.ChunkSize}, a.gateway.AddRawChunks)
}

// begin checks everything that does not need the ledger.
func (a *Anchorer) begin(ctx context.Context, docID int64, plaintext []byte, method string) (*run, error) {
	r := &run{Anchorer: a, method: method, res: Result{DocumentID: docID}}
	if err := a.opts.validate(); err != nil {
		return r, err
	}
	if len(plaintext) == 0 {
		return r, errors.E(errors.Invalid, "empty document")
	}
	doc, err := a.store.Document(ctx, docID)
	if err != nil {
		return r, err
	}
	sum := digest.FromBytes(plaintext)
	if doc.Checksum == "" {
		doc.Checksum = sum.Hex()
		r.saveChecksum = true
	} else {
		want, err := digest.Parse(doc.Checksum)
		if err != nil {
			return r, errors.E(fmt.Sprintf("document %d checksum", docID), err)
		}
		if want != sum {
			return r, errors.E(errors.Integrity, fmt.Sprintf("document %d checksum %s does not match content %s", docID, want.Short(), sum.Short()))
		}
	}
	r.doc = doc
	return r, nil
}

// guard enforces write-once against the ledger.
func (r *run) guard(ctx context.Context, count func(context.Context, int64) (int64, error)) error {
	id := r.doc.ID
	n, err := count(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.E(errors.Conflict, fmt.Sprintf("document %d already has %d chunks on the ledger", id, n))
	}
	rec, err := r.gateway.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Exists() {
		return errors.E(errors.Conflict, fmt.Sprintf("document %d is already registered by %s", id, rec.Submitter.Hex()))
	}
	return nil
}

// submit runs the ledger writes of a run: registration, the file hash,
// then the chunk batches. The last batch is recorded together with the
// anchoring metadata.
func (r *run) submit(ctx context.Context, chunks [][]byte, meta store.Anchoring, add func(context.Context, int64, [][]byte) (chain.Submission, error)) (Result, error) {
	id := r.doc.ID
	r.res.BatchID = uuid.New().String()
	r.log.Info(ctx, "anchoring document", "method", r.method, "chunks", len(chunks), "batch", r.res.BatchID)
	if r.saveChecksum {
		if err := r.store.PutDocument(ctx, r.doc); err != nil {
			return r.res, errors.E("recording document checksum", err)
		}
	}

	if r.opts.Register {
		if err := r.register(ctx); err != nil {
			return r.abort(ctx, err)
		}
	}
	if r.opts.AnchorHash {
		s, err := r.gateway.AddFileHash(ctx, id, r.doc.Checksum)
		if err != nil {
			return r.abort(ctx, errors.E("anchoring file hash", err))
		}
		if err := r.confirm(ctx, s, nil); err != nil {
			return r.abort(ctx, err)
		}
	}
	batches := encryption.Batches(chunks, r.opts.MaxPerTx)
	for i, batch := range batches {
		s, err := add(ctx, id, batch)
		if err != nil {
			return r.abort(ctx, errors.E(fmt.Sprintf("batch %d of %d", i+1, len(batches)), err))
		}
		var last *store.Anchoring
		if i == len(batches)-1 {
			last = &meta
		}
		if err := r.confirm(ctx, s, last); err != nil {
			return r.abort(ctx, errors.E(fmt.Sprintf("batch %d of %d", i+1, len(batches)), err))
		}
		r.res.ChunksAnchored += len(batch)
		r.events.Event(ctx, eventlog.AnchorBatch, "documentID", id, "batchID", r.res.BatchID,
			"index", i, "chunks", len(batch), "txHash", s.Hash.Hex(), "gasFallback", s.GasFallback)
	}
	r.log.Info(ctx, "document anchored", "chunks", r.res.ChunksAnchored, "transactions", len(r.res.TxHashes))
	r.events.Event(ctx, eventlog.AnchorComplete, "documentID", id, "batchID", r.res.BatchID,
		"method", r.method, "chunks", r.res.ChunksAnchored, "transactions", len(r.res.TxHashes))
	return r.res, nil
}

// register submits recordSubmission. A broadcast failure is logged and
// reported in the result; the document may be registered some other
// way. A failure to record a broadcast transaction stops the run.
func (r *run) register(ctx context.Context) error {
	d := r.doc
	s, err := r.gateway.RecordSubmission(ctx, d.ID, d.ProjectID, d.ContentRef, d.Checksum)
	if err != nil {
		r.log.Warn(ctx, "registration failed, continuing", "error", err)
		r.res.Registration = Registration{State: RegistrationFailed, Err: err}
		r.events.Event(ctx, eventlog.Registration, "documentID", d.ID, "state", RegistrationFailed.String())
		return nil
	}
	r.res.Registration = Registration{State: RegistrationSubmitted, TxHash: s.Hash.Hex()}
	t, err := r.store.RecordTransaction(ctx, r.transaction(s))
	if err != nil {
		return errors.E("recording registration", s.Hash.Hex(), err)
	}
	if err := r.store.SetStatus(ctx, d.ID, store.StatusSubmitted); err != nil {
		return err
	}
	r.events.Event(ctx, eventlog.Registration, "documentID", d.ID, "state", RegistrationSubmitted.String(), "txHash", s.Hash.Hex())
	if rcpt, err := txreport.Confirm(ctx, r.store, r.gateway, t); err != nil {
		return err
	} else if txreport.Reverted(rcpt) {
		r.log.Warn(ctx, "registration reverted", "tx", s.Hash.Hex())
	}
	return nil
}

func (r *run) transaction(s chain.Submission) store.Transaction {
	return store.Transaction{
		DocumentID: r.doc.ID,
		Method:     s.Method,
		TxHash:     s.Hash.Hex(),
		BatchID:    r.res.BatchID,
	}
}

// confirm records a broadcast transaction, with meta if it is the
// last of the run, then waits for it to be mined. A reverted
// transaction stops the run.
func (r *run) confirm(ctx context.Context, s chain.Submission, meta *store.Anchoring) error {
	var (
		t   store.Transaction
		err error
	)
	if meta != nil {
		t, err = r.store.CompleteAnchoring(ctx, r.doc.ID, *meta, r.transaction(s))
		if err != nil {
			// The transaction is on the ledger even when the metadata is
			// refused, for example after a concurrent run completed first.
			if t, rerr := r.store.RecordTransaction(ctx, r.transaction(s)); rerr == nil {
				r.res.TxHashes = append(r.res.TxHashes, t.TxHash)
			} else {
				r.log.Error(ctx, "recording transaction", "tx", s.Hash.Hex(), "error", rerr)
			}
			return errors.E("recording anchoring metadata", s.Hash.Hex(), err)
		}
	} else if t, err = r.store.RecordTransaction(ctx, r.transaction(s)); err != nil {
		return errors.E("recording transaction", s.Hash.Hex(), err)
	}
	r.res.TxHashes = append(r.res.TxHashes, t.TxHash)
	rcpt, err := txreport.Confirm(ctx, r.store, r.gateway, t)
	if err != nil {
		return err
	}
	if txreport.Reverted(rcpt) {
		return errors.E(errors.Remote, fmt.Sprintf("%s transaction %s reverted", s.Method, t.TxHash))
	}
	return nil
}

func (r *run) abort(ctx context.Context, err error) (Result, error) {
	r.log.Error(ctx, "anchoring stopped", "chunks", r.res.ChunksAnchored, "of", r.res.ChunkCount,
		"transactions", len(r.res.TxHashes), "error", err)
	r.events.Event(ctx, eventlog.AnchorAborted, "documentID", r.doc.ID, "batchID", r.res.BatchID,
		"chunksAnchored", r.res.ChunksAnchored, "chunkCount", r.res.ChunkCount, "error", err.Error())
	return r.res, err
}
