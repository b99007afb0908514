// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store defines the persistence surface for documents and
// their ledger transaction records. Implementations live in the
// memstore, badgerstore and pgstore subpackages.
//
// A document's cryptographic metadata is written once, by
// CompleteAnchoring, together with the last transaction of a
// successful anchoring run. Transaction records are append-only; the
// only update ever applied to one is the backfill of its block number.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
)

// Document statuses.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Document is the metadata kept for an anchored document. WrappedKey
// and KDFSalt are base64 encoded; exactly one is set once EncScheme is.
type Document struct {
	ID           int64  `json:"id"`
	ProjectID    int64  `json:"project_id"`
	Checksum     string `json:"checksum"`
	ContentRef   string `json:"content_ref"`
	Status       string `json:"status"`
	EncScheme    string `json:"enc_scheme,omitempty"`
	KeyVersion   int    `json:"key_version,omitempty"`
	WrappedKey   string `json:"wrapped_key,omitempty"`
	KDFSalt      string `json:"kdf_salt,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	RecoveredRef string `json:"recovered_ref,omitempty"`
}

// Encrypted tells whether the document's crypto metadata is set.
func (d Document) Encrypted() bool {
	return d.EncScheme != ""
}

// Material decodes the document's key material. It fails with
// Precondition if the document was never anchored with encryption.
func (d Document) Material() (encryption.KeyMaterial, error) {
	if !d.Encrypted() {
		return encryption.KeyMaterial{}, errors.E(errors.Precondition,
			fmt.Sprintf("document %d has no encryption metadata", d.ID))
	}
	m := encryption.KeyMaterial{Scheme: d.EncScheme, KeyVersion: d.KeyVersion}
	var err error
	if d.WrappedKey != "" {
		if m.WrappedKey, err = base64.StdEncoding.DecodeString(d.WrappedKey); err != nil {
			return encryption.KeyMaterial{}, errors.E(errors.Invalid, "decoding wrapped key", err)
		}
	}
	if d.KDFSalt != "" {
		if m.Salt, err = base64.StdEncoding.DecodeString(d.KDFSalt); err != nil {
			return encryption.KeyMaterial{}, errors.E(errors.Invalid, "decoding kdf salt", err)
		}
	}
	if err := m.Validate(); err != nil {
		return encryption.KeyMaterial{}, err
	}
	return m, nil
}

// Anchoring is the metadata written when an anchoring run completes.
// Material is nil for raw anchoring.
type Anchoring struct {
	Material  *encryption.KeyMaterial
	ChunkSize int
}

// Apply checks that a may be written to d and returns the updated
// document. Encryption metadata is write-once: applying encrypted
// anchoring to a document that already has it fails with Conflict.
// Raw anchoring only fills in a missing chunk size.
func (a Anchoring) Apply(d Document) (Document, error) {
	if a.ChunkSize <= 0 {
		return d, errors.E(errors.Invalid, fmt.Sprintf("chunk size %d", a.ChunkSize))
	}
	if a.Material == nil {
		if d.ChunkSize == 0 {
			d.ChunkSize = a.ChunkSize
		}
		return d, nil
	}
	if d.Encrypted() {
		return d, errors.E(errors.Conflict, fmt.Sprintf("document %d already has encryption metadata", d.ID))
	}
	if err := a.Material.Validate(); err != nil {
		return d, err
	}
	d.EncScheme = a.Material.Scheme
	d.KeyVersion = a.Material.KeyVersion
	d.WrappedKey, d.KDFSalt = "", ""
	if len(a.Material.WrappedKey) > 0 {
		d.WrappedKey = base64.StdEncoding.EncodeToString(a.Material.WrappedKey)
	}
	if len(a.Material.Salt) > 0 {
		d.KDFSalt = base64.StdEncoding.EncodeToString(a.Material.Salt)
	}
	d.ChunkSize = a.ChunkSize
	return d, nil
}

// Transaction is a record of one broadcast ledger transaction.
type Transaction struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	Method      string    `json:"method"`
	TxHash      string    `json:"tx_hash"`
	BatchID     string    `json:"batch_id,omitempty"`
	BlockNumber *int64    `json:"block_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Mined tells whether the transaction's block number is known.
func (t Transaction) Mined() bool {
	return t.BlockNumber != nil
}

// Store persists documents and transaction records. Implementations
// must be safe for concurrent use.
type Store interface {
	// Document returns the document with the given id, or an error of
	// kind NotExist.
	Document(ctx context.Context, id int64) (Document, error)
	// PutDocument creates or replaces a document's descriptive fields
	// (project, checksum, content reference, status). It never
	// modifies existing encryption metadata.
	PutDocument(ctx context.Context, d Document) error
	// SetStatus updates the document's review status.
	SetStatus(ctx context.Context, id int64, status string) error
	// SetRecoveredRef records the location of the latest recovered
	// artifact.
	SetRecoveredRef(ctx context.Context, id int64, ref string) error

	// RecordTransaction appends a transaction record and returns it
	// with its id and timestamps assigned.
	RecordTransaction(ctx context.Context, t Transaction) (Transaction, error)
	// CompleteAnchoring atomically applies a to the document and
	// records t. Neither takes effect if either fails.
	CompleteAnchoring(ctx context.Context, docID int64, a Anchoring, t Transaction) (Transaction, error)
	// SetBlockNumber backfills the block number of a transaction. It
	// fails with Conflict if a different block number is already set.
	SetBlockNumber(ctx context.Context, txID int64, block int64) error
	// Transactions returns a document's transactions in record order.
	Transactions(ctx context.Context, docID int64) ([]Transaction, error)
	// PendingTransactions returns every transaction without a block
	// number, in record order.
	PendingTransactions(ctx context.Context) ([]Transaction, error)

	Close() error
}

// CheckStatus fails with Invalid unless s is a known document status.
func CheckStatus(s string) error {
	switch s {
	case StatusPending, StatusSubmitted, StatusApproved, StatusRejected:
		return nil
	}
	return errors.E(errors.Invalid, fmt.Sprintf("unknown document status %q", s))
}

// NoDocument returns the error reported for a missing document.
func NoDocument(id int64) error {
	return errors.E(errors.NotExist, fmt.Sprintf("document %d", id))
}

// NoTransaction returns the error reported for a missing transaction.
func NoTransaction(id int64) error {
	return errors.E(errors.NotExist, fmt.Sprintf("transaction %d", id))
}

// BlockConflict returns the error reported when a different block
// number is already recorded.
func BlockConflict(id, have, want int64) error {
	return errors.E(errors.Conflict, fmt.Sprintf("transaction %d already mined at block %d, not %d", id, have, want))
}
