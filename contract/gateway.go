// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package contract provides typed operations on the document
// registry contract: registration and review of documents, file hash
// anchoring, raw and encrypted chunk storage, and the corresponding
// reads.
package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/digest"
	"github.com/esims/chainvault/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Chain is the chain client surface used by Gateway. It is
// implemented by *chain.Client.
type Chain interface {
	Transact(ctx context.Context, method string, calldata []byte) (chain.Submission, error)
	Call(ctx context.Context, calldata []byte) ([]byte, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Status is the review status recorded on-chain for a document.
type Status uint8

// Status codes.
const (
	StatusNone Status = iota
	StatusSubmitted
	StatusApproved
	StatusRejected
)

var statusNames = map[Status]string{
	StatusNone:      "none",
	StatusSubmitted: "submitted",
	StatusApproved:  "approved",
	StatusRejected:  "rejected",
}

// Name returns the name of s, or false for codes the registry does
// not define.
func (s Status) Name() (string, bool) {
	name, ok := statusNames[s]
	return name, ok
}

func (s Status) String() string {
	if name, ok := s.Name(); ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Record is a document's on-chain registration.
type Record struct {
	Submitter common.Address
	Status    Status
}

// Exists tells whether the record was ever submitted. The zero
// submitter address means no record exists, whatever the status.
func (r Record) Exists() bool {
	return r.Submitter != (common.Address{})
}

// CheckIndex fails with IndexOutOfRange unless 0 <= index < count.
func CheckIndex(index, count int64) error {
	if index < 0 || index >= count {
		return errors.E(errors.IndexOutOfRange, fmt.Sprintf("chunk index %d, chunk count %d", index, count))
	}
	return nil
}

// Gateway maps registry operations onto a chain client.
type Gateway struct {
	chain Chain
	abi   abi.ABI
}

// New returns a gateway that calls the contract through c, encoding
// calls with a.
func New(c Chain, a abi.ABI) *Gateway {
	return &Gateway{chain: c, abi: a}
}

func (g *Gateway) transact(ctx context.Context, method string, args ...interface{}) (chain.Submission, error) {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return chain.Submission{}, errors.E(errors.Invalid, "encoding "+method, err)
	}
	return g.chain.Transact(ctx, method, data)
}

func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.E(errors.Invalid, "encoding "+method, err)
	}
	out, err := g.chain.Call(ctx, data)
	if err != nil {
		return nil, errors.E(method, err)
	}
	vals, err := g.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.E(errors.ChainUnavailable, "decoding "+method, err)
	}
	return vals, nil
}

// RecordSubmission registers a document with its project, content
// reference and checksum.
func (g *Gateway) RecordSubmission(ctx context.Context, docID, projectID int64, contentRef, checksum string) (chain.Submission, error) {
	return g.transact(ctx, MethodRecordSubmission, big.NewInt(docID), big.NewInt(projectID), contentRef, checksum)
}

// MarkApproved moves a submitted document to approved.
func (g *Gateway) MarkApproved(ctx context.Context, docID int64) (chain.Submission, error) {
	return g.transact(ctx, MethodMarkApproved, big.NewInt(docID))
}

// MarkRejected moves a submitted document to rejected.
func (g *Gateway) MarkRejected(ctx context.Context, docID int64) (chain.Submission, error) {
	return g.transact(ctx, MethodMarkRejected, big.NewInt(docID))
}

// AddFileHash appends a SHA-256 hash, given in hex, to the document's
// file hashes. Hashes that do not decode to 32 bytes are rejected
// before anything is sent.
func (g *Gateway) AddFileHash(ctx context.Context, docID int64, hash string) (chain.Submission, error) {
	d, err := digest.Parse(hash)
	if err != nil {
		return chain.Submission{}, err
	}
	return g.transact(ctx, MethodAddFileHash, big.NewInt(docID), [32]byte(d))
}

// AddRawChunks appends unencrypted chunks in one transaction.
func (g *Gateway) AddRawChunks(ctx context.Context, docID int64, chunks [][]byte) (chain.Submission, error) {
	switch len(chunks) {
	case 0:
		return chain.Submission{}, errors.E(errors.Invalid, "empty chunk batch")
	case 1:
		return g.transact(ctx, MethodAddFileChunk, big.NewInt(docID), chunks[0])
	default:
		return g.transact(ctx, MethodAddFileChunks, big.NewInt(docID), chunks)
	}
}

// AddEncryptedChunks appends sealed chunk payloads in one
// transaction.
func (g *Gateway) AddEncryptedChunks(ctx context.Context, docID int64, payloads [][]byte) (chain.Submission, error) {
	if len(payloads) == 0 {
		return chain.Submission{}, errors.E(errors.Invalid, "empty chunk batch")
	}
	return g.transact(ctx, MethodAddEncryptedChunks, big.NewInt(docID), payloads)
}

// GetRecord reads the document's registration. A document that was
// never registered has a zero submitter; see Record.Exists.
func (g *Gateway) GetRecord(ctx context.Context, docID int64) (Record, error) {
	data, err := g.abi.Pack(MethodGetRecord, big.NewInt(docID))
	if err != nil {
		return Record{}, errors.E(errors.Invalid, "encoding "+MethodGetRecord, err)
	}
	out, err := g.chain.Call(ctx, data)
	if err != nil {
		return Record{}, errors.E(MethodGetRecord, err)
	}
	m := make(map[string]interface{})
	if err := g.abi.UnpackIntoMap(m, MethodGetRecord, out); err != nil {
		return Record{}, errors.E(errors.ChainUnavailable, "decoding "+MethodGetRecord, err)
	}
	submitter, ok1 := m["submitter"].(common.Address)
	status, ok2 := m["status"].(uint8)
	if !ok1 || !ok2 {
		return Record{}, errors.E(errors.ChainUnavailable, fmt.Sprintf("unexpected %s result %v", MethodGetRecord, m))
	}
	return Record{Submitter: submitter, Status: Status(status)}, nil
}

func (g *Gateway) count(ctx context.Context, method string, docID int64) (int64, error) {
	vals, err := g.call(ctx, method, big.NewInt(docID))
	if err != nil {
		return 0, err
	}
	n, ok := vals[0].(*big.Int)
	if !ok || !n.IsInt64() {
		return 0, errors.E(errors.ChainUnavailable, fmt.Sprintf("unexpected %s result %v", method, vals[0]))
	}
	return n.Int64(), nil
}

// read reads chunk index of docID after checking it against the
// chunk count returned by countMethod.
func (g *Gateway) read(ctx context.Context, countMethod, method string, docID, index int64) ([]byte, error) {
	if index < 0 {
		return nil, CheckIndex(index, 0)
	}
	n, err := g.count(ctx, countMethod, docID)
	if err != nil {
		return nil, err
	}
	if err := CheckIndex(index, n); err != nil {
		return nil, errors.E(fmt.Sprintf("document %d", docID), err)
	}
	vals, err := g.call(ctx, method, big.NewInt(docID), big.NewInt(index))
	if err != nil {
		return nil, err
	}
	b, ok := vals[0].([]byte)
	if !ok {
		return nil, errors.E(errors.ChainUnavailable, fmt.Sprintf("unexpected %s result type %T", method, vals[0]))
	}
	return b, nil
}

// RawChunkCount returns the number of raw chunks stored for docID.
func (g *Gateway) RawChunkCount(ctx context.Context, docID int64) (int64, error) {
	return g.count(ctx, MethodGetFileChunkCount, docID)
}

// ReadRawChunk reads one raw chunk. It fails with IndexOutOfRange
// unless index is below RawChunkCount.
func (g *Gateway) ReadRawChunk(ctx context.Context, docID, index int64) ([]byte, error) {
	return g.read(ctx, MethodGetFileChunkCount, MethodReadFileChunk, docID, index)
}

// EncryptedChunkCount returns the number of encrypted chunks stored
// for docID.
func (g *Gateway) EncryptedChunkCount(ctx context.Context, docID int64) (int64, error) {
	return g.count(ctx, MethodGetEncryptedChunkCount, docID)
}

// ReadEncryptedChunk reads one encrypted chunk payload. It fails with
// IndexOutOfRange unless index is below EncryptedChunkCount.
func (g *Gateway) ReadEncryptedChunk(ctx context.Context, docID, index int64) ([]byte, error) {
	return g.read(ctx, MethodGetEncryptedChunkCount, MethodReadEncryptedChunk, docID, index)
}

// WaitMined waits, within the client's receipt timeout, for the
// transaction to be mined. It returns nil, nil on timeout.
func (g *Gateway) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return g.chain.WaitReceipt(ctx, hash)
}
