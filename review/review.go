// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package review moves registered documents from submitted to approved
// or rejected, on the ledger and in the store.
package review

import (
	"context"
	"fmt"

	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/contract"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/eventlog"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/txreport"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Gateway is the ledger surface used for review. It is implemented by
// *contract.Gateway.
type Gateway interface {
	GetRecord(ctx context.Context, docID int64) (contract.Record, error)
	MarkApproved(ctx context.Context, docID int64) (chain.Submission, error)
	MarkRejected(ctx context.Context, docID int64) (chain.Submission, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Result describes a review transition.
type Result struct {
	DocumentID int64
	Status     string
	TxHash     string
	// Mined is false when the receipt did not arrive in time; the
	// transaction is left for reconciliation.
	Mined bool
}

// Reviewer submits review transitions.
type Reviewer struct {
	gateway Gateway
	store   store.Store
	log     *log.Logger
	events  eventlog.Eventer
}

// New returns a reviewer.
func New(g Gateway, st store.Store, logger *log.Logger, events eventlog.Eventer) *Reviewer {
	return &Reviewer{gateway: g, store: st, log: log.OrNop(logger), events: eventlog.OrNop(events)}
}

// Approve marks a submitted document approved.
func (r *Reviewer) Approve(ctx context.Context, docID int64) (Result, error) {
	return r.transition(ctx, docID, store.StatusApproved, r.gateway.MarkApproved)
}

// Reject marks a submitted document rejected.
func (r *Reviewer) Reject(ctx context.Context, docID int64) (Result, error) {
	return r.transition(ctx, docID, store.StatusRejected, r.gateway.MarkRejected)
}

func (r *Reviewer) transition(ctx context.Context, docID int64, status string, mark func(context.Context, int64) (chain.Submission, error)) (Result, error) {
	ctx, _ = log.NewRun(log.WithDocument(ctx, docID))
	res := Result{DocumentID: docID, Status: status}
	if _, err := r.store.Document(ctx, docID); err != nil {
		return res, err
	}
	rec, err := r.gateway.GetRecord(ctx, docID)
	if err != nil {
		return res, err
	}
	if !rec.Exists() {
		return res, errors.E(errors.Precondition, fmt.Sprintf("document %d is not registered", docID))
	}
	if rec.Status != contract.StatusSubmitted {
		return res, errors.E(errors.Precondition, fmt.Sprintf("document %d is %s, not submitted", docID, rec.Status))
	}
	s, err := mark(ctx, docID)
	if err != nil {
		return res, err
	}
	res.TxHash = s.Hash.Hex()
	t, err := r.store.RecordTransaction(ctx, store.Transaction{DocumentID: docID, Method: s.Method, TxHash: res.TxHash})
	if err != nil {
		return res, errors.E("recording transaction", res.TxHash, err)
	}
	rcpt, err := txreport.Confirm(ctx, r.store, r.gateway, t)
	if err != nil {
		return res, err
	}
	if txreport.Reverted(rcpt) {
		return res, errors.E(errors.Remote, fmt.Sprintf("%s transaction %s reverted", s.Method, res.TxHash))
	}
	res.Mined = rcpt != nil
	if err := r.store.SetStatus(ctx, docID, status); err != nil {
		return res, err
	}
	r.log.Info(ctx, "document reviewed", "status", status, "tx", res.TxHash, "mined", res.Mined)
	r.events.Event(ctx, eventlog.Review, "documentID", docID, "status", status, "txHash", res.TxHash)
	return res, nil
}
