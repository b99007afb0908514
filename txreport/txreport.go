// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package txreport confirms, enriches and reconciles ledger
// transaction records. Enrichment is computed from the chain on every
// read and never stored; the only write is the backfill of a record's
// block number once its transaction is mined.
package txreport

import (
	"context"
	"time"

	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/eventlog"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent chain lookups in Enrich.
const DefaultParallelism = 8

// Waiter waits, for a bounded time, for a transaction to be mined. It
// is implemented by *contract.Gateway.
type Waiter interface {
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Chain looks up transaction outcomes without waiting. It is
// implemented by *chain.Client.
type Chain interface {
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Details(ctx context.Context, hash common.Hash) (*chain.Details, error)
}

// Confirm waits for t to be mined and backfills its block number. It
// returns nil, nil if no receipt arrived within the waiter's timeout;
// the record stays pending for Reconcile.
func Confirm(ctx context.Context, st store.Store, w Waiter, t store.Transaction) (*types.Receipt, error) {
	r, err := w.WaitMined(ctx, common.HexToHash(t.TxHash))
	if err != nil || r == nil {
		return nil, err
	}
	if err := backfill(ctx, st, t, r); err != nil {
		return r, err
	}
	return r, nil
}

func backfill(ctx context.Context, st store.Store, t store.Transaction, r *types.Receipt) error {
	if r.BlockNumber == nil || !r.BlockNumber.IsInt64() {
		return errors.E(errors.ChainUnavailable, "receipt without block number", t.TxHash)
	}
	if err := st.SetBlockNumber(ctx, t.ID, r.BlockNumber.Int64()); err != nil {
		return errors.E("recording block number", t.TxHash, err)
	}
	return nil
}

// Reverted tells whether r records a failed execution.
func Reverted(r *types.Receipt) bool {
	return r != nil && r.Status == types.ReceiptStatusFailed
}

// Report is a transaction record with its on-chain outcome.
type Report struct {
	store.Transaction
	// Details is nil while the transaction is not mined.
	Details *chain.Details
	// Speed is the time from recording to inclusion; zero when unknown.
	Speed time.Duration
}

// Mined tells whether the transaction's outcome is known.
func (r Report) Mined() bool {
	return r.Details != nil
}

// Succeeded tells whether the transaction was mined and did not
// revert.
func (r Report) Succeeded() bool {
	return r.Details != nil && r.Details.Status == types.ReceiptStatusSuccessful
}

// Enrich looks up the outcome of each transaction, with at most
// parallelism lookups in flight; parallelism <= 0 means
// DefaultParallelism. A failed lookup fails the whole call.
func Enrich(ctx context.Context, c Chain, txs []store.Transaction, parallelism int) ([]Report, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	reports := make([]Report, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range txs {
		i := i
		g.Go(func() error {
			t := txs[i]
			d, err := c.Details(gctx, common.HexToHash(t.TxHash))
			if err != nil {
				return errors.E("looking up", t.TxHash, err)
			}
			reports[i] = Report{Transaction: t, Details: d}
			if d != nil && !d.MinedAt.IsZero() && !t.CreatedAt.IsZero() {
				reports[i].Speed = d.MinedAt.Sub(t.CreatedAt)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// ReconcileResult counts the work of a Reconcile call.
type ReconcileResult struct {
	Checked    int
	Backfilled int
	Reverted   int
}

// Reconciler backfills block numbers of pending transaction records,
// typically those whose receipt polling timed out.
type Reconciler struct {
	Store  store.Store
	Chain  Chain
	Log    *log.Logger
	Events eventlog.Eventer
}

// Reconcile checks every pending record once. Transactions that are
// still not mined are left pending.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	logger := log.OrNop(r.Log)
	var res ReconcileResult
	pending, err := r.Store.PendingTransactions(ctx)
	if err != nil {
		return res, err
	}
	for _, t := range pending {
		rcpt, err := r.Chain.Receipt(ctx, common.HexToHash(t.TxHash))
		if err != nil {
			return res, errors.E("reconciling", t.TxHash, err)
		}
		res.Checked++
		if rcpt == nil {
			continue
		}
		if err := backfill(ctx, r.Store, t, rcpt); err != nil {
			return res, err
		}
		res.Backfilled++
		if Reverted(rcpt) {
			res.Reverted++
			logger.Warn(ctx, "reconciled transaction reverted", "tx", t.TxHash, "document", t.DocumentID)
		}
	}
	logger.Info(ctx, "reconciled pending transactions", "checked", res.Checked, "backfilled", res.Backfilled)
	eventlog.OrNop(r.Events).Event(ctx, eventlog.Reconcile, "checked", res.Checked, "backfilled", res.Backfilled, "reverted", res.Reverted)
	return res, nil
}
