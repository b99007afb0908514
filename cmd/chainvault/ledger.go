// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math/big"
	"text/tabwriter"

	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/cmdutil"
	"github.com/esims/chainvault/review"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/txreport"
	"github.com/ethereum/go-ethereum/params"
	"v.io/x/lib/cmdline"
)

func (c *cli) newCmdStatus() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "status",
		Short:    "Show a document's metadata and ledger state",
		ArgsName: "<document id>",
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 1 {
			return env.UsageErrorf("status: expected a document id")
		}
		id, err := docID(env, args[0])
		if err != nil {
			return err
		}
		d, err := a.store.Document(ctx, id)
		if err != nil {
			return err
		}
		const w = 12
		out := env.Stdout
		cmdutil.Field(out, w, "document", d.ID)
		cmdutil.Field(out, w, "project", d.ProjectID)
		cmdutil.Field(out, w, "status", d.Status)
		cmdutil.Field(out, w, "checksum", d.Checksum)
		if d.Encrypted() {
			cmdutil.Field(out, w, "scheme", d.EncScheme)
			cmdutil.Field(out, w, "key version", d.KeyVersion)
		}
		if d.ChunkSize > 0 {
			cmdutil.Field(out, w, "chunk size", d.ChunkSize)
		}
		if d.RecoveredRef != "" {
			cmdutil.Field(out, w, "recovered", d.RecoveredRef)
		}
		g, err := a.requireChain()
		if err != nil {
			cmdutil.Field(out, w, "ledger", "unavailable")
			return nil
		}
		rec, err := g.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec.Exists() {
			cmdutil.Field(out, w, "on-chain", fmt.Sprintf("%s by %s", rec.Status, rec.Submitter.Hex()))
		} else {
			cmdutil.Field(out, w, "on-chain", "no record")
		}
		enc, err := g.EncryptedChunkCount(ctx, id)
		if err != nil {
			return err
		}
		raw, err := g.RawChunkCount(ctx, id)
		if err != nil {
			return err
		}
		cmdutil.Field(out, w, "chunks", fmt.Sprintf("%d encrypted, %d raw", enc, raw))
		return nil
	})
	return cmd
}

func (c *cli) newCmdReview(name, short string) *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     name,
		Short:    short,
		ArgsName: "<document id>",
		Long: `
The document must have an on-chain record in status submitted. The
transaction is recorded in the store and the document's status is
updated once the node accepts it.
`,
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 1 {
			return env.UsageErrorf("%s: expected a document id", name)
		}
		id, err := docID(env, args[0])
		if err != nil {
			return err
		}
		g, err := a.requireChain()
		if err != nil {
			return err
		}
		r := review.New(g, a.store, a.log, a.events)
		var res review.Result
		if name == "approve" {
			res, err = r.Approve(ctx, id)
		} else {
			res, err = r.Reject(ctx, id)
		}
		if res.TxHash != "" {
			cmdutil.Field(env.Stdout, 8, "tx", res.TxHash)
		}
		if err != nil {
			return err
		}
		cmdutil.Field(env.Stdout, 8, "status", res.Status)
		if !res.Mined {
			cmdutil.WriteWrappedMessage(env.Stdout, "the transaction is not mined yet; run reconcile later")
		}
		return nil
	})
	return cmd
}

func (c *cli) newCmdTxs() *cmdline.Command {
	var enrich bool
	cmd := &cmdline.Command{
		Name:     "txs",
		Short:    "List a document's ledger transactions",
		ArgsName: "<document id>",
		Long: `
Txs lists the transactions recorded for the document in the order they
were sent. With -enrich, each transaction's outcome, gas used, fee and
time to inclusion are looked up on the chain.
`,
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 1 {
			return env.UsageErrorf("txs: expected a document id")
		}
		id, err := docID(env, args[0])
		if err != nil {
			return err
		}
		txs, err := a.store.Transactions(ctx, id)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(env.Stdout, 2, 4, 2, ' ', 0)
		defer tw.Flush()
		if !enrich {
			fmt.Fprintln(tw, "ID\tMETHOD\tTX\tBLOCK\tBATCH")
			for _, t := range txs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Method, t.TxHash, block(t), t.BatchID)
			}
			return nil
		}
		if a.chain == nil {
			return a.chainErr
		}
		reports, err := txreport.Enrich(ctx, a.chain, txs, 0)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tMETHOD\tTX\tBLOCK\tSTATUS\tGAS\tFEE (GWEI)\tSPEED")
		for _, r := range reports {
			if !r.Mined() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t-\tpending\t-\t-\t-\n", r.ID, r.Method, r.TxHash)
				continue
			}
			status := "ok"
			if !r.Succeeded() {
				status = "reverted"
			}
			d := r.Details
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%s\t%s\n", r.ID, r.Method, r.TxHash,
				d.BlockNumber, status, d.GasUsed, gwei(d), r.Speed)
		}
		return nil
	})
	cmd.Flags.BoolVar(&enrich, "enrich", false, "look up each transaction on the chain")
	return cmd
}

func block(t store.Transaction) string {
	if !t.Mined() {
		return "-"
	}
	return fmt.Sprint(*t.BlockNumber)
}

func gwei(d *chain.Details) string {
	if d.Fee == nil {
		return "-"
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(d.Fee), big.NewFloat(params.GWei)).Float64()
	return fmt.Sprintf("%.6f", f)
}

func (c *cli) newCmdReconcile() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "reconcile",
		Short: "Backfill block numbers of pending transactions",
		Long: `
Reconcile looks up every transaction recorded without a block number
and records the block it was mined in. Transactions that are still not
mined are left pending.
`,
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 0 {
			return env.UsageErrorf("reconcile: unexpected arguments")
		}
		if a.chain == nil {
			return a.chainErr
		}
		r := &txreport.Reconciler{Store: a.store, Chain: a.chain, Log: a.log, Events: a.events}
		res, err := r.Reconcile(ctx)
		if err != nil {
			return err
		}
		cmdutil.Field(env.Stdout, 10, "checked", res.Checked)
		cmdutil.Field(env.Stdout, 10, "backfilled", res.Backfilled)
		cmdutil.Field(env.Stdout, 10, "reverted", res.Reverted)
		return nil
	})
	return cmd
}
