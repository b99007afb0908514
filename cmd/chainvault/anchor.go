// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/esims/chainvault/anchor"
	"github.com/esims/chainvault/cmdutil"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/store"
	"v.io/x/lib/cmdline"
)

func (c *cli) newCmdAnchor() *cmdline.Command {
	var (
		raw       bool
		scheme    string
		chunkSize int
		maxPerTx  int
		projectID int64
		ref       string
	)
	cmd := &cmdline.Command{
		Name:     "anchor",
		Short:    "Anchor a document's chunks to the ledger",
		ArgsName: "<document id> <file>",
		Long: `
Anchor splits the file into chunks, encrypts them and appends them to
the document's encrypted chunks on the ledger. A document that already
has chunks or an on-chain record is not anchored again.

The document is created in the store if it does not exist. If anchoring
stops partway, the transactions already sent are printed and kept in
the store; nothing is retried.
`,
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 2 {
			return env.UsageErrorf("anchor: expected a document id and a file")
		}
		id, err := docID(env, args[0])
		if err != nil {
			return err
		}
		data, err := readFile(args[1])
		if err != nil {
			return err
		}
		g, err := a.requireChain()
		if err != nil {
			return err
		}
		if _, err := a.store.Document(ctx, id); errors.Is(errors.NotExist, err) {
			if ref == "" {
				ref = filepath.Base(args[1])
			}
			err = a.store.PutDocument(ctx, store.Document{ID: id, ProjectID: projectID, ContentRef: ref})
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		opts := anchor.OptionsFrom(a.settings)
		if scheme != "" {
			opts.Scheme = scheme
		}
		if chunkSize > 0 {
			opts.ChunkSize = chunkSize
		}
		if maxPerTx > 0 {
			opts.MaxPerTx = maxPerTx
		}
		var master *encryption.MasterKey
		if !raw {
			if master, err = a.master(); err != nil {
				return err
			}
		}
		anchorer := anchor.New(g, a.store, master, opts, a.log, a.events)
		var res anchor.Result
		if raw {
			res, err = anchorer.AnchorRaw(ctx, id, data)
		} else {
			res, err = anchorer.Anchor(ctx, id, data)
		}
		printAnchorResult(env, res)
		return err
	})
	cmd.Flags.BoolVar(&raw, "raw", false, "anchor unencrypted chunks")
	cmd.Flags.StringVar(&scheme, "scheme", "", "key protection scheme; defaults to keys.scheme")
	cmd.Flags.IntVar(&chunkSize, "chunk-size", 0, "chunk size in bytes; defaults to anchor.chunk-size")
	cmd.Flags.IntVar(&maxPerTx, "max-per-tx", 0, "chunks per transaction; defaults to anchor.max-per-tx")
	cmd.Flags.Int64Var(&projectID, "project", 0, "project id of a new document")
	cmd.Flags.StringVar(&ref, "ref", "", "content reference of a new document; defaults to the file name")
	return cmd
}

func printAnchorResult(env *cmdline.Env, res anchor.Result) {
	const w = 12
	cmdutil.Field(env.Stdout, w, "document", res.DocumentID)
	if res.BatchID == "" {
		return
	}
	cmdutil.Field(env.Stdout, w, "batch", res.BatchID)
	cmdutil.Field(env.Stdout, w, "chunks", fmt.Sprintf("%d of %d anchored", res.ChunksAnchored, res.ChunkCount))
	reg := res.Registration.State.String()
	if res.Registration.TxHash != "" {
		reg += " " + res.Registration.TxHash
	}
	cmdutil.Field(env.Stdout, w, "registration", reg)
	if res.Registration.Err != nil {
		cmdutil.WriteWrappedMessage(env.Stdout, fmt.Sprintf("registration was not sent: %v", res.Registration.Err))
	}
	for _, h := range res.TxHashes {
		cmdutil.Field(env.Stdout, w, "tx", h)
	}
}
