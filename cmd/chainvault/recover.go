// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/esims/chainvault/cmdutil"
	"github.com/esims/chainvault/config"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/recovery"
	"v.io/x/lib/cmdline"
)

func (c *cli) newCmdRecover() *cmdline.Command {
	var (
		raw        bool
		key        string
		keyVersion int
		privileged bool
	)
	cmd := &cmdline.Command{
		Name:     "recover",
		Short:    "Recover a document from its ledger chunks",
		ArgsName: "<document id>",
		Long: `
Recover reads the document's chunks from the ledger, decrypts them and
writes the document to a new artifact under artifacts.dir, or
artifacts.s3 when set. The original upload is never overwritten.

The master key is given with -key. With -privileged and no -key, the
configured keys.master-key is used.
`,
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 1 {
			return env.UsageErrorf("recover: expected a document id")
		}
		id, err := docID(env, args[0])
		if err != nil {
			return err
		}
		g, err := a.requireChain()
		if err != nil {
			return err
		}
		artifacts, err := a.artifacts()
		if err != nil {
			return err
		}
		var caller recovery.Caller
		if key != "" {
			k, err := (&config.KeySettings{MasterKey: key, Version: keyVersion}).Master()
			if err != nil {
				return err
			}
			caller.Key = &k
		}
		var profile *encryption.MasterKey
		if privileged {
			caller.Privileged = true
			if profile, err = a.master(); err != nil {
				return err
			}
		}
		r := recovery.New(g, a.store, artifacts, profile, a.log, a.events)
		var res recovery.Result
		if raw {
			res, err = r.RecoverRaw(ctx, id)
		} else {
			res, err = r.Recover(ctx, id, caller)
		}
		if err != nil {
			return err
		}
		cmdutil.Field(env.Stdout, 8, "document", res.DocumentID)
		cmdutil.Field(env.Stdout, 8, "chunks", res.ChunkCount)
		cmdutil.Field(env.Stdout, 8, "bytes", res.Bytes)
		cmdutil.Field(env.Stdout, 8, "artifact", res.Ref)
		return nil
	})
	cmd.Flags.BoolVar(&raw, "raw", false, "recover unencrypted chunks")
	cmd.Flags.StringVar(&key, "key", "", "master key: hex, base64, env://NAME or file:///path")
	cmd.Flags.IntVar(&keyVersion, "key-version", 1, "version of the master key given with -key")
	cmd.Flags.BoolVar(&privileged, "privileged", false, "use the configured master key when -key is not given")
	return cmd
}

func (c *cli) newCmdVerify() *cmdline.Command {
	var raw bool
	cmd := &cmdline.Command{
		Name:     "verify",
		Short:    "Compare a local file with a document",
		ArgsName: "<document id> <file>",
		Long: `
Verify compares the SHA-256 of the file with the document's checksum.
With -raw it also compares the file with the document's raw chunks on
the ledger, chunk by chunk. It fails if anything differs.
`,
	}
	cmd.Runner = c.run(func(ctx context.Context, a *app, env *cmdline.Env, args []string) error {
		if len(args) != 2 {
			return env.UsageErrorf("verify: expected a document id and a file")
		}
		id, err := docID(env, args[0])
		if err != nil {
			return err
		}
		data, err := readFile(args[1])
		if err != nil {
			return err
		}
		var g recovery.Gateway
		if raw {
			if g, err = a.requireChain(); err != nil {
				return err
			}
		}
		v := recovery.NewVerifier(g, a.store)
		sum, err := v.VerifyChecksum(ctx, id, data)
		if err != nil {
			return err
		}
		cmdutil.Field(env.Stdout, 10, "checksum", match(sum.Match()))
		ok := sum.Match()
		if raw {
			rep, err := v.VerifyRaw(ctx, id, data)
			if err != nil {
				return err
			}
			cmdutil.Field(env.Stdout, 10, "chunks", fmt.Sprintf("%d of %d match", rep.Matched, rep.ChunkCount))
			if len(rep.Mismatched) > 0 {
				cmdutil.Field(env.Stdout, 10, "mismatched", rep.Mismatched)
			}
			if rep.Leftover > 0 {
				cmdutil.Field(env.Stdout, 10, "leftover", fmt.Sprintf("%d bytes", rep.Leftover))
			}
			ok = ok && rep.Match()
		}
		if !ok {
			return errors.E(errors.Integrity, fmt.Sprintf("%s does not match document %d", args[1], id))
		}
		return nil
	})
	cmd.Flags.BoolVar(&raw, "raw", false, "also compare with the raw chunks on the ledger")
	return cmd
}

func match(ok bool) string {
	if ok {
		return "match"
	}
	return "MISMATCH"
}
