// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/esims/chainvault/cmdutil"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/digest"
	"v.io/x/lib/cmdline"
)

func (c *cli) newCmdChunk() *cmdline.Command {
	var size, maxPerTx int
	cmd := &cmdline.Command{
		Name:     "chunk",
		Short:    "Show how a file would be chunked",
		ArgsName: "<file>",
		Long: `
Chunk prints the chunks and transactions anchoring the file would
produce, without contacting the ledger or the store.
`,
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, args []string) error {
		if len(args) != 1 {
			return env.UsageErrorf("chunk: expected a file")
		}
		data, err := readFile(args[0])
		if err != nil {
			return err
		}
		chunks, err := encryption.Split(data, size)
		if err != nil {
			return err
		}
		batches := encryption.Batches(chunks, maxPerTx)
		cmdutil.Field(env.Stdout, 12, "bytes", len(data))
		cmdutil.Field(env.Stdout, 12, "sha256", digest.FromBytes(data).Hex())
		cmdutil.Field(env.Stdout, 12, "chunks", len(chunks))
		cmdutil.Field(env.Stdout, 12, "transactions", len(batches))
		tw := tabwriter.NewWriter(env.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tBYTES\tPAYLOAD\tSHA256")
		for i, chunk := range chunks {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", i, len(chunk), len(chunk)+encryption.MinPayloadSize, digest.FromBytes(chunk).Short())
		}
		return tw.Flush()
	})
	cmd.Flags.IntVar(&size, "size", encryption.DefaultChunkSize, "chunk size in bytes")
	cmd.Flags.IntVar(&maxPerTx, "max-per-tx", 1, "chunks per transaction")
	return cmd
}
