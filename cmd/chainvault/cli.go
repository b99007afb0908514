// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/esims/chainvault/artifact"
	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/cmdutil"
	"github.com/esims/chainvault/config"
	"github.com/esims/chainvault/contract"
	"github.com/esims/chainvault/crypto/encryption"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/eventlog"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/store"
	"github.com/esims/chainvault/store/badgerstore"
	"github.com/esims/chainvault/store/memstore"
	"github.com/esims/chainvault/store/pgstore"
	"v.io/x/lib/cmdline"
)

const defaultProfile = "chainvault.profile"

type cli struct {
	profile *config.Profile
	// dial connects to the chain. Tests substitute a simulated chain.
	dial func(ctx context.Context, s *config.ChainSettings, logger *log.Logger) (*chain.Client, error)
	// lookupEnv reads the environment; nil reads the process
	// environment.
	lookupEnv func(string) (string, bool)
	// logger, if set, replaces the configured logger.
	logger *log.Logger
}

func newCLI() *cli {
	return &cli{profile: config.New(), dial: chain.Dial}
}

func (c *cli) root() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "chainvault",
		Short: "Anchor and recover encrypted documents on a ledger",
		Long: `
Chainvault splits documents into chunks, encrypts each chunk under a
per-document data key, and appends the chunks to a ledger contract.
Recovery reads the chunks back, checks them and writes the document to
a new artifact.
`,
		Children: []*cmdline.Command{
			c.newCmdAnchor(),
			c.newCmdRecover(),
			c.newCmdVerify(),
			c.newCmdStatus(),
			c.newCmdReview("approve", "Mark a submitted document approved"),
			c.newCmdReview("reject", "Mark a submitted document rejected"),
			c.newCmdTxs(),
			c.newCmdReconcile(),
			c.newCmdChunk(),
			cmdutil.CreateVersionCommand("version", "chainvault"),
		},
	}
	c.profile.RegisterFlags(&cmd.Flags, "", defaultProfile)
	return cmd
}

// app holds the components a command runs with.
type app struct {
	settings *config.Settings
	log      *log.Logger
	events   eventlog.Eventer
	store    store.Store
	// chain and gateway are nil when the chain is not configured;
	// chainErr says why.
	chain    *chain.Client
	gateway  *contract.Gateway
	chainErr error
}

// requireChain returns the gateway, or errors.NotConfigured.
func (a *app) requireChain() (*contract.Gateway, error) {
	if a.gateway == nil {
		return nil, a.chainErr
	}
	return a.gateway, nil
}

// master returns the deployment master key, or nil if none is
// configured.
func (a *app) master() (*encryption.MasterKey, error) {
	if a.settings.Keys == nil {
		return nil, nil
	}
	k, err := a.settings.Keys.Master()
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (a *app) artifacts() (artifact.Store, error) {
	return artifact.Open(a.settings.Artifacts)
}

// run returns a runner that resolves the configuration, opens the
// components and calls fn.
func (c *cli) run(fn func(ctx context.Context, a *app, env *cmdline.Env, args []string) error) cmdline.Runner {
	return cmdutil.RunnerFunc(func(env *cmdline.Env, args []string) error {
		ctx := context.Background()
		dumped, err := c.profile.ProcessFlags(c.lookupEnv, env.Stdout)
		if err != nil || dumped {
			return err
		}
		a, err := c.open(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a, env, args)
	})
}

func (c *cli) open(ctx context.Context) (*app, error) {
	s, err := c.profile.Settings()
	if err != nil {
		return nil, err
	}
	a := &app{settings: s, log: c.logger}
	if a.log == nil {
		a.log = log.NewLogger(s.Log, "app", "chainvault")
		cmdutil.AtExit(func() error {
			_ = a.log.Sync()
			return nil
		})
	}
	a.events = eventlog.NewLog(a.log)
	if a.store, err = openStore(ctx, s.Store); err != nil {
		return nil, err
	}
	cmdutil.AtExit(func() error {
		if err := a.store.Close(); err != nil {
			return errors.E("closing store", err)
		}
		return nil
	})

	a.chain, err = c.dial(ctx, s.Chain, a.log)
	switch {
	case errors.Is(errors.NotConfigured, err):
		a.chainErr = errors.E("chain", err)
		return a, nil
	case err != nil:
		return nil, err
	}
	cmdutil.AtExit(func() error {
		a.chain.Close()
		return nil
	})
	var abiPath string
	if s.Chain != nil {
		abiPath = s.Chain.ABIPath
	}
	abi, err := contract.LoadABI(abiPath)
	if err != nil {
		return nil, err
	}
	a.gateway = contract.New(a.chain, abi)
	return a, nil
}

func openStore(ctx context.Context, s config.StoreSettings) (store.Store, error) {
	switch s.Driver {
	case "memory":
		return memstore.New(), nil
	case "badger":
		return badgerstore.Open(s.Path)
	case "postgres":
		return pgstore.Open(ctx, s.DSN)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown store driver %q", s.Driver))
	}
}

// docID parses a document id argument.
func docID(env *cmdline.Env, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 0 {
		return 0, env.UsageErrorf("invalid document id %q", arg)
	}
	return id, nil
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(err, "reading", path)
	}
	return b, nil
}
