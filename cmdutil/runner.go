// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmdutil provides utility routines for implementing command line
// tools.
package cmdutil

import (
	"fmt"
	"sync"

	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/sync/multierror"
	"v.io/x/lib/cmdline"
)

// Exit codes returned for command failures, by error kind.
const (
	ExitFailure     = 1
	ExitUnavailable = 3
	ExitConflict    = 4
	ExitIntegrity   = 5
)

var (
	mu    sync.Mutex
	hooks []func() error
)

// AtExit registers fn to run when the current command returns. Hooks
// run in the reverse order of registration; all of them run even if
// some fail.
func AtExit(fn func() error) {
	mu.Lock()
	hooks = append(hooks, fn)
	mu.Unlock()
}

func runHooks() error {
	mu.Lock()
	fns := hooks
	hooks = nil
	mu.Unlock()
	errs := multierror.NewMultiError(len(fns))
	for i := len(fns) - 1; i >= 0; i-- {
		errs.Add(fns[i]())
	}
	return errs.ErrorOrNil()
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(errors.NotConfigured, err), errors.Is(errors.ChainUnavailable, err), errors.Is(errors.Unavailable, err):
		return ExitUnavailable
	case errors.Is(errors.Conflict, err), errors.Is(errors.Exists, err):
		return ExitConflict
	case errors.Is(errors.Integrity, err), errors.Is(errors.InvalidPayload, err),
		errors.Is(errors.KeyUnwrapFailed, err), errors.Is(errors.KeyVersionMismatch, err):
		return ExitIntegrity
	default:
		return ExitFailure
	}
}

// RunnerFunc is an adapter that turns regular functions into cmdline.Runners.
type RunnerFunc func(*cmdline.Env, []string) error

// Run implements the cmdline.Runner interface method by calling f(env, args),
// then the hooks registered with AtExit. Errors are written to the
// environment's stderr and returned as a cmdline.ErrExitCode chosen by
// ExitCode; a disabled capability is reported as unavailable. Hook
// failures fail an otherwise successful command.
func (f RunnerFunc) Run(env *cmdline.Env, args []string) error {
	err := f(env, args)
	if herr := runHooks(); herr != nil {
		if err == nil {
			err = errors.E("exit", herr)
		} else {
			fmt.Fprintf(env.Stderr, "exit: %v\n", herr)
		}
	}
	if err == nil {
		return nil
	}
	if code, ok := err.(cmdline.ErrExitCode); ok {
		return code
	}
	if errors.Is(errors.NotConfigured, err) {
		fmt.Fprintf(env.Stderr, "unavailable: %v\n", err)
	} else {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
	}
	return cmdline.ErrExitCode(ExitCode(err))
}
