// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package keycrypt resolves references to secret material, such as
// the transaction signing key and the master key that protects data
// keys. A reference is either a URL naming a registered scheme
// (env://NAME, file:///path/to/secret) or a literal value.
//
// Secrets are read on demand and never cached by this package.
package keycrypt

import (
	"github.com/esims/chainvault/errors"
)

// ErrNoSuchSecret is returned by Secret.Get when the secret does not exist.
var ErrNoSuchSecret = errors.E(errors.NotExist, "no such secret")

// Secret represents a single object. Secret objects are
// uninterpreted bytes that are stored securely.
type Secret interface {
	// Get retrieves the current value of this secret. If the secret
	// does not exist, Get returns ErrNoSuchSecret.
	Get() ([]byte, error)
	// Put writes a new value for this secret.
	Put([]byte) error
}

// Keycrypt represents a secure secret storage.
type Keycrypt interface {
	// Lookup returns the named secret. A secret is returned even if it
	// does not yet exist; in that case Secret.Get returns ErrNoSuchSecret.
	Lookup(name string) Secret
}

// Resolver maps the host part of a secret URL to a Keycrypt.
type Resolver interface {
	Resolve(host string) Keycrypt
}

type funcResolver func(string) Keycrypt

func (f funcResolver) Resolve(host string) Keycrypt { return f(host) }

// ResolverFunc adapts a function to a Resolver.
func ResolverFunc(f func(string) Keycrypt) Resolver { return funcResolver(f) }

var errReadOnly = errors.E(errors.NotAllowed, "secret is read-only")

type static []byte

// Static returns a read-only secret holding b.
func Static(b []byte) Secret          { return static(b) }
func (s static) Get() ([]byte, error) { return []byte(s), nil }
func (s static) Put([]byte) error     { return errReadOnly }

type nonexistent int

// Nonexistent returns a secret that never exists.
func Nonexistent() Secret                { return nonexistent(0) }
func (nonexistent) Get() ([]byte, error) { return nil, ErrNoSuchSecret }
func (nonexistent) Put([]byte) error     { return errReadOnly }
