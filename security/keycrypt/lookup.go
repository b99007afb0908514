// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package keycrypt

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/esims/chainvault/errors"
)

var (
	mu        sync.Mutex
	resolvers = map[string]Resolver{}
)

// Register associates a Resolver with a scheme.
func Register(scheme string, resolver Resolver) {
	mu.Lock()
	resolvers[scheme] = resolver
	mu.Unlock()
}

// RegisterFunc associates a Resolver (given by a func) with a scheme.
func RegisterFunc(scheme string, f func(string) Keycrypt) {
	Register(scheme, ResolverFunc(f))
}

func unregister(scheme string) {
	mu.Lock()
	delete(resolvers, scheme)
	mu.Unlock()
}

// IsReference tells whether s names a secret through a URL scheme
// rather than holding a literal value.
func IsReference(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for _, r := range s[:i] {
		if !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

// Lookup retrieves a secret based on a reference. References of the form
// scheme://host/path are interpreted by the Resolver registered for the
// scheme; anything else is a literal secret value.
func Lookup(ref string) (Secret, error) {
	if !IsReference(ref) {
		return Static([]byte(ref)), nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.E(errors.Invalid, "parsing secret reference", err)
	}
	mu.Lock()
	r := resolvers[u.Scheme]
	mu.Unlock()
	if r == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown secret scheme %q", u.Scheme))
	}
	return r.Resolve(u.Host).Lookup(strings.TrimPrefix(u.Path, "/")), nil
}

// Get reads the secret named by ref, with surrounding whitespace removed.
func Get(ref string) ([]byte, error) {
	s, err := Lookup(ref)
	if err != nil {
		return nil, err
	}
	b, err := s.Get()
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(b), nil
}
