// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package encryption

import (
	"fmt"
	"sort"
	"sync"

	"github.com/esims/chainvault/errors"
)

// Scheme protects per-document data keys with a master key.
type Scheme interface {
	// Name is the scheme tag recorded with each document.
	Name() string
	// NewDataKey creates the data key for a new document, returning it
	// along with the material to record for later recovery.
	NewDataKey(master MasterKey) (dataKey []byte, m KeyMaterial, err error)
	// DataKey recovers the data key described by m. It fails with
	// KeyVersionMismatch before any cryptographic work if master has
	// the wrong version.
	DataKey(master MasterKey, m KeyMaterial) ([]byte, error)
	// Validate checks that m carries exactly the fields this scheme uses.
	Validate(m KeyMaterial) error
}

type db struct {
	sync.Mutex
	schemes map[string]Scheme
}

var schemes = &db{schemes: map[string]Scheme{}}

// Lookup returns the scheme registered under name.
func Lookup(name string) (Scheme, error) {
	schemes.Lock()
	defer schemes.Unlock()
	s := schemes.schemes[name]
	if s == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown key management scheme %q", name))
	}
	return s, nil
}

// Register registers a scheme under its name.
func Register(s Scheme) error {
	schemes.Lock()
	defer schemes.Unlock()
	if _, present := schemes.schemes[s.Name()]; present {
		return errors.E(errors.Exists, fmt.Sprintf("scheme %q already registered", s.Name()))
	}
	schemes.schemes[s.Name()] = s
	return nil
}

// Schemes returns the names of all registered schemes, sorted.
func Schemes() []string {
	schemes.Lock()
	defer schemes.Unlock()
	names := make([]string, 0, len(schemes.schemes))
	for name := range schemes.schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustRegister(s Scheme) {
	if err := Register(s); err != nil {
		panic(err)
	}
}
