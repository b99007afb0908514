// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ctxsync provides context-aware locks. The chain client uses
// them to serialize nonce assignment and broadcast per signing account.
package ctxsync

import (
	"context"
	"sync"

	"github.com/esims/chainvault/errors"
)

// Mutex is a context-aware mutex. It must not be copied.
// The zero value is ready to use.
type Mutex struct {
	initOnce sync.Once
	lockCh   chan struct{}
}

// Lock attempts to exclusively lock m. If m is already locked, it
// waits until it is unlocked. If ctx is done before the lock can be
// taken, Lock does not take the lock and returns a non-nil error.
func (m *Mutex) Lock(ctx context.Context) error {
	m.init()
	select {
	case m.lockCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.E(ctx.Err(), "waiting for lock")
	}
}

// Unlock unlocks m. It must be called exactly once iff Lock returns nil.
// Unlock panics if it is called while m is not locked.
func (m *Mutex) Unlock() {
	m.init()
	select {
	case <-m.lockCh:
	default:
		panic("Unlock called on mutex that is not locked")
	}
}

func (m *Mutex) init() {
	m.initOnce.Do(func() {
		m.lockCh = make(chan struct{}, 1)
	})
}

// KeyedMutex holds one Mutex per key, for example one per signing
// account address. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*Mutex
}

// Lock locks the mutex for key. It returns an unlock function, which
// must be called exactly once iff Lock returns a nil error.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = new(Mutex)
		k.locks[key] = m
	}
	k.mu.Unlock()
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	return m.Unlock, nil
}
