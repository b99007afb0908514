// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package retry contains retry policies used for bounded polling of
// the chain node, such as waiting for a transaction receipt.
//
// Ledger writes are never retried through this package: a failed
// broadcast is surfaced to the caller instead.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/esims/chainvault/errors"
)

// A Policy is an interface that abstracts retry policies. Typically
// users will not call methods directly on a Policy but rather use
// the package function retry.Wait.
type Policy interface {
	// Retry tells whether a new retry should be attempted,
	// and after how long.
	Retry(retry int) (bool, time.Duration)
}

// Wait queries the provided policy at the provided retry number and
// sleeps until the next try should be attempted. Wait returns an
// error if the policy prohibits further tries, if the context was
// canceled, or if its deadline would run out while waiting for the
// next try.
func Wait(ctx context.Context, policy Policy, retry int) error {
	keepgoing, wait := policy.Retry(retry)
	if !keepgoing {
		return errors.E(errors.TooManyTries, fmt.Sprintf("gave up after %d tries", retry))
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return errors.E(errors.Timeout, "ran out of time while waiting for retry")
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.E(ctx.Err(), "waiting for retry")
	}
}

type backoff struct {
	factor       float64
	initial, max time.Duration
}

// Backoff returns a Policy that initially waits for the amount of
// time specified by parameter initial; on each try this value is
// multiplied by the provided factor, up to the max duration.
func Backoff(initial, max time.Duration, factor float64) Policy {
	return &backoff{initial: initial, max: max, factor: factor}
}

func (b *backoff) Retry(retries int) (bool, time.Duration) {
	wait := float64(b.initial) * math.Pow(b.factor, float64(retries))
	if wait > float64(b.max) || math.IsInf(wait, 0) || math.IsNaN(wait) {
		return true, b.max
	}
	return true, time.Duration(wait)
}

type jitter struct {
	policy Policy
	frac   float64
}

// Jitter returns a policy that randomly subtracts up to frac of the
// wait duration returned by the underlying policy. frac must be in
// [0, 1].
func Jitter(policy Policy, frac float64) Policy {
	if frac < 0 || frac > 1 {
		panic("retry.Jitter: frac must be in [0, 1]")
	}
	return &jitter{policy, frac}
}

func (j *jitter) Retry(retries int) (bool, time.Duration) {
	ok, wait := j.policy.Retry(retries)
	if !ok || wait <= 0 {
		return ok, wait
	}
	return true, wait - time.Duration(j.frac*rand.Float64()*float64(wait))
}

type maxRetries struct {
	policy Policy
	max    int
}

// MaxRetries returns a policy that permits at most n retries of the
// provided policy.
func MaxRetries(policy Policy, n int) Policy {
	if n < 0 {
		panic("retry.MaxRetries: n < 0")
	}
	return &maxRetries{policy, n}
}

func (m *maxRetries) Retry(retries int) (bool, time.Duration) {
	if retries >= m.max {
		return false, 0
	}
	return m.policy.Retry(retries)
}
