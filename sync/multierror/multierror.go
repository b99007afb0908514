// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package multierror collects the errors of operations that all run
// regardless of one another's failures, such as closing resources.
package multierror

import (
	"fmt"
	"strings"
	"sync"
)

// MultiError captures up to a fixed number of errors; further errors
// are counted but not kept. It is safe for concurrent use.
type MultiError struct {
	mu      sync.Mutex
	errs    []error
	dropped int
}

// NewMultiError returns a MultiError that keeps at most max errors.
func NewMultiError(max int) *MultiError {
	if max < 1 {
		max = 1
	}
	return &MultiError{errs: make([]error, 0, max)}
}

// Add captures err. Nil errors are ignored and MultiErrors are
// flattened. Add returns the receiver so calls can be chained.
func (me *MultiError) Add(err error) *MultiError {
	if err == nil {
		return me
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if other, ok := err.(*MultiError); ok {
		if other == me {
			return me
		}
		other.mu.Lock()
		errs, dropped := append([]error(nil), other.errs...), other.dropped
		other.mu.Unlock()
		for _, e := range errs {
			me.add(e)
		}
		me.dropped += dropped
		return me
	}
	me.add(err)
	return me
}

func (me *MultiError) add(err error) {
	if len(me.errs) == cap(me.errs) {
		me.dropped++
		return
	}
	me.errs = append(me.errs, err)
}

// Error joins the captured errors, one per line.
func (me *MultiError) Error() string {
	me.mu.Lock()
	defer me.mu.Unlock()
	switch {
	case len(me.errs) == 0:
		return ""
	case len(me.errs) == 1 && me.dropped == 0:
		return me.errs[0].Error()
	}
	s := make([]string, len(me.errs))
	for i, e := range me.errs {
		s[i] = e.Error()
	}
	msg := fmt.Sprintf("[%s]", strings.Join(s, "\n"))
	if me.dropped > 0 {
		msg += fmt.Sprintf(" [plus %d other error(s)]", me.dropped)
	}
	return msg
}

// Unwrap returns the captured errors.
func (me *MultiError) Unwrap() []error {
	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]error(nil), me.errs...)
}

// ErrorOrNil returns nil if no error was captured, or a single captured
// error as is. Otherwise it returns the receiver.
func (me *MultiError) ErrorOrNil() error {
	if me == nil {
		return nil
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	switch {
	case len(me.errs) == 0:
		return nil
	case len(me.errs) == 1 && me.dropped == 0:
		return me.errs[0]
	}
	return me
}
