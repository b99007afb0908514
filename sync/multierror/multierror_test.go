// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package multierror

import (
	"errors"
	"sync"
	"testing"
)

func TestMultiError(t *testing.T) {
	for _, test := range []struct {
		errs     []error
		expected string
	}{
		{nil, ""},
		{[]error{nil, errors.New("FAIL")}, "FAIL"},
		{[]error{errors.New("1"), errors.New("2"), errors.New("3")}, "[1\n2] [plus 1 other error(s)]"},
		{[]error{errors.New("1"), NewMultiError(2).Add(errors.New("a"))}, "[1\na]"},
		{[]error{errors.New("1"), NewMultiError(1).Add(errors.New("a")).Add(errors.New("b"))}, "[1\na] [plus 1 other error(s)]"},
	} {
		errs := NewMultiError(2)
		for _, e := range test.errs {
			errs.Add(e)
		}
		got := errs.ErrorOrNil()
		if test.expected == "" {
			if got != nil {
				t.Errorf("got %v, want nil", got)
			}
			continue
		}
		if got == nil || got.Error() != test.expected {
			t.Errorf("got %v, want %q", got, test.expected)
		}
	}
}

func TestUnwrap(t *testing.T) {
	closed := errors.New("closed")
	errs := NewMultiError(4).Add(errors.New("sync")).Add(closed)
	if !errors.Is(errs, closed) {
		t.Error("captured error not found")
	}
	if got := errs.ErrorOrNil(); got != errs {
		t.Errorf("got %v", got)
	}
}

func TestConcurrent(t *testing.T) {
	errs := NewMultiError(8)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs.Add(errors.New("x"))
		}()
	}
	wg.Wait()
	if n := len(errs.Unwrap()); n != 8 {
		t.Errorf("kept %d errors, want 8", n)
	}
}
