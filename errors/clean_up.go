// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors

import (
	"context"
	"fmt"
)

// CleanUp is defer-able sugar that calls f and reports its error, if
// any, to *dst. Pass the caller's named return error:
//
//	func writeArtifact(path string, p []byte) (err error) {
//		f, err := os.Create(path)
//		if err != nil { ... }
//		defer errors.CleanUp(f.Close, &err)
//		...
//	}
//
// If the caller already returns an error, the cleanup error is
// appended to its message rather than replacing it.
func CleanUp(f func() error, dst *error) {
	addErr(f(), dst)
}

// CleanUpCtx is CleanUp for a cleanup function that takes a context,
// such as a database transaction rollback.
func CleanUpCtx(ctx context.Context, f func(context.Context) error, dst *error) {
	addErr(f(ctx), dst)
}

func addErr(err error, dst *error) {
	if err == nil {
		return
	}
	if *dst == nil {
		*dst = err
		return
	}
	*dst = E(*dst, fmt.Sprintf("cleanup also failed: %v", err))
}
