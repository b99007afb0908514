// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	runIDKey contextKey = iota
	documentIDKey
)

// WithRunID returns a context carrying the given orchestration run id.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// NewRun returns a context carrying a fresh run id, and that id.
func NewRun(ctx context.Context) (context.Context, uuid.UUID) {
	id := uuid.New()
	return WithRunID(ctx, id), id
}

// RunID returns the run id carried by ctx, or uuid.Nil.
func RunID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(runIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithDocument returns a context whose log lines name the given document.
func WithDocument(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, documentIDKey, id)
}
