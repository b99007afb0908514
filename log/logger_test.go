// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	l := NewLoggerFromCore(core)
	l.now = func() time.Time { return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC) }
	return l, logs
}

func TestContextFields(t *testing.T) {
	l, logs := newObserved(DebugLevel)
	runID := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	ctx := WithDocument(WithRunID(context.Background(), runID), 42)
	l.Info(ctx, "batch submitted", "batch", 1, "txHash", "0xabc")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "batch submitted", entries[0].Message)
	assert.Equal(t, runID.String(), fields["runID"])
	assert.Equal(t, int64(42), fields["documentID"])
	assert.Equal(t, int64(1), fields["batch"])
	assert.Equal(t, "0xabc", fields["txHash"])
	assert.True(t, strings.HasPrefix(fields["caller"].(string), "logger_test.go:"), fields["caller"])
}

func TestDanglingKey(t *testing.T) {
	l, logs := newObserved(DebugLevel)
	l.Warn(context.Background(), "odd fields", "a", 1, "dangling")
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Ignored key without a value.", entries[0].Message)
	assert.Equal(t, "dangling", entries[0].ContextMap()["ignored"])
	assert.Equal(t, "odd fields", entries[1].Message)
}

func TestLevelFiltering(t *testing.T) {
	l, logs := newObserved(WarnLevel)
	ctx := context.Background()
	l.Debug(ctx, "debug")
	l.Infof(ctx, "info %d", 1)
	l.Warnf(ctx, "warn %d", 2)
	l.Error(ctx, "error")
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "warn 2", logs.All()[0].Message)
}

func TestWith(t *testing.T) {
	l, logs := newObserved(DebugLevel)
	l.With("component", "anchor").Info(context.TODO(), "hello")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "anchor", logs.All()[0].ContextMap()["component"])
}

func TestRunID(t *testing.T) {
	ctx, id := NewRun(context.Background())
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, id, RunID(ctx))
	assert.Equal(t, uuid.Nil, RunID(context.Background()))
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]zapcore.Level{"DEBUG": DebugLevel, "info": InfoLevel, " Warn ": WarnLevel, "error": ErrorLevel} {
		got, ok := ParseLevel(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := ParseLevel("verbose")
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	OrNop(nil).Error(context.Background(), "discarded")
}
