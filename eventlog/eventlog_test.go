// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eventlog_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/esims/chainvault/eventlog"
	"github.com/esims/chainvault/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := eventlog.NewLog(log.NewLoggerFromCore(core))
	ctx, id := log.NewRun(context.Background())

	e.Event(ctx, eventlog.AnchorBatch, "documentID", 12, "txHash", "0xab")
	events := logs.FilterMessage("event").All()
	require.Len(t, events, 1)
	s, ok := events[0].ContextMap()["event"].(string)
	require.True(t, ok)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	assert.Equal(t, eventlog.AnchorBatch, m["eventType"])
	assert.Equal(t, id.String(), m["runID"])
	assert.Equal(t, float64(12), m["documentID"])

	e.Event(ctx, eventlog.AnchorBatch, "documentID")
	assert.Equal(t, 1, logs.FilterMessage("dropping event").Len())
	assert.Equal(t, 1, logs.FilterMessage("event").Len())
}

func TestNop(t *testing.T) {
	eventlog.Nop{}.Event(context.Background(), eventlog.Recovery, "k", "v")
	assert.Equal(t, "disabled", eventlog.Nop{}.String())
	assert.Equal(t, eventlog.Nop{}, eventlog.OrNop(nil))
}
