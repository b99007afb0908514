// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package eventlog records semi-structured events for downstream
// analysis: anchoring batches broadcast, anchoring runs completed or
// aborted, recoveries, review transitions. For example:
//
//	e := eventlog.NewLog(logger)
//	e.Event(ctx, eventlog.AnchorBatch, "documentID", 12, "index", 0, "txHash", "0x...")
//
// Events carry the run id of the context they were logged in.
package eventlog

import (
	"context"

	"github.com/esims/chainvault/eventlog/internal/marshal"
	"github.com/esims/chainvault/log"
	"github.com/google/uuid"
)

// Event types.
const (
	AnchorBatch    = "anchorBatch"
	AnchorComplete = "anchorComplete"
	AnchorAborted  = "anchorAborted"
	Registration   = "registration"
	Recovery       = "recovery"
	Review         = "review"
	Reconcile      = "reconcile"
)

// Eventer is called to log events.
type Eventer interface {
	// Event logs an event of typ with (key string, value interface{})
	// fields given in fieldPairs as k0, v0, k1, v1, ...kn, vn. For
	// example:
	//
	//	e.Event(ctx, "anchorBatch", "documentID", 12, "chunks", 1)
	//
	// Values are serialized as JSON. The keys "eventType" and "runID"
	// are reserved and field keys must be unique; events that violate
	// this are dropped and the violation logged.
	//
	// Implementations must be safe for concurrent use.
	Event(ctx context.Context, typ string, fieldPairs ...interface{})
}

// Nop is a no-op Eventer.
type Nop struct{}

var _ Eventer = Nop{}

func (Nop) String() string {
	return "disabled"
}

// Event implements Eventer.
func (Nop) Event(context.Context, string, ...interface{}) {}

// Log is an Eventer that writes each event as a JSON object in the
// "event" field of an info-level log line.
type Log struct {
	log *log.Logger
}

var _ Eventer = (*Log)(nil)

// NewLog returns an eventer writing to l.
func NewLog(l *log.Logger) *Log {
	return &Log{log: log.OrNop(l)}
}

// Event implements Eventer.
func (e *Log) Event(ctx context.Context, typ string, fieldPairs ...interface{}) {
	var extra map[string]interface{}
	if id := log.RunID(ctx); id != uuid.Nil {
		extra = map[string]interface{}{marshal.RunIDKey: id.String()}
	}
	s, err := marshal.Marshal(typ, fieldPairs, extra)
	if err != nil {
		e.log.Error(ctx, "dropping event", "eventType", typ, "error", err)
		return
	}
	e.log.Info(ctx, "event", "event", s)
}

// OrNop returns e, or Nop if e is nil.
func OrNop(e Eventer) Eventer {
	if e == nil {
		return Nop{}
	}
	return e
}
