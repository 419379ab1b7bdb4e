// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/service"
	"github.com/curia-foundation/curia/lib/servicetoken"
)

// auditExportFrame is the single stream frame audit/export writes:
// the full dump document plus the chain position when snapshot
// persistence is active.
type auditExportFrame struct {
	// GeneratedAt is the export time, Unix seconds.
	GeneratedAt int64 `cbor:"generated_at"`

	// TaskCount is the number of finished tasks in the dump.
	TaskCount int `cbor:"task_count"`

	// Dump is the deterministic JSON export document.
	Dump []byte `cbor:"dump"`

	// SnapshotRef and SnapshotSequence locate the snapshot on the
	// audit chain. Empty/zero when no audit directory is configured.
	SnapshotRef      string `cbor:"snapshot_ref,omitempty"`
	SnapshotSequence uint64 `cbor:"snapshot_sequence,omitempty"`
}

// handleAuditExport builds the audit dump and streams it to the
// caller. Export is a streaming action because the dump grows with
// the full closed-task history and would hit the plain call path's
// response cap; the handler owns the connection and writes the one
// frame itself.
//
// When an audit chain is configured, the dump is appended as a
// snapshot before the frame goes out, so the ref the caller sees is
// already durable.
func (e *Engine) handleAuditExport(ctx context.Context, token *servicetoken.Token, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	if !servicetoken.GrantsAllow(token.Grants, curation.ActionAudit, "") {
		e.logger.Warn("audit export: access denied", "subject", token.Subject)
		encoder.Encode(service.Response{
			OK:    false,
			Error: "access denied: missing grant for " + curation.ActionAudit,
		})
		return
	}

	dump, err := e.store.BuildAuditDump(ctx)
	if err != nil {
		e.logger.Error("audit export: building dump", "error", err)
		encoder.Encode(service.Response{OK: false, Error: err.Error()})
		return
	}

	document, err := json.Marshal(dump)
	if err != nil {
		e.logger.Error("audit export: encoding dump", "error", err)
		encoder.Encode(service.Response{OK: false, Error: "encoding dump: " + err.Error()})
		return
	}

	frame := auditExportFrame{
		GeneratedAt: dump.GeneratedAt,
		TaskCount:   len(dump.Tasks),
		Dump:        document,
	}

	if e.chain != nil {
		entry, err := e.chain.Append(document, e.clock.Now())
		if err != nil {
			e.logger.Error("audit export: appending snapshot", "error", err)
			encoder.Encode(service.Response{OK: false, Error: "appending snapshot: " + err.Error()})
			return
		}
		frame.SnapshotRef = entry.Ref()
		frame.SnapshotSequence = entry.Sequence
		e.logger.Info("audit snapshot appended",
			"ref", entry.Ref(),
			"sequence", entry.Sequence,
			"tasks", frame.TaskCount,
		)
	}

	if err := encoder.Encode(frame); err != nil {
		e.logger.Debug("audit export: writing frame",
			"subject", token.Subject,
			"error", err,
		)
		return
	}

	e.logger.Info("audit export served",
		"subject", token.Subject,
		"tasks", frame.TaskCount,
		"bytes", len(document),
	)
}
