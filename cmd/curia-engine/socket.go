// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/service"
	"github.com/curia-foundation/curia/lib/servicetoken"
	"github.com/curia-foundation/curia/lib/version"
)

// registerActions registers all socket API actions on the server.
//
// The "status" action and the verification pair are unauthenticated:
// an agent has no token until verification/confirm mints one, so the
// enrollment path must be open. Everything else uses HandleAuth and
// requires a valid service token with a per-action grant.
func (e *Engine) registerActions(server *service.SocketServer) {
	server.Handle("status", e.handleStatus)
	server.Handle("verification/begin", e.handleVerificationBegin)
	server.Handle("verification/confirm", e.handleVerificationConfirm)

	server.HandleAuth("info", e.handleInfo)
	server.HandleAuth("task/create", e.handleTaskCreate)
	server.HandleAuth("task/list", e.handleTaskList)
	server.HandleAuth("task/get", e.handleTaskGet)
	server.HandleAuth("task/flagged", e.handleTaskFlagged)
	server.HandleAuth("submit", e.handleSubmit)
	server.HandleAuth("karma/get", e.handleKarmaGet)
	server.HandleAuth("karma/leaderboard", e.handleLeaderboard)
	server.HandleAuth("decay/run", e.handleDecayRun)

	server.HandleAuthStream("audit/export", e.handleAuditExport)
}

// --- Authorization helper ---

// requireGrant checks that the token carries a grant for the given
// action on the given target (empty for untargeted actions). Returns
// nil if authorized, or an error suitable for returning to the client.
func requireGrant(token *servicetoken.Token, action, target string) error {
	if !servicetoken.GrantsAllow(token.Grants, action, target) {
		return fmt.Errorf("access denied: missing grant for %s", action)
	}
	return nil
}

// --- Unauthenticated liveness action ---

// statusResponse is the response to the "status" action. The open
// task count is deliberately included: it is the engine's public
// work-available signal, already visible to every enrolled agent.
type statusResponse struct {
	// UptimeSeconds is how long the engine has been running.
	UptimeSeconds int `cbor:"uptime_seconds"`

	// Version is the engine's build version string.
	Version string `cbor:"version"`

	// OpenTasks is the number of tasks currently accepting
	// submissions.
	OpenTasks int `cbor:"open_tasks"`
}

func (e *Engine) handleStatus(ctx context.Context, raw []byte) (any, error) {
	counts, err := e.store.CountTasks(ctx)
	if err != nil {
		return nil, err
	}
	uptime := e.clock.Now().Sub(e.startedAt)
	return statusResponse{
		UptimeSeconds: int(uptime.Seconds()),
		Version:       version.Short(),
		OpenTasks:     counts.Open,
	}, nil
}

// --- Authenticated diagnostic action ---

// infoResponse is the response to the "info" action. Agent counts and
// the audit head are operational metadata, so the action sits behind
// the curation/info grant rather than the open status endpoint.
type infoResponse struct {
	UptimeSeconds int    `cbor:"uptime_seconds"`
	Version       string `cbor:"version"`
	BinarySHA256  string `cbor:"binary_sha256,omitempty"`

	OpenTasks     int `cbor:"open_tasks"`
	ClosedTasks   int `cbor:"closed_tasks"`
	DisputedTasks int `cbor:"disputed_tasks"`

	Agents         int `cbor:"agents"`
	VerifiedAgents int `cbor:"verified_agents"`

	// AuditHead and AuditSequence describe the audit chain head.
	// Empty/zero when no audit chain is configured or no snapshot
	// has been taken yet.
	AuditHead     string `cbor:"audit_head,omitempty"`
	AuditSequence uint64 `cbor:"audit_sequence,omitempty"`
}

func (e *Engine) handleInfo(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, curation.ActionInfo, ""); err != nil {
		return nil, err
	}

	counts, err := e.store.CountTasks(ctx)
	if err != nil {
		return nil, err
	}
	agents, verified, err := e.store.AgentCounts(ctx)
	if err != nil {
		return nil, err
	}

	uptime := e.clock.Now().Sub(e.startedAt)
	response := infoResponse{
		UptimeSeconds:  int(uptime.Seconds()),
		Version:        version.Short(),
		BinarySHA256:   e.binaryHash,
		OpenTasks:      counts.Open,
		ClosedTasks:    counts.Closed,
		DisputedTasks:  counts.Disputed,
		Agents:         agents,
		VerifiedAgents: verified,
	}

	if e.chain != nil {
		if head, ok := e.chain.Head(); ok {
			response.AuditHead = head.Ref()
			response.AuditSequence = head.Sequence
		}
	}

	return response, nil
}
