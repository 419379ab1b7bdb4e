// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"time"

	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/service"
)

// callTimeout bounds each engine call made from the TUI. Calls run in
// background commands, so a slow engine degrades to a status-bar
// error rather than a frozen interface.
const callTimeout = 10 * time.Second

// flaggedTask mirrors one entry of the task/flagged response. The
// server-side type lives in the engine binary; the wire format is the
// contract.
type flaggedTask struct {
	Task   curation.Task `cbor:"task"`
	Reason string        `cbor:"reason"`
}

// Flagged reasons as the engine reports them.
const (
	reasonDisputed = "disputed"
	reasonStale    = "stale"
)

// taskDetail mirrors the task/get response: the full operator view of
// one task, verification answer and per-submission check outcomes
// included.
type taskDetail struct {
	Task        curation.Task             `cbor:"task"`
	Submissions []curation.Submission     `cbor:"submissions"`
	Result      *curation.ConsensusResult `cbor:"result"`
}

// reviewSource is the data access seam between the TUI model and the
// engine. The engine-backed implementation talks to the socket; tests
// substitute a fixture.
type reviewSource interface {
	// Flagged returns the review queue.
	Flagged(ctx context.Context) ([]flaggedTask, error)

	// Detail returns one task with its submission history.
	Detail(ctx context.Context, taskID string) (*taskDetail, error)
}

// engineSource implements reviewSource over the engine socket.
type engineSource struct {
	client *service.ServiceClient
}

func newEngineSource(client *service.ServiceClient) *engineSource {
	return &engineSource{client: client}
}

func (s *engineSource) Flagged(ctx context.Context) ([]flaggedTask, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var response struct {
		Tasks []flaggedTask `cbor:"tasks"`
	}
	if err := s.client.Call(ctx, "task/flagged", nil, &response); err != nil {
		return nil, err
	}
	return response.Tasks, nil
}

func (s *engineSource) Detail(ctx context.Context, taskID string) (*taskDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var detail taskDetail
	if err := s.client.Call(ctx, "task/get", map[string]any{"task_id": taskID}, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
