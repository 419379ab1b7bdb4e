// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/karma"
	"github.com/curia-foundation/curia/lib/principal"
	"github.com/curia-foundation/curia/lib/servicetoken"
)

// --- task/list ---

// taskListRequest filters the task listing. All fields are optional.
type taskListRequest struct {
	Status string `cbor:"status,omitempty"`
	Type   string `cbor:"type,omitempty"`
	Limit  int    `cbor:"limit,omitempty"`
}

// taskListResponse carries the matching tasks. Verification answers
// are stripped from every entry; only task/get discloses them.
type taskListResponse struct {
	Tasks []curation.Task `cbor:"tasks"`
}

// handleTaskList serves two callers with one action. An agent token
// with no status filter gets its work queue: open tasks it has not
// submitted to yet. Any other call is an operator listing over the
// requested filter.
func (e *Engine) handleTaskList(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, curation.ActionTaskList, ""); err != nil {
		return nil, err
	}

	var request taskListRequest
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	}

	if request.Status != "" {
		switch curation.TaskStatus(request.Status) {
		case curation.TaskOpen, curation.TaskClosed, curation.TaskDisputed:
		default:
			return nil, fmt.Errorf("invalid status filter %q", request.Status)
		}
	}
	if request.Type != "" && !curation.TaskType(request.Type).Valid() {
		return nil, fmt.Errorf("invalid type filter %q", request.Type)
	}

	var tasks []curation.Task
	var err error
	handle, isAgent := principal.AgentHandle(token.Subject)
	if isAgent && request.Status == "" {
		tasks, err = e.store.ListOpenTasksForAgent(ctx, handle)
	} else {
		tasks, err = e.store.ListTasks(ctx, TaskFilter{
			Status: curation.TaskStatus(request.Status),
			Type:   curation.TaskType(request.Type),
			Limit:  request.Limit,
		})
	}
	if err != nil {
		return nil, err
	}

	// The expected answer never leaves the engine on list paths; the
	// question stays so agents can answer it.
	for i := range tasks {
		tasks[i].VerificationAnswer = ""
	}

	return taskListResponse{Tasks: tasks}, nil
}

// --- task/get ---

// taskGetRequest identifies the task to inspect.
type taskGetRequest struct {
	TaskID string `cbor:"task_id"`
}

// taskGetResponse is the full operator view of one task: the task row
// (verification answer included), every submission with its check
// outcome, and the consensus result when one was reached.
type taskGetResponse struct {
	Task        curation.Task             `cbor:"task"`
	Submissions []curation.Submission     `cbor:"submissions"`
	Result      *curation.ConsensusResult `cbor:"result,omitempty"`
}

// handleTaskGet returns one task with its submission history. This is
// the operator review surface, so nothing is stripped: judging a
// disputed task needs the expected answer and the per-submission
// check outcomes.
func (e *Engine) handleTaskGet(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, curation.ActionTaskGet, ""); err != nil {
		return nil, err
	}

	var request taskGetRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.TaskID == "" {
		return nil, fmt.Errorf("missing required field: task_id")
	}

	task, submissions, result, err := e.store.TaskDetail(ctx, request.TaskID)
	if err != nil {
		return nil, err
	}

	return taskGetResponse{
		Task:        *task,
		Submissions: submissions,
		Result:      result,
	}, nil
}

// --- task/flagged ---

// taskFlaggedResponse is the operator review queue.
type taskFlaggedResponse struct {
	Tasks []FlaggedTask `cbor:"tasks"`
}

// handleTaskFlagged returns tasks needing operator attention:
// disputed tasks (newest first) and open tasks older than the
// staleness window (oldest first).
func (e *Engine) handleTaskFlagged(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, curation.ActionTaskFlagged, ""); err != nil {
		return nil, err
	}

	staleBefore := e.clock.Now().Add(-e.stalenessWindow)
	flagged, err := e.store.FlaggedTasks(ctx, staleBefore)
	if err != nil {
		return nil, err
	}

	return taskFlaggedResponse{Tasks: flagged}, nil
}

// --- karma/get ---

// karmaGetRequest names the agent to look up. An empty handle on an
// agent token defaults to the token's own handle.
type karmaGetRequest struct {
	Handle string `cbor:"handle,omitempty"`
}

// karmaGetResponse is one agent's standing.
type karmaGetResponse struct {
	Handle     string  `cbor:"handle"`
	Karma      float64 `cbor:"karma"`
	Tier       string  `cbor:"tier"`
	Verified   bool    `cbor:"verified"`
	VerifiedAt int64   `cbor:"verified_at,omitempty"`
}

// handleKarmaGet returns an agent's karma and derived tier. The grant
// target is the handle, so agent tokens only reach their own row
// while the operator wildcard reaches any.
func (e *Engine) handleKarmaGet(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	var request karmaGetRequest
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	}

	handle := strings.ToLower(strings.TrimSpace(request.Handle))
	if handle == "" {
		own, isAgent := principal.AgentHandle(token.Subject)
		if !isAgent {
			return nil, fmt.Errorf("missing required field: handle")
		}
		handle = own
	}

	if err := requireGrant(token, curation.ActionKarmaSelf, handle); err != nil {
		return nil, err
	}

	agent, err := e.store.Agent(ctx, handle)
	if err != nil {
		return nil, err
	}

	return karmaGetResponse{
		Handle:     agent.Handle,
		Karma:      agent.Karma,
		Tier:       string(karma.TierFor(agent.Karma)),
		Verified:   agent.Verified,
		VerifiedAt: agent.VerifiedAt,
	}, nil
}

// --- karma/leaderboard ---

// leaderboardRequest bounds the standings listing.
type leaderboardRequest struct {
	Limit int `cbor:"limit,omitempty"`
}

// leaderboardResponse is the top slice of verified agents by karma.
type leaderboardResponse struct {
	Agents []LeaderboardRow `cbor:"agents"`
}

// handleLeaderboard returns the karma standings. Requests beyond the
// policy row cap are clamped, not rejected.
func (e *Engine) handleLeaderboard(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, curation.ActionKarmaRead, ""); err != nil {
		return nil, err
	}

	var request leaderboardRequest
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	}

	limit := request.Limit
	if limit <= 0 || limit > e.policy.Leaderboard.MaxRows {
		limit = e.policy.Leaderboard.MaxRows
	}

	rows, err := e.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	return leaderboardResponse{Agents: rows}, nil
}
