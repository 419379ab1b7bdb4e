// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/karma"
	"github.com/curia-foundation/curia/lib/principal"
	"github.com/curia-foundation/curia/lib/servicetoken"
)

// --- task/create ---

// taskCreateResponse reports the stored task. The effective quota is
// echoed back because a zero submissions_needed in the spec resolves
// to the type default.
type taskCreateResponse struct {
	TaskID            string `cbor:"task_id"`
	Status            string `cbor:"status"`
	SubmissionsNeeded int    `cbor:"submissions_needed"`
}

// handleTaskCreate validates the spec and files a new open task. The
// grant target is the task type, so an ingest pipeline can be limited
// to filing triage tasks without gaining summarize-task creation.
func (e *Engine) handleTaskCreate(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	var spec curation.TaskSpec
	if err := codec.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := requireGrant(token, curation.ActionTaskCreate, string(spec.Type)); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	task := &curation.Task{
		ID:                   curation.NewTaskID(token.Subject, spec.Type, spec.Target, now),
		Type:                 spec.Type,
		Target:               spec.Target,
		VerificationQuestion: spec.VerificationQuestion,
		VerificationAnswer:   spec.VerificationAnswer,
		SubmissionsNeeded:    spec.Quota(),
		Status:               curation.TaskOpen,
		CreatedBy:            token.Subject,
		CreatedAt:            now.Unix(),
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	e.logger.Info("task created",
		"task", task.ID,
		"type", task.Type,
		"target", task.Target,
		"quota", task.SubmissionsNeeded,
		"created_by", token.Subject,
	)

	return taskCreateResponse{
		TaskID:            task.ID,
		Status:            string(task.Status),
		SubmissionsNeeded: task.SubmissionsNeeded,
	}, nil
}

// --- submit ---

// submitRequest is one agent's answer to a task.
type submitRequest struct {
	TaskID  string `cbor:"task_id"`
	Payload string `cbor:"payload"`

	// Answer is the comprehension check answer, required on tasks
	// that carry one.
	Answer string `cbor:"answer,omitempty"`
}

// submitResponse reports the submission's effect on the task. It
// deliberately omits the stored submission's check outcome: echoing
// pass/fail back would hand agents an oracle for probing verification
// answers. The task status is the only signal — agents learn whether
// their value won when the task closes and karma arrives.
type submitResponse struct {
	TaskID     string `cbor:"task_id"`
	TaskStatus string `cbor:"task_status"`

	// Result is set when this submission closed the task.
	Result *curation.ConsensusResult `cbor:"result,omitempty"`
}

// handleSubmit records an agent submission and, when it is the one
// that fills the quota, runs consensus. Only agent tokens may submit:
// the submission row is keyed by the handle inside the token subject,
// so an operator token has no handle to submit under.
func (e *Engine) handleSubmit(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	var request submitRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.TaskID == "" {
		return nil, fmt.Errorf("missing required field: task_id")
	}
	if request.Payload == "" {
		return nil, fmt.Errorf("missing required field: payload")
	}

	handle, ok := principal.AgentHandle(token.Subject)
	if !ok {
		return nil, fmt.Errorf("submit requires an agent token, got subject %q", token.Subject)
	}

	// The grant target is the task type, which lives on the task row.
	// This read is outside the submit transaction: the worst a racing
	// close can do is turn an authorized submit into ErrTaskClosed
	// inside the transaction, which is the same answer it would get
	// anyway.
	task, err := e.store.Task(ctx, request.TaskID)
	if err != nil {
		return nil, err
	}
	if err := requireGrant(token, curation.ActionSubmit, string(task.Type)); err != nil {
		return nil, err
	}

	outcome, err := e.store.Submit(ctx, request.TaskID, handle, request.Payload, request.Answer)
	if err != nil {
		return nil, err
	}

	switch outcome.Status {
	case curation.TaskClosed:
		e.logger.Info("task closed by consensus",
			"task", request.TaskID,
			"winner", outcome.Result.Winner,
			"ratio", outcome.Result.Ratio,
		)
	case curation.TaskDisputed:
		e.logger.Warn("task disputed",
			"task", request.TaskID,
			"ratio", outcome.Dispute.Ratio,
			"submissions", outcome.Dispute.Submissions,
		)
		e.dispatchDispute(outcome.Dispute)
	default:
		e.logger.Info("submission recorded",
			"task", request.TaskID,
			"agent", handle,
		)
	}

	return submitResponse{
		TaskID:     request.TaskID,
		TaskStatus: string(outcome.Status),
		Result:     outcome.Result,
	}, nil
}

// --- decay/run ---

// decayRunRequest names the decay period to apply. An empty period
// selects the current one.
type decayRunRequest struct {
	Period string `cbor:"period,omitempty"`
}

// handleDecayRun applies one period's karma decay across all agents.
// The action is idempotent per period: agents already carrying the
// period marker are skipped, so the external scheduler can retry a
// partially failed run without double-decaying anyone.
func (e *Engine) handleDecayRun(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, curation.ActionDecay, ""); err != nil {
		return nil, err
	}

	var request decayRunRequest
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	}

	period := request.Period
	if period == "" {
		period = karma.PeriodKey(e.clock.Now())
	} else if !karma.ValidPeriodKey(period) {
		return nil, fmt.Errorf("invalid decay period %q (want YYYY-WNN)", period)
	}

	report, err := e.store.RunDecay(ctx, period, e.policy.Karma.DecayFactor)
	if err != nil {
		return nil, err
	}

	e.logger.Info("decay run complete",
		"period", report.Period,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	return report, nil
}
