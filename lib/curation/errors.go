// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import "errors"

// Domain error kinds. Callers match these with errors.Is; the engine's
// socket handlers surface their text verbatim and the HTTP surface
// maps them to status codes. Wrap with fmt.Errorf("...: %w", err) so
// the kind survives added context.
var (
	// ErrNotVerified rejects submissions from agents that have not
	// completed identity verification.
	ErrNotVerified = errors.New("curation: agent identity is not verified")

	// ErrDuplicateSubmission rejects a second submission by the same
	// agent on the same task.
	ErrDuplicateSubmission = errors.New("curation: agent already submitted to this task")

	// ErrTaskClosed rejects submissions to tasks that have already
	// reached a terminal state (closed or disputed).
	ErrTaskClosed = errors.New("curation: task is no longer accepting submissions")

	// ErrTaskNotFound reports an unknown task ID.
	ErrTaskNotFound = errors.New("curation: task not found")

	// ErrInvalidTaskSpec rejects task creation with an unknown type,
	// an empty target, an unpaired verification question/answer, or a
	// negative submission quota.
	ErrInvalidTaskSpec = errors.New("curation: invalid task spec")

	// ErrConsensusDisputed reports that a task ended disputed: no
	// value cleared the consensus threshold, so there is no consensus
	// result to return. Non-fatal; disputed tasks surface in the
	// flagged listing for operator review.
	ErrConsensusDisputed = errors.New("curation: task is disputed, no value reached consensus")

	// ErrAgentNotFound reports an unknown agent handle.
	ErrAgentNotFound = errors.New("curation: agent not found")
)
