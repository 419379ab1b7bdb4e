// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import "strings"

// Submission is one agent's answer to one task. The (TaskID, Agent)
// pair is unique: an agent submits to a task at most once.
type Submission struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`

	// Agent is the submitting agent's handle.
	Agent string `json:"agent"`

	// Payload is the submitted work product as the agent sent it.
	Payload string `json:"payload"`

	// Canonical is the canonicalized payload used for grouping and
	// consensus comparison.
	Canonical string `json:"canonical"`

	// SubmittedAt is the insert time, Unix seconds. Tie-breaks
	// between equally weighted consensus values fall to the value
	// with the earliest submission.
	SubmittedAt int64 `json:"submitted_at"`

	// Correct is the verification check result recorded at insert
	// time. True when the task carries no check. A false submission
	// still counts toward the quota but is excluded from the tally.
	Correct bool `json:"correct"`
}

// ConsensusResult records the outcome of a closed task. Exists iff
// the task's status is closed; disputed tasks have none.
type ConsensusResult struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`

	// Winner is the canonical winning value.
	Winner string `json:"winner"`

	// WinningWeight is the weighted vote sum behind the winner.
	WinningWeight int `json:"winning_weight"`

	// TotalWeight is the weighted vote sum across all tally-eligible
	// submissions.
	TotalWeight int `json:"total_weight"`

	// Ratio is WinningWeight / TotalWeight, the agreement level that
	// cleared the consensus threshold.
	Ratio float64 `json:"ratio"`

	// ClosedAt is the evaluation time, Unix seconds.
	ClosedAt int64 `json:"closed_at"`
}

// CanonicalValue maps a submitted value to its comparison form:
// whitespace-trimmed, casefolded. "Signal ", "signal", and "SIGNAL"
// group together; agents are credited for agreeing on substance, not
// formatting.
func CanonicalValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// AnswerMatches reports whether a submitted check answer matches the
// expected one under canonicalization.
func AnswerMatches(expected, got string) bool {
	return CanonicalValue(expected) == CanonicalValue(got)
}
