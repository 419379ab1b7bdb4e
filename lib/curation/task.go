// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// TaskStatus is the lifecycle state of a task. A task transitions
// open -> {closed | disputed} exactly once, when its submission count
// reaches the quota. Both terminal states are final.
type TaskStatus string

const (
	// TaskOpen accepts submissions.
	TaskOpen TaskStatus = "open"

	// TaskClosed reached consensus; a ConsensusResult exists.
	TaskClosed TaskStatus = "closed"

	// TaskDisputed reached its quota without any value clearing the
	// consensus threshold. Surfaced in the flagged listing for
	// operator review; no ConsensusResult exists.
	TaskDisputed TaskStatus = "disputed"
)

// Task is a work item distributed to agents.
type Task struct {
	// ID is the content-derived task identifier ("task-" + 12 hex).
	ID string `json:"id"`

	// Type is one of the closed task type set.
	Type TaskType `json:"type"`

	// Target is the content reference the work applies to, typically
	// a source thread URL or curated entry ref.
	Target string `json:"target"`

	// VerificationQuestion, when set, is the comprehension check an
	// agent must answer in its submission. Always paired with
	// VerificationAnswer.
	VerificationQuestion string `json:"verification_question,omitempty"`

	// VerificationAnswer is the expected answer, compared after
	// canonicalization. Never included in agent-facing listings.
	VerificationAnswer string `json:"verification_answer,omitempty"`

	// SubmissionsNeeded is the exact number of submissions that
	// triggers consensus evaluation. Always >= 1 on a stored task.
	SubmissionsNeeded int `json:"submissions_needed"`

	// Status is the lifecycle state.
	Status TaskStatus `json:"status"`

	// CreatedBy is the principal that created the task.
	CreatedBy string `json:"created_by"`

	// CreatedAt is the creation time, Unix seconds.
	CreatedAt int64 `json:"created_at"`

	// ClosedAt is the terminal transition time, Unix seconds. Zero
	// while open. Set for both closed and disputed tasks.
	ClosedAt int64 `json:"closed_at,omitempty"`
}

// HasCheck reports whether the task carries a comprehension check.
func (t *Task) HasCheck() bool {
	return t.VerificationQuestion != ""
}

// Terminal reports whether the task has left the open state.
func (t *Task) Terminal() bool {
	return t.Status == TaskClosed || t.Status == TaskDisputed
}

// TaskSpec is a task creation request. A zero SubmissionsNeeded
// selects the type's default quota.
type TaskSpec struct {
	Type                 TaskType `json:"type"`
	Target               string   `json:"target"`
	VerificationQuestion string   `json:"verification_question,omitempty"`
	VerificationAnswer   string   `json:"verification_answer,omitempty"`
	SubmissionsNeeded    int      `json:"submissions_needed,omitempty"`
}

// Validate checks the spec against the closed type set and the
// question/answer pairing rules. Every failure wraps
// ErrInvalidTaskSpec.
func (s *TaskSpec) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidTaskSpec, string(s.Type))
	}
	if s.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidTaskSpec)
	}
	if s.SubmissionsNeeded < 0 {
		return fmt.Errorf("%w: submissions_needed must be >= 1 (or 0 for the type default), got %d", ErrInvalidTaskSpec, s.SubmissionsNeeded)
	}
	hasQuestion := s.VerificationQuestion != ""
	hasAnswer := s.VerificationAnswer != ""
	if hasQuestion != hasAnswer {
		return fmt.Errorf("%w: verification question and answer must be supplied together", ErrInvalidTaskSpec)
	}
	if s.Type.ExpectsCheck() && !hasQuestion {
		return fmt.Errorf("%w: task type %q requires a verification check", ErrInvalidTaskSpec, string(s.Type))
	}
	return nil
}

// Quota resolves the effective submission quota: the explicit value,
// or the type default when the spec leaves it at zero.
func (s *TaskSpec) Quota() int {
	if s.SubmissionsNeeded > 0 {
		return s.SubmissionsNeeded
	}
	return s.Type.DefaultSubmissionsNeeded()
}

// taskDomainKey is the BLAKE3 key for task ID derivation. Fixed
// constant: changing it changes every derived ID. The bytes are the
// ASCII domain name, zero-padded to 32 bytes, so the key is readable
// in hex dumps.
var taskDomainKey = [32]byte{
	'c', 'u', 'r', 'i', 'a', '.', 'c', 'u', 'r', 'a', 't', 'i', 'o', 'n', '.',
	't', 'a', 's', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// NewTaskID derives the content-addressed task identifier from the
// creator, type, target, and creation time: "task-" followed by the
// first 12 hex characters of a keyed BLAKE3 hash. The same creator
// filing the same work item within the same second collides, which
// the store's unique ID constraint turns into a creation error.
func NewTaskID(createdBy string, taskType TaskType, target string, createdAt time.Time) string {
	hasher, err := blake3.NewKeyed(taskDomainKey[:])
	if err != nil {
		panic("curation: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	fmt.Fprintf(hasher, "%s\n%s\n%s\n%d", createdBy, taskType, target, createdAt.Unix())
	return "task-" + hex.EncodeToString(hasher.Sum(nil)[:6])
}
