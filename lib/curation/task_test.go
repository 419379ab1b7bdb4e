// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTaskSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    TaskSpec
		wantErr bool
	}{
		{
			name: "triage without check",
			spec: TaskSpec{Type: TaskTriage, Target: "https://moltbook.example/t/41"},
		},
		{
			name: "triage with optional check",
			spec: TaskSpec{
				Type:                 TaskTriage,
				Target:               "https://moltbook.example/t/41",
				VerificationQuestion: "who is the thread author?",
				VerificationAnswer:   "night_heron",
			},
		},
		{
			name: "summarize with required check",
			spec: TaskSpec{
				Type:                 TaskSummarize,
				Target:               "https://moltbook.example/t/77",
				VerificationQuestion: "what city is named in the first post?",
				VerificationAnswer:   "rotterdam",
			},
		},
		{
			name: "explicit quota",
			spec: TaskSpec{Type: TaskTag, Target: "https://moltbook.example/t/9", SubmissionsNeeded: 7},
		},
		{
			name:    "unknown type",
			spec:    TaskSpec{Type: "moderate", Target: "https://moltbook.example/t/1"},
			wantErr: true,
		},
		{
			name:    "empty target",
			spec:    TaskSpec{Type: TaskTriage},
			wantErr: true,
		},
		{
			name:    "negative quota",
			spec:    TaskSpec{Type: TaskTriage, Target: "x", SubmissionsNeeded: -1},
			wantErr: true,
		},
		{
			name: "question without answer",
			spec: TaskSpec{
				Type:                 TaskTriage,
				Target:               "x",
				VerificationQuestion: "who posted this?",
			},
			wantErr: true,
		},
		{
			name: "answer without question",
			spec: TaskSpec{
				Type:               TaskTriage,
				Target:             "x",
				VerificationAnswer: "crow-9",
			},
			wantErr: true,
		},
		{
			name:    "deep-read type missing check",
			spec:    TaskSpec{Type: TaskExtract, Target: "https://moltbook.example/t/12"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTaskSpec) {
					t.Fatalf("Validate() = %v, want ErrInvalidTaskSpec", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestTaskSpecQuota(t *testing.T) {
	explicit := TaskSpec{Type: TaskTriage, Target: "x", SubmissionsNeeded: 2}
	if got := explicit.Quota(); got != 2 {
		t.Fatalf("explicit Quota() = %d, want 2", got)
	}
	defaulted := TaskSpec{Type: TaskTriage, Target: "x"}
	if got := defaulted.Quota(); got != 5 {
		t.Fatalf("defaulted Quota() = %d, want 5", got)
	}
}

func TestNewTaskID(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := NewTaskID("operator/ops-main", TaskTriage, "https://moltbook.example/t/41", createdAt)

	if !strings.HasPrefix(id, "task-") {
		t.Fatalf("task ID %q lacks task- prefix", id)
	}
	if len(id) != len("task-")+12 {
		t.Fatalf("task ID %q has length %d, want %d", id, len(id), len("task-")+12)
	}

	// Derivation is deterministic over its inputs.
	again := NewTaskID("operator/ops-main", TaskTriage, "https://moltbook.example/t/41", createdAt)
	if id != again {
		t.Fatalf("same inputs produced %q and %q", id, again)
	}

	// Any input change moves the ID.
	variants := []string{
		NewTaskID("operator/backup", TaskTriage, "https://moltbook.example/t/41", createdAt),
		NewTaskID("operator/ops-main", TaskTag, "https://moltbook.example/t/41", createdAt),
		NewTaskID("operator/ops-main", TaskTriage, "https://moltbook.example/t/42", createdAt),
		NewTaskID("operator/ops-main", TaskTriage, "https://moltbook.example/t/41", createdAt.Add(time.Second)),
	}
	for i, variant := range variants {
		if variant == id {
			t.Errorf("variant %d collides with the base ID %q", i, id)
		}
	}
}

func TestTaskTerminal(t *testing.T) {
	task := Task{Status: TaskOpen}
	if task.Terminal() {
		t.Fatal("open task reported terminal")
	}
	for _, status := range []TaskStatus{TaskClosed, TaskDisputed} {
		task.Status = status
		if !task.Terminal() {
			t.Errorf("status %q not reported terminal", status)
		}
	}
}
