// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

// AuditTask is one finished task in an audit dump: the task record,
// every submission it received, and the consensus result when one was
// reached. Disputed tasks carry no result.
type AuditTask struct {
	Task        Task             `json:"task"`
	Submissions []Submission     `json:"submissions"`
	Consensus   *ConsensusResult `json:"consensus,omitempty"`
}

// AuditDump is the export document fed to the audit chain: every
// closed and disputed task with its full submission history. Open
// tasks are excluded because their history is not yet final.
//
// The producer orders tasks by ID and submissions by submission time
// (agent handle as tie-break), so the same engine state always
// serializes to the same JSON bytes.
type AuditDump struct {
	// GeneratedAt is the export time, Unix seconds.
	GeneratedAt int64 `json:"generated_at"`

	// Tasks holds the finished tasks in ID order.
	Tasks []AuditTask `json:"tasks"`
}
