// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package curation defines the engine's domain schema: task types and
// their point values, task/submission/agent/consensus records, value
// canonicalization, content-derived task IDs, verification codes, the
// action namespace enforced by token grants, and the sentinel errors
// every caller matches with errors.Is.
package curation
