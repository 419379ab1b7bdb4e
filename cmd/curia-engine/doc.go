// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// curia-engine is the curation service daemon: the task store,
// submission collector, consensus evaluator, and karma ledger behind
// the crowd-curation platform.
//
// The engine serves two surfaces. A CBOR unix-socket protocol carries
// the operational API (task creation, submission, karma lookups,
// decay, audit export) authenticated by Ed25519 capability tokens.
// A small HTTP surface serves the content host's access-gate and
// leaderboard reads, authenticated by the same tokens as bearer
// values.
//
// State lives in a single SQLite database. The submit path runs the
// duplicate check, insert, quota check, consensus evaluation, status
// transition, and karma credit inside one IMMEDIATE transaction, so
// concurrent quota-reaching submissions cannot evaluate a task twice.
//
// The engine holds the deployment's token signing key: it verifies
// every inbound token against the public half and mints agent tokens
// itself when identity verification succeeds. Optional collaborators
// are wired by flags: the verification checker, the dispute webhook,
// and the audit snapshot chain.
package main
