// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Curia-review is a terminal UI over the operator review queue. It
// connects to the engine socket with an operator token and shows the
// flagged task list — disputed tasks and stale open tasks — beside a
// detail pane with the selected task's submissions, check outcomes,
// and consensus result. The queue refreshes on a timer and on demand.
package main
