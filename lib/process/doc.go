// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Curia service
// binaries. These functions centralize the one legitimate raw I/O
// pattern that exists before the structured logger:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit after an unrecoverable error in main().
//
// All other raw output in service binaries goes through log/slog; the
// CLI tools write their results to stdout directly.
package process
