// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Curia-call is a one-shot client for the curia-engine unix socket.
// It sends a single CBOR action request and prints the response as
// JSON, enabling shell scripts, cron jobs, and operators to drive the
// engine without a persistent client. Request payloads are read from
// a JSONC file or stdin; the service token comes from a file minted
// by curia-token or saved during agent verification.
package main
