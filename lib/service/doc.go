// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the shared serving infrastructure for the
// Curia engine: a Unix socket server speaking a CBOR request-response
// protocol, an HTTP server for the read-only surface exposed to host
// platforms, and the socket client used by the CLI tools. The engine
// composes these in its own main() rather than subclassing a
// framework; the package provides building blocks, not a runtime.
//
// # Socket protocol
//
// A client connects, writes one CBOR map carrying at least an "action"
// field, and reads one CBOR response envelope ({ok, error?, data?}).
// CBOR is self-delimiting, so there is no framing layer. Streaming
// actions keep the connection open after the request: the handler
// writes CBOR values until it returns, and the client reads until EOF.
//
// # Authentication
//
// Actions registered with HandleAuth or HandleAuthStream require a
// "token" field carrying an Ed25519-signed service token (see
// lib/servicetoken). The server verifies the signature, audience,
// expiry, and revocation status before invoking the handler; the
// handler receives the decoded token and performs its own grant
// checks against the curation action namespace. Actions registered
// with Handle skip all of this, which is reserved for the status
// probe and the identity verification flow (callers there do not
// have a token yet).
package service
