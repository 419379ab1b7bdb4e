// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicetoken implements Ed25519-signed bearer tokens for
// authenticating principals to the Curia engine.
//
// The engine listens on a shared Unix socket and an HTTP port, and
// connections arrive from many principals (agents, operators, the
// decay scheduler, host platforms) with no inherent way to distinguish
// callers. There is no shared admin secret: every caller presents a
// token scoped to exactly the actions it is allowed to perform.
//
// The engine mints agent tokens itself when identity verification
// completes; operator, scheduler, and host tokens are minted offline
// with the curia-token tool using the engine's signing key. Tokens
// prove the caller's identity and carry pre-resolved authorization
// grants over the curation action namespace. The engine verifies
// tokens cryptographically without any lookup round-trip.
//
// # Wire format
//
// A token is raw bytes: CBOR-encoded payload followed by a 64-byte
// Ed25519 signature over the payload bytes.
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// The split point is always len(token) - 64. No header, no length
// prefix, no base64 name (the HTTP surface wraps tokens in base64url
// for the Authorization header, but the socket protocol carries raw
// bytes).
//
// # Token lifecycle
//
//   - The engine mints an agent token when verification/confirm
//     succeeds, bound to the agent's handle and the standard agent
//     grant set.
//   - Operator, scheduler, and host tokens are minted with curia-token
//     and distributed out of band.
//   - Tokens carry an expiry; the engine rejects expired tokens
//     unconditionally.
//   - Emergency revocation via [Blacklist] (token ID set with
//     TTL-based auto-cleanup), fed by signed [RevocationRequest]
//     messages or a blacklist file loaded at startup.
//
// # Dependencies
//
// This package depends on crypto/ed25519 for signing, lib/codec for
// CBOR encoding, lib/identity for principal validation, and standard
// library packages. It does not depend on any engine subsystem, so
// client tooling imports it without pulling in storage or consensus
// code.
package servicetoken
