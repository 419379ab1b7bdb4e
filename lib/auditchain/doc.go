// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditchain persists audit exports as a hash-linked chain of
// snapshots.
//
// Each snapshot holds an export dump (zstd-compressed), the hash of
// the previous chain head, a sequence number, and a timestamp, all
// encoded as deterministic CBOR and addressed by the BLAKE3 keyed
// hash of those bytes. Because the parent link is inside the hashed
// content, rewriting any historical snapshot changes every address
// after it: comparing the current head against an externally recorded
// copy detects tampering, and [Chain.Verify] walks the links to find
// where.
//
// Snapshot files can optionally be encrypted at rest with
// XChaCha20-Poly1305, with the snapshot's address bound in as
// authenticated data so files cannot be swapped between addresses.
// The encryption key arrives in a [secret.Buffer] and is not retained
// after cipher construction.
//
// Key exports:
//
//   - [Chain] -- the on-disk store, opened with [Open]
//   - [Chain.Append] / [Chain.Load] / [Chain.Head] -- chain access
//   - [Chain.Verify] -- head-to-genesis integrity walk
//   - [HashSnapshot] / [FormatRef] -- addressing helpers
//
// Used by the engine's audit export handler; exports remain available
// as plain responses when no chain directory is configured.
package auditchain
