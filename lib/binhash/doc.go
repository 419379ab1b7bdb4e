// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides SHA256 content hashing for binary files.
//
// The engine reports the hash of its own binary in status responses
// (via lib/version.ComputeSelfHash), so an operator comparing two
// deployments can tell whether they run byte-identical builds without
// trusting version strings.
//
// The API surface is three functions:
//
//   - [HashFile] -- streams a file through SHA256, returning a [32]byte
//     digest with constant memory usage regardless of file size
//   - [FormatDigest] -- converts a [32]byte digest to its canonical
//     hex-encoded string representation
//   - [ParseDigest] -- parses a hex-encoded digest string back to a
//     [32]byte array, validating length and encoding
//
// This package has no dependencies on other Curia packages.
package binhash
