// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Curia-token manages the deployment's capability tokens offline. It
// generates the Ed25519 signing keypair, mints operator, scheduler,
// and content-host tokens with their role's grant preset, inspects
// token payloads, and signs revocations for compromised token IDs.
// Agent tokens are not minted here: the engine mints those itself
// when identity verification succeeds.
package main
