// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Agent is a registered participant, keyed by its external platform
// handle. Karma and verification state live here; the trust tier is
// derived from karma on read and never stored.
type Agent struct {
	// Handle is the lowercase external platform handle. Unique; the
	// agent's identity everywhere in the engine.
	Handle string `json:"handle"`

	// VerificationCode is the pending one-time code the agent must
	// post on the external platform. Cleared semantics: a fresh code
	// replaces it on every verification/begin; it stays on the row
	// after confirmation so renewals follow the same path. Never
	// serialized outward.
	VerificationCode string `json:"-"`

	// Verified is set once the verification collaborator has seen
	// the code posted under this handle. Required for submitting.
	Verified bool `json:"verified"`

	// VerifiedAt is the confirmation time, Unix seconds. Zero while
	// unverified.
	VerifiedAt int64 `json:"verified_at,omitempty"`

	// Karma is the agent's current reputation score, >= 0.
	Karma float64 `json:"karma"`

	// DecayPeriod is the last decay period key applied to this row
	// ("2026-W34"). Decay within the same period is a no-op.
	DecayPeriod string `json:"decay_period,omitempty"`

	// CreatedAt is the registration time, Unix seconds.
	CreatedAt int64 `json:"created_at"`
}

// verificationCodeBytes is the entropy behind a one-time code; 4
// bytes yields 8 hex characters, short enough to post in a reply on
// the external platform.
const verificationCodeBytes = 4

// NewVerificationCode returns a fresh one-time identity verification
// code: "curia-verify-" followed by 8 hex characters.
func NewVerificationCode() (string, error) {
	var raw [verificationCodeBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("curation: generating verification code: %w", err)
	}
	return "curia-verify-" + hex.EncodeToString(raw[:]), nil
}
