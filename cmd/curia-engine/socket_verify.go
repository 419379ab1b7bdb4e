// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/principal"
	"github.com/curia-foundation/curia/lib/servicetoken"
)

// --- verification/begin ---

// verificationBeginRequest registers a handle for verification.
type verificationBeginRequest struct {
	// Handle is the agent's external platform handle. Normalized to
	// lowercase before storage.
	Handle string `cbor:"handle"`
}

// verificationBeginResponse carries the one-time code the agent must
// post on the external platform under its handle.
type verificationBeginResponse struct {
	Handle       string `cbor:"handle"`
	Code         string `cbor:"code"`
	Instructions string `cbor:"instructions"`
}

// handleVerificationBegin registers the handle (or refreshes an
// existing registration) and issues a fresh one-time code. Repeating
// the action replaces any earlier code; karma and verified state on
// an existing row are untouched, so token renewal rides the same
// path as first enrollment.
func (e *Engine) handleVerificationBegin(ctx context.Context, raw []byte) (any, error) {
	var request verificationBeginRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	handle := strings.ToLower(strings.TrimSpace(request.Handle))
	if err := principal.ValidateHandle(handle); err != nil {
		return nil, fmt.Errorf("invalid handle: %w", err)
	}

	code, err := curation.NewVerificationCode()
	if err != nil {
		return nil, err
	}

	created, err := e.store.BeginVerification(ctx, handle, code)
	if err != nil {
		return nil, err
	}

	e.logger.Info("verification started",
		"handle", handle,
		"new_agent", created,
	)

	return verificationBeginResponse{
		Handle: handle,
		Code:   code,
		Instructions: fmt.Sprintf(
			"post %q under the handle %q on the source platform, then call verification/confirm",
			code, handle),
	}, nil
}

// --- verification/confirm ---

// verificationConfirmRequest asks the engine to check that the
// pending code has been posted.
type verificationConfirmRequest struct {
	Handle string `cbor:"handle"`
}

// verificationConfirmResponse reports success and carries the minted
// agent token.
type verificationConfirmResponse struct {
	Handle   string `cbor:"handle"`
	Verified bool   `cbor:"verified"`

	// Token is the wire-format agent capability token. The caller
	// presents it on every authenticated socket action.
	Token []byte `cbor:"token"`

	// ExpiresAt is the token expiry, Unix seconds. Renewal repeats
	// the begin/confirm flow.
	ExpiresAt int64 `cbor:"expires_at"`
}

// handleVerificationConfirm consults the verification collaborator
// for the pending code and, on success, marks the agent verified and
// mints its capability token. The engine never scrapes the platform
// itself; the collaborator owns that mechanism.
func (e *Engine) handleVerificationConfirm(ctx context.Context, raw []byte) (any, error) {
	var request verificationConfirmRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	handle := strings.ToLower(strings.TrimSpace(request.Handle))
	if err := principal.ValidateHandle(handle); err != nil {
		return nil, fmt.Errorf("invalid handle: %w", err)
	}

	agent, err := e.store.Agent(ctx, handle)
	if err != nil {
		if errors.Is(err, curation.ErrAgentNotFound) {
			return nil, fmt.Errorf("no pending verification for %q: call verification/begin first", handle)
		}
		return nil, err
	}
	if agent.VerificationCode == "" {
		return nil, fmt.Errorf("no pending verification for %q: call verification/begin first", handle)
	}

	if e.verifier == nil {
		return nil, fmt.Errorf("identity verification is not configured on this engine")
	}

	found, err := e.verifier.Confirm(ctx, handle, agent.VerificationCode)
	if err != nil {
		return nil, fmt.Errorf("consulting verification collaborator: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("verification code not found under %q: post the code on the source platform and retry", handle)
	}

	now := e.clock.Now()
	if err := e.store.MarkVerified(ctx, handle, now); err != nil {
		return nil, err
	}

	tokenID, err := servicetoken.NewTokenID()
	if err != nil {
		return nil, err
	}
	token := &servicetoken.Token{
		Subject:   principal.Agent(handle),
		Audience:  curation.TokenAudience,
		Grants:    curation.AgentGrants(handle),
		ID:        tokenID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(e.tokenTTL).Unix(),
	}
	tokenBytes, err := servicetoken.Mint(e.signingKey, token)
	if err != nil {
		return nil, fmt.Errorf("minting agent token: %w", err)
	}

	e.logger.Info("agent verified",
		"handle", handle,
		"token_id", tokenID,
		"expires_at", token.ExpiresAt,
	)

	return verificationConfirmResponse{
		Handle:    handle,
		Verified:  true,
		Token:     tokenBytes,
		ExpiresAt: token.ExpiresAt,
	}, nil
}
