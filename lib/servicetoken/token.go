// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicetoken implements the engine's capability tokens.
//
// A token is a CBOR payload followed by a 64-byte Ed25519 signature.
// The payload names a principal (subject), the service it is scoped to
// (audience), and the grants it carries. There is no shared admin
// secret anywhere in the system: every caller — operator, scheduler,
// content host, agent — presents a token whose grants authorize the
// specific action, and the engine verifies it against one public key.
//
// Agent tokens are minted by the engine itself when identity
// verification succeeds; the other roles are minted offline with
// curia-token. Compromised tokens are revoked by ID through the
// blacklist without rotating the keypair.
package servicetoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/principal"
)

// signatureSize is the fixed length of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize

// Grant authorizes a set of actions on a set of targets. Both sides
// are glob patterns (principal.MatchPattern syntax). Action names are
// hierarchical ("curation/task/create"); targets are task types for
// task-scoped actions and agent handles for karma lookups.
type Grant struct {
	// Actions is the list of action patterns this grant covers.
	Actions []string `cbor:"1,keyasint"`

	// Targets is the list of target patterns. Empty means the grant
	// never matches a targeted action (default deny).
	Targets []string `cbor:"2,keyasint,omitempty"`
}

// Token is the signed payload of a capability token.
type Token struct {
	// Subject is the principal this token identifies, in
	// "<role>/<name>" form ("agent/finch", "operator/ops-main").
	Subject string `cbor:"1,keyasint"`

	// Audience is the service the token is scoped to. The engine
	// rejects tokens whose audience is not "curation", so a token
	// minted for some future sibling service cannot be replayed here.
	Audience string `cbor:"2,keyasint"`

	// Grants are the capabilities the subject holds.
	Grants []Grant `cbor:"3,keyasint,omitempty"`

	// ID is a unique hex identifier used for revocation.
	ID string `cbor:"4,keyasint"`

	// IssuedAt is the mint time, Unix seconds.
	IssuedAt int64 `cbor:"5,keyasint"`

	// ExpiresAt is the expiry, Unix seconds. Verification fails at or
	// after this instant.
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// Errors returned by verification.
var (
	ErrTokenTooShort    = errors.New("servicetoken: token too short for signature")
	ErrInvalidSignature = errors.New("servicetoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("servicetoken: token has expired")
	ErrAudienceMismatch = errors.New("servicetoken: audience does not match")
	ErrTokenRevoked     = errors.New("servicetoken: token has been revoked")
	ErrBadSubject       = errors.New("servicetoken: malformed subject principal")
)

// NewTokenID returns a fresh random token identifier: 16 bytes of
// entropy, hex-encoded.
func NewTokenID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("servicetoken: generating token ID: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// Mint validates the token's subject, signs the CBOR payload, and
// returns the wire bytes: payload followed by the signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	if err := principal.Validate(token.Subject); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSubject, err)
	}

	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: encoding token payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)
	wire := make([]byte, len(payload)+signatureSize)
	copy(wire, payload)
	copy(wire[len(payload):], signature)
	return wire, nil
}

// VerifyAt checks the signature, decodes the payload, and checks
// expiry against the supplied instant. Callers that care about the
// audience use VerifyForServiceAt instead.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	split := len(tokenBytes) - signatureSize
	payload := tokenBytes[:split]
	signature := tokenBytes[split:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("servicetoken: decoding token payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &token, nil
}

// Decode splits off the signature and decodes the payload without
// checking anything: no signature, expiry, or audience verification.
// For offline diagnostic tooling (curia-token inspect) that examines
// a token it cannot or need not trust; services always verify.
func Decode(tokenBytes []byte) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}
	var token Token
	if err := codec.Unmarshal(tokenBytes[:len(tokenBytes)-signatureSize], &token); err != nil {
		return nil, fmt.Errorf("servicetoken: decoding token payload: %w", err)
	}
	return &token, nil
}

// VerifyForServiceAt is the standard verification path for a service:
// signature, expiry, then audience.
func VerifyForServiceAt(publicKey ed25519.PublicKey, tokenBytes []byte, expectedAudience string, now time.Time) (*Token, error) {
	token, err := VerifyAt(publicKey, tokenBytes, now)
	if err != nil {
		return nil, err
	}
	if token.Audience != expectedAudience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, expectedAudience)
	}
	return token, nil
}

// GrantsAllow reports whether the grants authorize an action on a
// target. An empty target means the action is untargeted (listings,
// exports) and only the action patterns are consulted. For targeted
// actions both sides must match within a single grant — an agent
// allowed to submit to "triage" tasks and read "tag" stats does not
// thereby gain submit on "tag".
func GrantsAllow(grants []Grant, action, target string) bool {
	untargeted := target == ""
	for _, grant := range grants {
		if !principal.MatchAnyPattern(grant.Actions, action) {
			continue
		}
		if untargeted {
			return true
		}
		if principal.MatchAnyPattern(grant.Targets, target) {
			return true
		}
	}
	return false
}
