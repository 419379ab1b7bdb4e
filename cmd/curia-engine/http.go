// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/curia-foundation/curia/lib/clock"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/karma"
	"github.com/curia-foundation/curia/lib/principal"
	"github.com/curia-foundation/curia/lib/servicetoken"
)

// hostAPI is the HTTP surface the content host consults before
// serving a read: the access gate and the leaderboard. It is read
// only; every mutation goes through the socket.
//
// Authentication is a bearer token in the standard header, base64url
// (unpadded) over the same wire bytes the socket protocol carries.
type hostAPI struct {
	store     *Store
	clock     clock.Clock
	logger    *slog.Logger
	publicKey ed25519.PublicKey
	blacklist *servicetoken.Blacklist

	// threshold is the gate's karma requirement; maxRows caps
	// leaderboard requests. Both come from policy at startup.
	threshold float64
	maxRows   int
}

// gateResponse is the access-gate consult result. The embedded
// verdict carries the allow decision plus, on denial, the threshold,
// shortfall, and earning path.
type gateResponse struct {
	Handle string `json:"handle"`
	karma.Verdict
}

// leaderboardHTTPResponse is the standings listing.
type leaderboardHTTPResponse struct {
	Agents []LeaderboardRow `json:"agents"`
}

// ServeHTTP dispatches the two read endpoints. Every request must
// carry a bearer token with the karma read grant; the content host
// holds a long-lived token minted offline.
func (h *hostAPI) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, status := h.authenticate(request)
	if token == nil {
		http.Error(writer, "", status)
		return
	}

	if handle, ok := strings.CutPrefix(request.URL.Path, "/v1/karma/"); ok {
		h.serveGate(writer, request, handle)
		return
	}
	if request.URL.Path == "/v1/leaderboard" {
		h.serveLeaderboard(writer, request)
		return
	}

	http.Error(writer, "not found", http.StatusNotFound)
}

// authenticate verifies the bearer token and its grant. Returns the
// token on success, or nil with the HTTP status to send. Verification
// failures and missing grants are logged at warn with the remote
// address; the response body stays empty.
func (h *hostAPI) authenticate(request *http.Request) (*servicetoken.Token, int) {
	header := request.Header.Get("Authorization")
	encoded, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || encoded == "" {
		return nil, http.StatusUnauthorized
	}

	tokenBytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		h.logger.Warn("host api: malformed bearer token",
			"remote_addr", request.RemoteAddr,
		)
		return nil, http.StatusUnauthorized
	}

	token, err := servicetoken.VerifyForServiceAt(h.publicKey, tokenBytes, curation.TokenAudience, h.clock.Now())
	if err != nil {
		h.logger.Warn("host api: token verification failed",
			"remote_addr", request.RemoteAddr,
			"error", err,
		)
		return nil, http.StatusUnauthorized
	}
	if h.blacklist != nil && h.blacklist.IsRevoked(token.ID) {
		h.logger.Warn("host api: revoked token",
			"remote_addr", request.RemoteAddr,
			"token_id", token.ID,
		)
		return nil, http.StatusUnauthorized
	}

	if !servicetoken.GrantsAllow(token.Grants, curation.ActionKarmaRead, "") {
		h.logger.Warn("host api: missing karma read grant",
			"subject", token.Subject,
			"remote_addr", request.RemoteAddr,
		)
		return nil, http.StatusForbidden
	}

	return token, http.StatusOK
}

// serveGate evaluates the access gate for one handle. Unknown handles
// get the zero-karma verdict rather than 404: to the content host a
// never-seen reader and a zero-karma reader are the same case, and
// the verdict's explanation already points at the verification path.
func (h *hostAPI) serveGate(writer http.ResponseWriter, request *http.Request, rawHandle string) {
	handle := strings.ToLower(strings.TrimSpace(rawHandle))
	if err := principal.ValidateHandle(handle); err != nil {
		http.Error(writer, "invalid handle", http.StatusBadRequest)
		return
	}

	score := 0.0
	agent, err := h.store.Agent(request.Context(), handle)
	switch {
	case err == nil:
		score = agent.Karma
	case errors.Is(err, curation.ErrAgentNotFound):
		// Zero karma.
	default:
		h.logger.Error("host api: loading agent", "handle", handle, "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}

	writeJSON(writer, h.logger, gateResponse{
		Handle:  handle,
		Verdict: karma.Gate(score, h.threshold),
	})
}

// serveLeaderboard returns the top verified agents by karma. A limit
// beyond the policy cap is clamped, not rejected.
func (h *hostAPI) serveLeaderboard(writer http.ResponseWriter, request *http.Request) {
	limit := h.maxRows
	if raw := request.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(writer, "invalid limit", http.StatusBadRequest)
			return
		}
		if parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	rows, err := h.store.Leaderboard(request.Context(), limit)
	if err != nil {
		h.logger.Error("host api: loading leaderboard", "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}

	writeJSON(writer, h.logger, leaderboardHTTPResponse{Agents: rows})
}

func writeJSON(writer http.ResponseWriter, logger *slog.Logger, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		logger.Debug("host api: writing response", "error", err)
	}
}
