// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// identityVerifier is the narrow interface the engine needs from the
// verification collaborator: whether a one-time code is currently
// visible under a handle on the external platform. The collaborator
// does the scraping or API work; the engine only asks yes or no.
type identityVerifier interface {
	Confirm(ctx context.Context, handle, code string) (bool, error)
}

// verifierTimeout bounds one collaborator round trip. Confirmation is
// interactive (the agent is waiting on the socket call), so a slow
// collaborator should fail fast rather than hold the connection.
const verifierTimeout = 15 * time.Second

// verifierClient is the HTTP identityVerifier. It POSTs the handle
// and code to the collaborator's check endpoint and reads back a
// found flag.
type verifierClient struct {
	baseURL    string
	httpClient *http.Client
}

func newVerifierClient(baseURL string) *verifierClient {
	return &verifierClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: verifierTimeout},
	}
}

// Confirm asks the collaborator whether code is posted under handle.
// A definite no is (false, nil); errors mean the question could not
// be answered and the caller should have the agent retry.
func (c *verifierClient) Confirm(ctx context.Context, handle, code string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"handle": handle,
		"code":   code,
	})
	if err != nil {
		return false, fmt.Errorf("verifier: encoding check request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/check", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("verifier: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return false, fmt.Errorf("verifier: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return false, fmt.Errorf("verifier: HTTP %d: %s", response.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		Found bool `json:"found"`
	}
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("verifier: decoding check response: %w", err)
	}
	return result.Found, nil
}
