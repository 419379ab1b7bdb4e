// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/curia-foundation/curia/lib/secret"
	"github.com/curia-foundation/curia/lib/service"
)

// disputeSignatureHeader carries the HMAC-SHA256 signature of the
// webhook body so the operator channel can authenticate events.
const disputeSignatureHeader = "X-Curia-Signature-256"

// disputeEvent is the JSON payload POSTed to the operator channel
// when a task ends disputed.
type disputeEvent struct {
	TaskID      string  `json:"task_id"`
	TaskType    string  `json:"task_type"`
	Target      string  `json:"target"`
	Ratio       float64 `json:"ratio"`
	Submissions int     `json:"submissions"`
	DisputedAt  int64   `json:"disputed_at"`
}

// disputeNotifier delivers dispute events to the operator channel
// webhook. Delivery is best-effort: the dispute is already durably
// recorded by the time Notify runs, so a failed POST is logged and
// dropped, never retried into the submit path.
type disputeNotifier struct {
	webhookURL string
	signingKey *secret.Buffer
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func newDisputeNotifier(webhookURL string, signingKey *secret.Buffer, timeout time.Duration, logger *slog.Logger) *disputeNotifier {
	return &disputeNotifier{
		webhookURL: webhookURL,
		signingKey: signingKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Notify POSTs one dispute event, signed with the shared webhook
// secret. The context bounds the whole delivery; callers hand in a
// detached context so a slow webhook cannot stall the submit
// response that triggered it.
func (n *disputeNotifier) Notify(ctx context.Context, event disputeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("dispute webhook: encoding event: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispute webhook: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(disputeSignatureHeader, service.SignWebhookHMAC(n.signingKey.Bytes(), body))

	response, err := n.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("dispute webhook: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("dispute webhook: HTTP %d: %s", response.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// dispatchDispute fires the dispute notification in the background.
// Evaluation has already committed and the task sits in the flagged
// listing regardless; the webhook only accelerates operator
// attention.
func (e *Engine) dispatchDispute(event *disputeEvent) {
	if e.notifier == nil || event == nil {
		return
	}
	e.notifyGroup.Add(1)
	go func() {
		defer e.notifyGroup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifier.timeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, *event); err != nil {
			e.logger.Error("dispute notification failed",
				"task", event.TaskID,
				"error", err,
			)
			return
		}
		e.logger.Info("dispute notification delivered",
			"task", event.TaskID,
			"ratio", event.Ratio,
		)
	}()
}
