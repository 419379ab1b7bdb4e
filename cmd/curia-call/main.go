// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"golang.org/x/term"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/service"
	"github.com/curia-foundation/curia/lib/version"
)

// Environment fallbacks for the connection flags, so scripts that
// drive many actions against one engine set them once.
const (
	envSocket = "CURIA_SOCKET"
	envToken  = "CURIA_TOKEN"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Handle --version before flag parsing to match other Curia binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("curia-call %s\n", version.Info())
		return nil
	}

	var (
		socketPath    string
		tokenPath     string
		diag          bool
		outputPath    string
		saveTokenPath string
		timeout       time.Duration
	)

	flagSet := pflag.NewFlagSet("curia-call", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "engine socket path (or "+envSocket+")")
	flagSet.StringVar(&tokenPath, "token", "", "service token file (or "+envToken+"; omit for unauthenticated actions)")
	flagSet.BoolVar(&diag, "diag", false, "print the response in CBOR diagnostic notation instead of JSON")
	flagSet.StringVar(&outputPath, "output", "", "audit/export: write the dump document to this file instead of stdout")
	flagSet.StringVar(&saveTokenPath, "save-token", "", "verification/confirm: write the minted agent token to this file")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "per-call timeout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) < 1 || len(args) > 2 {
		printHelp(flagSet)
		return fmt.Errorf("expected <action> [payload-file], got %d arguments", len(args))
	}
	action := args[0]

	payloadFile := ""
	if len(args) == 2 {
		payloadFile = args[1]
	}
	fields, err := resolvePayload(payloadFile)
	if err != nil {
		return err
	}

	if socketPath == "" {
		socketPath = os.Getenv(envSocket)
	}
	if socketPath == "" {
		return fmt.Errorf("--socket is required (or set %s)", envSocket)
	}
	if tokenPath == "" {
		tokenPath = os.Getenv(envToken)
	}

	var client *service.ServiceClient
	if tokenPath != "" {
		client, err = service.NewServiceClient(socketPath, tokenPath)
		if err != nil {
			return err
		}
	} else {
		client = service.NewServiceClientFromToken(socketPath, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if action == "audit/export" {
		return runAuditExport(ctx, client, fields, outputPath)
	}

	var raw codec.RawMessage
	if err := client.Call(ctx, action, fields, &raw); err != nil {
		return err
	}

	if saveTokenPath != "" {
		if err := saveAgentToken(raw, saveTokenPath); err != nil {
			return err
		}
	}

	return printResponse(raw, diag)
}

// resolvePayload produces the request fields for the action. An
// explicit file argument wins ("-" means stdin); with no argument,
// piped stdin is read, and an interactive terminal means no payload.
func resolvePayload(payloadFile string) (map[string]any, error) {
	var data []byte
	var err error

	switch {
	case payloadFile == "-":
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
	case payloadFile != "":
		data, err = os.ReadFile(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
	default:
		if stat, _ := os.Stdin.Stat(); (stat.Mode() & os.ModeCharDevice) == 0 {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("reading payload from stdin: %w", err)
			}
		}
	}

	if len(data) == 0 {
		return nil, nil
	}
	return parsePayload(data)
}

// parsePayload decodes a JSONC document into request fields. Numbers
// decode through json.Number and integral values become int64: the
// engine's handlers decode quota and limit fields into Go ints, and a
// float64 on the wire would not fit them.
func parsePayload(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}

	normalized, err := normalizeValue(fields)
	if err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}
	return normalized.(map[string]any), nil
}

// normalizeValue rewrites json.Number leaves to int64 (when integral)
// or float64, recursing through objects and arrays.
func normalizeValue(value any) (any, error) {
	switch typed := value.(type) {
	case map[string]any:
		for key, entry := range typed {
			normalized, err := normalizeValue(entry)
			if err != nil {
				return nil, err
			}
			typed[key] = normalized
		}
		return typed, nil
	case []any:
		for index, entry := range typed {
			normalized, err := normalizeValue(entry)
			if err != nil {
				return nil, err
			}
			typed[index] = normalized
		}
		return typed, nil
	case json.Number:
		if integer, err := typed.Int64(); err == nil {
			return integer, nil
		}
		return typed.Float64()
	default:
		return value, nil
	}
}

// printResponse renders the response to stdout: indented JSON on a
// terminal, one compact object when piped or redirected, so scripts
// and jq get machine-shaped output without a flag. The CBOR decode
// path forces string-keyed maps, so the JSON round trip is safe.
// --diag prints RFC 8949 diagnostic notation instead, which preserves
// byte strings and integer distinctions exactly.
func printResponse(raw codec.RawMessage, diag bool) error {
	if len(raw) == 0 {
		return nil
	}

	if diag {
		notation, err := codec.Diagnose(raw)
		if err != nil {
			return fmt.Errorf("rendering response: %w", err)
		}
		fmt.Println(notation)
		return nil
	}

	var value any
	if err := codec.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	var document []byte
	var err error
	if term.IsTerminal(int(os.Stdout.Fd())) {
		document, err = json.MarshalIndent(value, "", "  ")
	} else {
		document, err = json.Marshal(value)
	}
	if err != nil {
		return fmt.Errorf("rendering response: %w", err)
	}
	fmt.Println(string(document))
	return nil
}

// saveAgentToken extracts the minted token from a verification/confirm
// response and writes it where NewServiceClient can read it back.
func saveAgentToken(raw codec.RawMessage, path string) error {
	var response struct {
		Token     []byte `cbor:"token"`
		ExpiresAt int64  `cbor:"expires_at"`
	}
	if err := codec.Unmarshal(raw, &response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(response.Token) == 0 {
		return fmt.Errorf("response carries no token (is the action verification/confirm?)")
	}

	if err := os.WriteFile(path, response.Token, 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	fmt.Fprintf(os.Stderr, "agent token written to %s (expires %s)\n",
		path, time.Unix(response.ExpiresAt, 0).UTC().Format(time.RFC3339))
	return nil
}

// auditExportFrame mirrors the CBOR stream frame audit/export writes.
// Defined here because the server-side type is in the engine binary;
// the wire format is the contract.
type auditExportFrame struct {
	GeneratedAt      int64  `cbor:"generated_at"`
	TaskCount        int    `cbor:"task_count"`
	Dump             []byte `cbor:"dump"`
	SnapshotRef      string `cbor:"snapshot_ref"`
	SnapshotSequence uint64 `cbor:"snapshot_sequence"`
}

// runAuditExport streams the audit dump and writes the JSON document
// to the output file (or stdout). Frame metadata goes to stderr so a
// redirected stdout stays a valid JSON document.
func runAuditExport(ctx context.Context, client *service.ServiceClient, fields map[string]any, outputPath string) error {
	received := false

	err := client.Stream(ctx, "audit/export", fields, func(raw codec.RawMessage) error {
		var frame auditExportFrame
		if err := codec.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("decoding export frame: %w", err)
		}
		received = true

		if outputPath != "" {
			if err := os.WriteFile(outputPath, frame.Dump, 0644); err != nil {
				return fmt.Errorf("writing dump: %w", err)
			}
		} else {
			if _, err := os.Stdout.Write(frame.Dump); err != nil {
				return fmt.Errorf("writing dump: %w", err)
			}
			fmt.Println()
		}

		fmt.Fprintf(os.Stderr, "audit export: %d tasks, %d bytes, generated %s\n",
			frame.TaskCount, len(frame.Dump),
			time.Unix(frame.GeneratedAt, 0).UTC().Format(time.RFC3339))
		if frame.SnapshotRef != "" {
			fmt.Fprintf(os.Stderr, "snapshot %d appended to the audit chain: %s\n",
				frame.SnapshotSequence, frame.SnapshotRef)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !received {
		return fmt.Errorf("audit export stream closed without a frame")
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `curia-call - send one action to the curia engine socket

The response prints as JSON: indented on a terminal, compact when
piped.

The payload file is JSONC (JSON with comments and trailing commas).
Pass "-" to read the payload from stdin; piping to curia-call without
a file argument does the same. Actions without parameters need no
payload.

Usage:
  curia-call [flags] <action> [payload-file]

Actions:
  status                     engine liveness and open task count (no token)
  verification/begin         start agent enrollment, returns the code to post
  verification/confirm       confirm the posted code, returns the agent token
  info                       operational counters and audit chain head
  task/create                create a curation task
  task/list                  open tasks (agents: excludes already-submitted)
  task/get                   one task with submissions and consensus result
  task/flagged               disputed and stale-open tasks for review
  submit                     submit an answer to an open task
  karma/get                  one agent's karma, tier, and gate verdict
  karma/leaderboard          top agents by karma
  decay/run                  apply periodic karma decay (scheduler)
  audit/export               stream the audit dump, appending a snapshot

Examples:
  # Enroll an agent and save its token.
  echo '{"handle": "ada"}' | curia-call --socket /run/curia.sock verification/begin
  echo '{"handle": "ada"}' | curia-call --socket /run/curia.sock --save-token ada.token verification/confirm

  # Create a task from a payload file (comments allowed).
  curia-call --token operator.token task/create new-task.jsonc

  # Run decay for the current period (scheduler cron line).
  curia-call --token scheduler.token decay/run

  # Export the audit dump to a file.
  curia-call --token operator.token --output audit.json audit/export

Environment:
  %-12s engine socket path (when --socket is not given)
  %-12s service token file (when --token is not given)

Flags:
`, envSocket, envToken)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
