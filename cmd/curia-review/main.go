// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/curia-foundation/curia/lib/service"
	"github.com/curia-foundation/curia/lib/version"
)

// Environment fallbacks for the connection flags. Same variables
// curia-call reads, so one exported pair serves both tools.
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
		fmt.Printf("curia-review %s\n", version.Info())
		return nil
	}

	var (
		socketPath   string
		tokenPath    string
		refreshEvery time.Duration
	)

	flagSet := pflag.NewFlagSet("curia-review", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "engine socket path (or "+envSocket+")")
	flagSet.StringVar(&tokenPath, "token", "", "operator service token file (or "+envToken+")")
	flagSet.DurationVar(&refreshEvery, "refresh", time.Minute, "queue refresh interval (0 disables)")
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
	if flagSet.NArg() > 0 {
		printHelp(flagSet)
		return fmt.Errorf("unexpected argument %q", flagSet.Arg(0))
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
	if tokenPath == "" {
		return fmt.Errorf("--token is required (or set %s): the review queue actions need an operator token", envToken)
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("stdout is not a terminal; curia-review is interactive (use curia-call task/flagged for scripts)")
	}

	client, err := service.NewServiceClient(socketPath, tokenPath)
	if err != nil {
		return err
	}

	model := newModel(newEngineSource(client), refreshEvery)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running review UI: %w", err)
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `curia-review - operator review queue for the curia engine

Usage:
  curia-review --socket <path> --token <file> [--refresh <interval>]

Shows flagged tasks (disputed, or open past the staleness horizon)
beside the selected task's submissions, check outcomes, and consensus
result. The queue reloads on the refresh interval and on demand.

Keys:
  j/k, arrows   move the queue cursor
  g / G         jump to top / bottom
  Tab           switch focus between queue and detail
  r             refresh now
  q             quit

Examples:
  curia-review --socket /run/curia/engine.sock --token operator.token
  CURIA_SOCKET=/run/curia/engine.sock curia-review --token operator.token --refresh 30s

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
