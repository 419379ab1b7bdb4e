// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/principal"
	"github.com/curia-foundation/curia/lib/service"
	"github.com/curia-foundation/curia/lib/servicetoken"
	"github.com/curia-foundation/curia/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "keygen":
		return runKeygen(os.Args[2:])
	case "mint":
		return runMint(os.Args[2:])
	case "inspect":
		return runInspect(os.Args[2:])
	case "revoke":
		return runRevoke(os.Args[2:])
	case "version", "--version":
		fmt.Printf("curia-token %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: curia-token <subcommand> [flags]

Subcommands:
  keygen      Generate the engine's Ed25519 signing keypair
  mint        Mint an operator, scheduler, or content-host token
  inspect     Decode a token file and print its payload
  revoke      Sign a revocation for token IDs and deliver it
  version     Print version information

Run 'curia-token <subcommand> --help' for subcommand flags.
`)
}

// runKeygen generates the deployment signing keypair. The private key
// goes to the engine (--signing-key); the public key is for offline
// token inspection and any future sibling verifier.
func runKeygen(args []string) error {
	flags := pflag.NewFlagSet("keygen", pflag.ExitOnError)
	var (
		privatePath string
		publicPath  string
	)
	flags.StringVar(&privatePath, "private", "curia.key", "private key output path (written 0600)")
	flags.StringVar(&publicPath, "public", "curia.key.pub", "public key output path")
	flags.Parse(args)

	public, private, err := servicetoken.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := servicetoken.SavePrivateKey(privatePath, private); err != nil {
		return err
	}
	if err := servicetoken.SavePublicKey(publicPath, public); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "signing keypair written: %s (private, keep with the engine), %s (public)\n",
		privatePath, publicPath)
	return nil
}

// grantsForSubject maps a principal's role to its grant preset. Agent
// principals are refused: the engine mints those at verification time
// with the handle-scoped grant set.
func grantsForSubject(subject string) ([]servicetoken.Grant, error) {
	if err := principal.Validate(subject); err != nil {
		return nil, err
	}
	switch principal.Role(subject) {
	case principal.RoleOperator:
		return curation.OperatorGrants(), nil
	case principal.RoleScheduler:
		return curation.SchedulerGrants(), nil
	case principal.RoleHost:
		return curation.HostGrants(), nil
	case principal.RoleAgent:
		return nil, fmt.Errorf("agent tokens are minted by the engine at verification time (curia-call verification/confirm)")
	default:
		return nil, fmt.Errorf("no grant preset for principal %q", subject)
	}
}

// mintRoleToken builds and signs a token for an offline role.
func mintRoleToken(privateKey ed25519.PrivateKey, subject string, ttl time.Duration, now time.Time) ([]byte, *servicetoken.Token, error) {
	grants, err := grantsForSubject(subject)
	if err != nil {
		return nil, nil, err
	}
	id, err := servicetoken.NewTokenID()
	if err != nil {
		return nil, nil, err
	}
	token := &servicetoken.Token{
		Subject:   subject,
		Audience:  curation.TokenAudience,
		Grants:    grants,
		ID:        id,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	wire, err := servicetoken.Mint(privateKey, token)
	if err != nil {
		return nil, nil, err
	}
	return wire, token, nil
}

// runMint mints a role token. The raw wire bytes go to --output (the
// file curia-call and the engine's socket clients read); stdout gets
// the base64url form the content host presents as an HTTP bearer
// value. Record the token ID: revocation needs it.
func runMint(args []string) error {
	flags := pflag.NewFlagSet("mint", pflag.ExitOnError)
	var (
		keyPath    string
		subject    string
		ttl        time.Duration
		outputPath string
	)
	flags.StringVar(&keyPath, "key", "", "engine signing key file (required)")
	flags.StringVar(&subject, "subject", "", "token principal, e.g. operator/ops-main, scheduler/cron, host/wiki (required)")
	flags.DurationVar(&ttl, "ttl", 2160*time.Hour, "token lifetime")
	flags.StringVar(&outputPath, "output", "", "token file to write (required; raw wire bytes, 0600)")
	flags.Parse(args)

	if keyPath == "" || subject == "" || outputPath == "" {
		flags.Usage()
		return fmt.Errorf("--key, --subject, and --output are required")
	}

	privateKey, err := servicetoken.LoadPrivateKey(keyPath)
	if err != nil {
		return err
	}

	wire, token, err := mintRoleToken(privateKey, subject, ttl, time.Now())
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, wire, 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}

	fmt.Println(base64.RawURLEncoding.EncodeToString(wire))
	fmt.Fprintf(os.Stderr, "minted %s token %s: %s, expires %s\n",
		principal.Role(subject), token.ID, outputPath,
		time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339))
	return nil
}

// tokenView is the JSON rendering of a token payload for inspect.
type tokenView struct {
	Subject   string      `json:"subject"`
	Audience  string      `json:"audience"`
	Grants    []grantView `json:"grants,omitempty"`
	ID        string      `json:"id"`
	IssuedAt  string      `json:"issued_at"`
	ExpiresAt string      `json:"expires_at"`
}

type grantView struct {
	Actions []string `json:"actions"`
	Targets []string `json:"targets,omitempty"`
}

func viewToken(token *servicetoken.Token) tokenView {
	view := tokenView{
		Subject:   token.Subject,
		Audience:  token.Audience,
		ID:        token.ID,
		IssuedAt:  time.Unix(token.IssuedAt, 0).UTC().Format(time.RFC3339),
		ExpiresAt: time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339),
	}
	for _, grant := range token.Grants {
		view.Grants = append(view.Grants, grantView{
			Actions: grant.Actions,
			Targets: grant.Targets,
		})
	}
	return view
}

// runInspect decodes a token file and prints the payload as JSON. The
// decode does not check the signature; pass --public to verify against
// the deployment key as well (failure exits non-zero after printing,
// so the payload is still available for diagnosis).
func runInspect(args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	var publicPath string
	flags.StringVar(&publicPath, "public", "", "public key file: also verify signature and expiry")
	flags.Parse(args)

	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("expected one token file argument")
	}
	tokenBytes, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}

	token, err := servicetoken.Decode(tokenBytes)
	if err != nil {
		return err
	}

	document, err := json.MarshalIndent(viewToken(token), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(document))

	if publicPath != "" {
		publicKey, err := servicetoken.LoadPublicKey(publicPath)
		if err != nil {
			return err
		}
		if _, err := servicetoken.VerifyAt(publicKey, tokenBytes, time.Now()); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "signature valid, expires %s\n",
			time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

// buildRevocation signs a revocation request covering the given token
// IDs. Every entry shares one blacklist retention deadline; entries
// are pruned from the engine's blacklist after it passes.
func buildRevocation(privateKey ed25519.PrivateKey, tokenIDs []string, retainUntil, now time.Time) ([]byte, error) {
	request := &servicetoken.RevocationRequest{
		IssuedAt: now.Unix(),
	}
	for _, tokenID := range tokenIDs {
		request.Entries = append(request.Entries, servicetoken.RevocationEntry{
			TokenID:   tokenID,
			ExpiresAt: retainUntil.Unix(),
		})
	}
	return servicetoken.SignRevocation(privateKey, request)
}

// runRevoke signs a revocation for the listed token IDs and either
// sends it to a running engine, writes it to a file for later
// delivery, or both. The revoke-tokens action authenticates the
// request by its own signature, so no caller token is needed.
func runRevoke(args []string) error {
	flags := pflag.NewFlagSet("revoke", pflag.ExitOnError)
	var (
		keyPath    string
		socketPath string
		outputPath string
		retain     time.Duration
	)
	flags.StringVar(&keyPath, "key", "", "engine signing key file (required)")
	flags.StringVar(&socketPath, "socket", "", "engine socket: deliver the revocation now")
	flags.StringVar(&outputPath, "output", "", "write the signed revocation to this file")
	flags.DurationVar(&retain, "retain", 8760*time.Hour, "how long the engine keeps the blacklist entries (the revoked token's remaining lifetime is enough)")
	flags.Parse(args)

	if keyPath == "" {
		flags.Usage()
		return fmt.Errorf("--key is required")
	}
	if socketPath == "" && outputPath == "" {
		flags.Usage()
		return fmt.Errorf("nothing to do: pass --socket to deliver, --output to save, or both")
	}
	tokenIDs := flags.Args()
	if len(tokenIDs) == 0 {
		flags.Usage()
		return fmt.Errorf("expected one or more token IDs (curia-token inspect shows a token's ID)")
	}

	privateKey, err := servicetoken.LoadPrivateKey(keyPath)
	if err != nil {
		return err
	}

	now := time.Now()
	signed, err := buildRevocation(privateKey, tokenIDs, now.Add(retain), now)
	if err != nil {
		return err
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, signed, 0600); err != nil {
			return fmt.Errorf("writing revocation: %w", err)
		}
		fmt.Fprintf(os.Stderr, "signed revocation for %d token(s) written to %s\n", len(tokenIDs), outputPath)
	}

	if socketPath != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		client := service.NewServiceClientFromToken(socketPath, nil)
		var result struct {
			Revoked int `cbor:"revoked"`
		}
		if err := client.Call(ctx, "revoke-tokens", map[string]any{"revocation": signed}, &result); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "engine confirmed %d token(s) revoked\n", result.Revoked)
	}
	return nil
}
