// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/curia-foundation/curia/lib/auditchain"
	"github.com/curia-foundation/curia/lib/clock"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/policy"
	"github.com/curia-foundation/curia/lib/process"
	"github.com/curia-foundation/curia/lib/secret"
	"github.com/curia-foundation/curia/lib/service"
	"github.com/curia-foundation/curia/lib/servicetoken"
	"github.com/curia-foundation/curia/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		socketPath        string
		dbPath            string
		signingKeyPath    string
		httpAddress       string
		policyPath        string
		blacklistPath     string
		auditDir          string
		auditKeyPath      string
		verifierURL       string
		webhookURL        string
		webhookSecretPath string
		showVersion       bool
	)

	flag.StringVar(&socketPath, "socket", "", "unix socket path for the CBOR API (required)")
	flag.StringVar(&dbPath, "db", "", "sqlite database path (required)")
	flag.StringVar(&signingKeyPath, "signing-key", "", "Ed25519 private key file for token mint and verify (required)")
	flag.StringVar(&httpAddress, "http", "127.0.0.1:8774", "listen address for the content host API (empty disables)")
	flag.StringVar(&policyPath, "policy", "", "policy YAML file (built-in defaults when empty)")
	flag.StringVar(&blacklistPath, "blacklist", "", "token revocation file, one token ID per line")
	flag.StringVar(&auditDir, "audit-dir", "", "audit chain directory (snapshot persistence disabled when empty)")
	flag.StringVar(&auditKeyPath, "audit-key", "", "32-byte key file for audit snapshot encryption")
	flag.StringVar(&verifierURL, "verifier-url", "", "identity verification collaborator base URL")
	flag.StringVar(&webhookURL, "webhook-url", "", "operator channel webhook for dispute events")
	flag.StringVar(&webhookSecretPath, "webhook-secret", "", "HMAC secret file for webhook signing (required with --webhook-url)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("curia-engine %s\n", version.Info())
		return nil
	}

	if socketPath == "" {
		return fmt.Errorf("--socket is required")
	}
	if dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	if signingKeyPath == "" {
		return fmt.Errorf("--signing-key is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Policy: built-in defaults, overridden field-by-field when a file
	// is named.
	pol := policy.Default()
	if policyPath != "" {
		loaded, err := policy.LoadFile(policyPath)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		pol = loaded
	}
	if err := pol.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	stalenessWindow, err := pol.StalenessWindow()
	if err != nil {
		return err
	}
	tokenTTL, err := pol.TokenTTL()
	if err != nil {
		return err
	}
	webhookTimeout, err := pol.WebhookTimeout()
	if err != nil {
		return err
	}

	// The signing key serves both directions: its private half mints
	// agent tokens at verification time, its public half verifies
	// every incoming token.
	signingKey, err := servicetoken.LoadPrivateKey(signingKeyPath)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	publicKey := signingKey.Public().(ed25519.PublicKey)

	blacklist := servicetoken.NewBlacklist()
	if blacklistPath != "" {
		blacklist, err = servicetoken.LoadBlacklist(blacklistPath)
		if err != nil {
			return err
		}
	}

	clk := clock.Real()

	store, err := OpenStore(StoreConfig{
		Path:           dbPath,
		ConsensusRatio: pol.Consensus.Ratio,
		Clock:          clk,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	var chain *auditchain.Chain
	if auditDir != "" {
		var auditKey *secret.Buffer
		if auditKeyPath != "" {
			auditKey, err = secret.ReadFromPath(auditKeyPath)
			if err != nil {
				return fmt.Errorf("reading audit encryption key: %w", err)
			}
		}
		chain, err = auditchain.Open(auditDir, auditKey)
		if auditKey != nil {
			auditKey.Close()
		}
		if err != nil {
			return fmt.Errorf("opening audit chain: %w", err)
		}
		if head, ok := chain.Head(); ok {
			logger.Info("audit chain loaded",
				"dir", auditDir,
				"head", head.Ref(),
				"sequence", head.Sequence,
			)
		} else {
			logger.Info("audit chain empty", "dir", auditDir)
		}
	}

	var verifier identityVerifier
	if verifierURL != "" {
		verifier = newVerifierClient(verifierURL)
	} else {
		logger.Warn("no --verifier-url: verification/confirm will fail until one is configured")
	}

	var notifier *disputeNotifier
	if webhookURL != "" {
		if webhookSecretPath == "" {
			return fmt.Errorf("--webhook-secret is required with --webhook-url")
		}
		webhookSecret, err := secret.ReadFromPath(webhookSecretPath)
		if err != nil {
			return fmt.Errorf("reading webhook secret: %w", err)
		}
		defer webhookSecret.Close()
		notifier = newDisputeNotifier(webhookURL, webhookSecret, webhookTimeout, logger)
	}

	engine := &Engine{
		store:           store,
		clock:           clk,
		logger:          logger,
		policy:          pol,
		signingKey:      signingKey,
		verifier:        verifier,
		notifier:        notifier,
		chain:           chain,
		tokenTTL:        tokenTTL,
		stalenessWindow: stalenessWindow,
		startedAt:       clk.Now(),
	}

	// The binary hash feeds the info action so operators can confirm
	// which build is serving. Failure is non-fatal.
	if hash, binaryPath, err := version.ComputeSelfHash(); err != nil {
		logger.Warn("computing binary hash", "error", err)
	} else {
		engine.binaryHash = hash
		logger.Info("binary hash computed", "hash", hash, "path", binaryPath)
	}

	authConfig := &service.AuthConfig{
		PublicKey: publicKey,
		Audience:  curation.TokenAudience,
		Blacklist: blacklist,
		Clock:     clk,
	}

	socketServer := service.NewSocketServer(socketPath, logger, authConfig)
	socketServer.RegisterRevocationHandler()
	engine.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	var httpDone chan error
	if httpAddress != "" {
		api := &hostAPI{
			store:     store,
			clock:     clk,
			logger:    logger,
			publicKey: publicKey,
			blacklist: blacklist,
			threshold: pol.Karma.GateThreshold,
			maxRows:   pol.Leaderboard.MaxRows,
		}
		httpServer := service.NewHTTPServer(service.HTTPServerConfig{
			Address: httpAddress,
			Handler: api,
			Logger:  logger,
		})
		httpDone = make(chan error, 1)
		go func() {
			httpDone <- httpServer.Serve(ctx)
		}()
	}

	logger.Info("curation engine running",
		"socket", socketPath,
		"db", dbPath,
		"http", httpAddress,
		"consensus_ratio", pol.Consensus.Ratio,
		"gate_threshold", pol.Karma.GateThreshold,
		"verifier", verifierURL != "",
		"webhook", webhookURL != "",
		"audit_chain", auditDir != "",
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	if httpDone != nil {
		if err := <-httpDone; err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	// Let in-flight dispute notifications finish; each is already
	// bounded by the webhook timeout.
	engine.notifyGroup.Wait()

	return nil
}

// Engine is the core service state shared by every socket handler.
type Engine struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger
	policy *policy.Policy

	// signingKey mints agent tokens at verification time.
	signingKey ed25519.PrivateKey

	// verifier consults the identity verification collaborator. Nil
	// when no --verifier-url is configured; verification/confirm
	// fails cleanly without it.
	verifier identityVerifier

	// notifier delivers dispute events to the operator channel. Nil
	// when no --webhook-url is configured.
	notifier *disputeNotifier

	// chain persists audit snapshots. Nil when no --audit-dir is
	// configured; audit/export still serves the dump without it.
	chain *auditchain.Chain

	tokenTTL        time.Duration
	stalenessWindow time.Duration
	startedAt       time.Time
	binaryHash      string

	// notifyGroup tracks in-flight dispute notifications so shutdown
	// can drain them.
	notifyGroup sync.WaitGroup
}
