// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy provides the engine's domain tunables, loaded from a
// single YAML file.
//
// The policy file adjusts curation behavior (consensus ratio, decay
// factor, access threshold, staleness window) without rebuilding the
// engine. Deployment wiring such as socket paths, database locations,
// and key files is NOT policy; it stays on flags and environment
// variables. Every field has a default, so a deployment without a
// policy file runs on [Default] unchanged.
//
// There is no automatic file discovery. The engine loads the file
// named by its --policy flag via [LoadFile], or uses [Default] when
// the flag is empty. This ensures deterministic, auditable tuning
// with no hidden overrides.
package policy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the full set of domain tunables for the curation engine.
type Policy struct {
	// Consensus tunes the weighted-majority evaluation.
	Consensus ConsensusPolicy `yaml:"consensus"`

	// Karma tunes crediting, decay, and the access gate.
	Karma KarmaPolicy `yaml:"karma"`

	// Tasks tunes task lifecycle handling.
	Tasks TaskPolicy `yaml:"tasks"`

	// Leaderboard tunes the public standings surface.
	Leaderboard LeaderboardPolicy `yaml:"leaderboard"`

	// Verification tunes the identity verification flow.
	Verification VerificationPolicy `yaml:"verification"`

	// Disputes tunes operator notification on disputed tasks.
	Disputes DisputePolicy `yaml:"disputes"`
}

// ConsensusPolicy tunes the weighted-majority evaluation.
type ConsensusPolicy struct {
	// Ratio is the fraction of total vote weight the winning value
	// must reach for a task to close. Below it the task is disputed.
	// Range (0, 1]. Default: 0.60.
	Ratio float64 `yaml:"ratio"`
}

// KarmaPolicy tunes crediting, decay, and the access gate.
type KarmaPolicy struct {
	// DecayFactor multiplies every agent's karma once per decay
	// period. Range (0, 1]; 1 disables decay without disabling the
	// period bookkeeping. Default: 0.80.
	DecayFactor float64 `yaml:"decay_factor"`

	// GateThreshold is the karma required for content read access,
	// boundary inclusive (karma == threshold allows). Default: 10.
	GateThreshold float64 `yaml:"gate_threshold"`
}

// TaskPolicy tunes task lifecycle handling.
type TaskPolicy struct {
	// StalenessWindow is how long a task may stay open before the
	// flagged listing surfaces it for operator intervention. Tasks
	// never time out on their own. Go duration string.
	// Default: 48h.
	StalenessWindow string `yaml:"staleness_window"`
}

// LeaderboardPolicy tunes the public standings surface.
type LeaderboardPolicy struct {
	// MaxRows caps the row count a leaderboard request may ask for;
	// larger requests are clamped, not rejected. Default: 50.
	MaxRows int `yaml:"max_rows"`
}

// VerificationPolicy tunes the identity verification flow.
type VerificationPolicy struct {
	// TokenTTL is the lifetime of the capability token minted when
	// an agent completes verification. Renewal repeats the
	// begin/confirm flow. Go duration string. Default: 720h.
	TokenTTL string `yaml:"token_ttl"`
}

// DisputePolicy tunes operator notification on disputed tasks.
type DisputePolicy struct {
	// WebhookTimeout bounds one delivery attempt to the operator
	// channel webhook. Delivery is best-effort; a timeout is logged
	// and dropped, never retried. Go duration string. Default: 10s.
	WebhookTimeout string `yaml:"webhook_timeout"`
}

// Default returns the policy every deployment starts from. The
// defaults are the engine's documented behavior; a policy file only
// overrides the fields it names.
func Default() *Policy {
	return &Policy{
		Consensus: ConsensusPolicy{
			Ratio: 0.60,
		},
		Karma: KarmaPolicy{
			DecayFactor:   0.80,
			GateThreshold: 10,
		},
		Tasks: TaskPolicy{
			StalenessWindow: "48h",
		},
		Leaderboard: LeaderboardPolicy{
			MaxRows: 50,
		},
		Verification: VerificationPolicy{
			TokenTTL: "720h",
		},
		Disputes: DisputePolicy{
			WebhookTimeout: "10s",
		},
	}
}

// LoadFile loads a policy file over the defaults. Fields absent from
// the file keep their default values. The file is the single source
// of tuning; environment variables never override it.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pol := Default()
	if err := yaml.Unmarshal(data, pol); err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return pol, nil
}

// Validate checks every tunable and reports all problems at once.
func (p *Policy) Validate() error {
	var errs []error

	if p.Consensus.Ratio <= 0 || p.Consensus.Ratio > 1 {
		errs = append(errs, fmt.Errorf("consensus.ratio must be in (0, 1], got %g", p.Consensus.Ratio))
	}

	if p.Karma.DecayFactor <= 0 || p.Karma.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("karma.decay_factor must be in (0, 1], got %g", p.Karma.DecayFactor))
	}
	if p.Karma.GateThreshold < 0 {
		errs = append(errs, fmt.Errorf("karma.gate_threshold must be >= 0, got %g", p.Karma.GateThreshold))
	}

	if _, err := parsePositiveDuration(p.Tasks.StalenessWindow); err != nil {
		errs = append(errs, fmt.Errorf("tasks.staleness_window: %w", err))
	}

	if p.Leaderboard.MaxRows < 1 {
		errs = append(errs, fmt.Errorf("leaderboard.max_rows must be >= 1, got %d", p.Leaderboard.MaxRows))
	}

	if _, err := parsePositiveDuration(p.Verification.TokenTTL); err != nil {
		errs = append(errs, fmt.Errorf("verification.token_ttl: %w", err))
	}

	if _, err := parsePositiveDuration(p.Disputes.WebhookTimeout); err != nil {
		errs = append(errs, fmt.Errorf("disputes.webhook_timeout: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StalenessWindow returns the parsed staleness window.
func (p *Policy) StalenessWindow() (time.Duration, error) {
	return parsePositiveDuration(p.Tasks.StalenessWindow)
}

// TokenTTL returns the parsed agent token lifetime.
func (p *Policy) TokenTTL() (time.Duration, error) {
	return parsePositiveDuration(p.Verification.TokenTTL)
}

// WebhookTimeout returns the parsed webhook delivery bound.
func (p *Policy) WebhookTimeout() (time.Duration, error) {
	return parsePositiveDuration(p.Disputes.WebhookTimeout)
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", duration)
	}
	return duration, nil
}
