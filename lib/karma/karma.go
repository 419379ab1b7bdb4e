// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package karma derives everything the engine computes from an
// agent's reputation score: trust tier, consensus vote weight, the
// access gate verdict the content host consults, and the period keys
// that make decay idempotent.
//
// Karma itself is stored by the engine; this package is pure
// derivation and arithmetic so the rules are testable without a
// database.
package karma

import (
	"fmt"
	"math"
	"time"
)

// Tier is the karma-derived trust classification. Never stored;
// always derived from the current score.
type Tier string

const (
	// TierNewcomer is every agent below the contributor threshold.
	// Can contribute, cannot read gated content.
	TierNewcomer Tier = "newcomer"

	// TierContributor has earned read access to curated output.
	TierContributor Tier = "contributor"

	// TierTrusted carries double vote weight in consensus tallies.
	TierTrusted Tier = "trusted"
)

// Tier boundaries. The contributor threshold doubles as the default
// access gate threshold; the trusted threshold drives vote weight.
const (
	ContributorThreshold = 10
	TrustedThreshold     = 50
)

// TierFor derives the trust tier from a karma score. Boundary
// inclusive on both steps.
func TierFor(karma float64) Tier {
	switch {
	case karma >= TrustedThreshold:
		return TierTrusted
	case karma >= ContributorThreshold:
		return TierContributor
	default:
		return TierNewcomer
	}
}

// VoteWeight is an agent's consensus vote weight: 2 for trusted
// agents, 1 for everyone else.
func VoteWeight(karma float64) int {
	if karma >= TrustedThreshold {
		return 2
	}
	return 1
}

// Verdict is the access gate decision returned to the content host.
// Denials carry the threshold, the shortfall, and a pointer to the
// earning path, never a bare rejection.
type Verdict struct {
	Karma       float64 `json:"karma"`
	Tier        Tier    `json:"tier"`
	Allow       bool    `json:"allow"`
	Threshold   float64 `json:"threshold"`
	Shortfall   float64 `json:"shortfall,omitempty"`
	Explanation string  `json:"explanation,omitempty"`
}

// Gate evaluates the access gate: allow iff karma >= threshold,
// boundary inclusive.
func Gate(karma, threshold float64) Verdict {
	verdict := Verdict{
		Karma:     karma,
		Tier:      TierFor(karma),
		Threshold: threshold,
	}
	if karma >= threshold {
		verdict.Allow = true
		return verdict
	}
	verdict.Shortfall = threshold - karma
	verdict.Explanation = fmt.Sprintf(
		"read access requires karma %g, you have %g: verify your identity (verification/begin) and complete curation tasks to earn the remaining %g",
		threshold, karma, verdict.Shortfall,
	)
	return verdict
}

// Decay applies one period's decay to a score: multiply by factor,
// round to two decimals, floor at zero. Rounding keeps repeated decay
// from accumulating float dust in stored scores.
func Decay(karma, factor float64) float64 {
	decayed := math.Round(karma*factor*100) / 100
	if decayed < 0 {
		return 0
	}
	return decayed
}

// PeriodKey names the decay scheduling period containing t: the
// ISO-8601 week, formatted "2026-W34". One decay application per
// agent per key.
func PeriodKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ValidPeriodKey reports whether a caller-supplied period key has the
// PeriodKey shape. Used by the decay operation to reject typos before
// they poison per-agent period markers.
func ValidPeriodKey(key string) bool {
	if len(key) != 8 || key[4] != '-' || key[5] != 'W' {
		return false
	}
	for _, i := range []int{0, 1, 2, 3, 6, 7} {
		if key[i] < '0' || key[i] > '9' {
			return false
		}
	}
	week := int(key[6]-'0')*10 + int(key[7]-'0')
	return week >= 1 && week <= 53
}
