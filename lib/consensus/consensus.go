// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

// Ballot is one tally-eligible submission's contribution to a task's
// consensus: a canonical value, the submitting agent's vote weight at
// evaluation time, and the submission instant for tie-breaking.
type Ballot struct {
	// Value is the canonicalized submitted value. Callers
	// canonicalize before tallying; Tally compares values exactly.
	Value string

	// Weight is the agent's vote weight (1, or 2 for trusted
	// agents). Weights below 1 are treated as 1.
	Weight int

	// SubmittedAt is the submission time in Unix seconds. Between
	// equally weighted values the one whose earliest ballot came
	// first wins.
	SubmittedAt int64
}

// Outcome is the result of a weighted-majority tally.
type Outcome struct {
	// Winner is the canonical value with the highest weighted sum.
	// Empty when Disputed.
	Winner string

	// WinningWeight is the weighted sum behind the winner.
	WinningWeight int

	// TotalWeight is the weighted sum across every ballot.
	TotalWeight int

	// Ratio is WinningWeight / TotalWeight, or 0 with no ballots.
	Ratio float64

	// Disputed is set when no value's share reaches the threshold.
	// A disputed tally credits nobody.
	Disputed bool
}

// Tally computes the weighted majority among the ballots. The winner
// is the value with the highest weighted sum; ties break to the value
// whose earliest ballot has the smallest SubmittedAt. Consensus is
// reached iff the winner's share of the total weight is at least
// threshold; otherwise the outcome is disputed.
//
// An empty ballot list (every submission failed its verification
// check) is always disputed.
func Tally(ballots []Ballot, threshold float64) Outcome {
	if len(ballots) == 0 {
		return Outcome{Disputed: true}
	}

	type valueTally struct {
		weight   int
		earliest int64
	}
	tallies := make(map[string]*valueTally)

	var totalWeight int
	for _, ballot := range ballots {
		weight := ballot.Weight
		if weight < 1 {
			weight = 1
		}
		totalWeight += weight

		tally, ok := tallies[ballot.Value]
		if !ok {
			tallies[ballot.Value] = &valueTally{weight: weight, earliest: ballot.SubmittedAt}
			continue
		}
		tally.weight += weight
		if ballot.SubmittedAt < tally.earliest {
			tally.earliest = ballot.SubmittedAt
		}
	}

	// Winner selection must be deterministic regardless of map
	// iteration order: weight, then earliest ballot, then value. The
	// value tie-break only decides between ballots landing on the
	// same second, but re-running evaluation has to reproduce the
	// same winner.
	var winner string
	var winning *valueTally
	for value, tally := range tallies {
		switch {
		case winning == nil,
			tally.weight > winning.weight,
			tally.weight == winning.weight && tally.earliest < winning.earliest,
			tally.weight == winning.weight && tally.earliest == winning.earliest && value < winner:
			winner = value
			winning = tally
		}
	}

	outcome := Outcome{
		Winner:        winner,
		WinningWeight: winning.weight,
		TotalWeight:   totalWeight,
		Ratio:         float64(winning.weight) / float64(totalWeight),
	}
	outcome.Disputed = outcome.Ratio < threshold
	if outcome.Disputed {
		outcome.Winner = ""
	}
	return outcome
}
