// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package consensus implements the weighted-majority tally at the
// heart of the engine: ballots carry canonical values and vote
// weights, the value with the highest weighted sum wins, and the
// outcome is disputed when no value's share of the total weight
// clears the threshold.
//
// The tally is a pure function. The engine owns eligibility (failed
// verification checks never become ballots), weighting (trust tier at
// evaluation time), and the transactional consequences (status flip,
// karma credit); this package only decides who won.
package consensus
