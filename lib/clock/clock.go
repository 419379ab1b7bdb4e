// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Anything in the engine that reads the wall clock — submission
// timestamps, decay period derivation, staleness checks, token expiry —
// takes a Clock instead of calling the time package directly. Binaries
// inject Real(); tests inject Fake() pinned to a fixed epoch and move
// time explicitly with Advance, which makes period-boundary behavior
// (decay idempotence, stale-task listing) reproducible.
package clock

import "time"

// Clock is the injected time source. Real() wraps the standard time
// package; Fake() stands still until advanced.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }
