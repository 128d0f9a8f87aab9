// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject a Fake and advance it deterministically.
//
// The ledger polling loops and the annealing controller's round
// deadlines are all driven through a Clock, so tests of timeout
// behavior (incomplete rounds, poll expiry) never sleep for real.
package clock

import "time"

// Clock is the subset of the time package BSMD components use. Any
// production function that would call time.Now, time.After, or
// time.Sleep takes a Clock instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}
