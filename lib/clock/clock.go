// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the mirroring engine's timer-heavy
// code paths. Production code injects [Real]; tests inject [Fake] and
// drive time explicitly, which makes the keystroke-batching deadlines
// (debounce, batch window) deterministic under test.
//
// Any production function that would call time.Now, time.After, or
// time.AfterFunc should accept a Clock (or be a method on a struct
// holding one) instead of reaching for the time package directly.
package clock

import "time"

// Clock is the time source used by the engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after duration d and returns a
	// Timer whose Stop method cancels the pending call. If d <= 0,
	// f runs immediately.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a scheduled one-shot callback created by AfterFunc.
type Timer struct {
	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the timer from firing. Returns true if the call
// stopped the timer, false if it already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset changes the timer to fire after duration d. Returns true if
// the timer was still active before the reset.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }
