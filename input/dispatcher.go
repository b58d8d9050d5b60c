// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package input turns pointer and keyboard events into remote
// commands. Pointer clicks dispatch immediately; printable keystrokes
// accumulate in a batch that flushes on a length, window, or idle
// threshold so the engine does not pay one network round trip per
// character. Control keys bypass the accumulator entirely.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/periscope-project/periscope/lib/clock"
	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/zone"
)

// Batching thresholds. These are exact latency contracts: they trade
// perceived responsiveness against network chattiness, and the tests
// pin them.
const (
	// MaxBatchLength flushes the batch once this many characters
	// have accumulated.
	MaxBatchLength = 10

	// BatchWindow is the maximum age of an open batch. A batch
	// older than this flushes even while characters keep arriving.
	BatchWindow = 300 * time.Millisecond

	// DebounceIdle flushes the batch after this much inactivity
	// since the last character.
	DebounceIdle = 150 * time.Millisecond
)

// Dispatch errors. All of them are caller-visible no-ops, never
// crashes.
var (
	// ErrNoSession is returned when no live session backs the
	// dispatcher.
	ErrNoSession = errors.New("input: no live session")

	// ErrNoActiveZone is returned for key events outside typing
	// mode.
	ErrNoActiveZone = errors.New("input: no active zone")

	// ErrChatZone is returned for key events against a chat zone.
	// Chat text travels through the direct-submit path, never
	// per-keystroke dispatch.
	ErrChatZone = errors.New("input: chat zones do not take keystrokes")
)

// Sender carries commands to the remote host. Sends are synchronous:
// when a send returns, the command is on the wire, which gives batch
// flushes their strict ordering (a flush completes before the next
// batch opens). The statesync client implements Sender over the
// request/response channel.
type Sender interface {
	// SendClick dispatches a pointer click against a selector.
	SendClick(selector string, rect snapshot.Rect) error

	// SendText dispatches accumulated batch text.
	SendText(text, selector string) error

	// SendKey dispatches a single control key with modifiers.
	SendKey(key string, modifiers []string, selector string) error
}

// Batch accumulates not-yet-sent keystroke text. Created lazily on
// the first character, destroyed on flush.
type Batch struct {
	text       []rune
	startedAt  time.Time
	lastAppend time.Time
	window     *clock.Timer
	debounce   *clock.Timer

	// id guards against stale timer callbacks: a flush destroys the
	// batch, and a timer that fires afterwards finds the id no
	// longer current and does nothing.
	id uint64
}

// Len returns the number of accumulated characters.
func (b *Batch) Len() int { return len(b.text) }

// Config configures a Dispatcher.
type Config struct {
	// Sender carries the outbound commands. Required.
	Sender Sender

	// Clock drives the batching timers. Nil means the real clock.
	Clock clock.Clock

	// Logger for dispatch diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Dispatcher routes input for one session. The session controller
// enables it on connect, points it at a zone when typing mode begins,
// and deactivates it (flushing) when typing mode ends.
//
// Dispatcher is safe for concurrent use; timer callbacks fire on
// their own goroutines and synchronize with event-loop calls through
// the internal mutex.
type Dispatcher struct {
	sender Sender
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	live    bool
	active  *zone.Zone
	batch   *Batch
	batchID uint64
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("input: Sender is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: cfg.Sender, clock: clk, logger: logger}, nil
}

// SetLive marks whether a live session backs the dispatcher. Going
// dead drops any open batch without sending it: the session is gone,
// nobody is listening.
func (d *Dispatcher) SetLive(live bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live = live
	if !live {
		d.discardBatchLocked()
		d.active = nil
	}
}

// Activate points keystroke dispatch at a zone. Called by the session
// controller when typing mode begins.
func (d *Dispatcher) Activate(z zone.Zone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = &z
}

// Deactivate flushes any open batch and clears the active zone, in
// that order. Called by the session controller before it completes
// the exit from typing mode; the flush-then-clear ordering is what
// guarantees no keystroke is lost on mode exit.
func (d *Dispatcher) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.flushLocked("deactivate")
	d.active = nil
	return err
}

// ActiveZone returns the zone keystrokes currently target, or false
// outside typing mode.
func (d *Dispatcher) ActiveZone() (zone.Zone, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return zone.Zone{}, false
	}
	return *d.active, true
}

// Click dispatches a pointer click immediately. Clicks are never
// batched and do not require typing mode, only a live session.
func (d *Dispatcher) Click(z zone.Zone) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.live {
		return ErrNoSession
	}
	if err := d.sender.SendClick(z.Selector, z.Bounds); err != nil {
		return fmt.Errorf("dispatch click on %s: %w", z.Selector, err)
	}
	return nil
}

// KeyPress routes one key event. Control and navigation keys (and any
// key carrying modifiers) flush the open batch and dispatch
// immediately as a keyed command; printable characters accumulate in
// the batch.
func (d *Dispatcher) KeyPress(key string, modifiers []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.live {
		return ErrNoSession
	}
	if d.active == nil {
		return ErrNoActiveZone
	}
	if d.active.Type == snapshot.ElementChat {
		return ErrChatZone
	}

	if IsControlKey(key) || len(modifiers) > 0 {
		if err := d.flushLocked("control key"); err != nil {
			return err
		}
		if err := d.sender.SendKey(key, modifiers, d.active.Selector); err != nil {
			return fmt.Errorf("dispatch key %q: %w", key, err)
		}
		return nil
	}

	return d.appendLocked(key)
}

// Flush sends any accumulated batch text now.
func (d *Dispatcher) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked("explicit")
}

// PendingLen returns the number of characters in the open batch, zero
// when none is open.
func (d *Dispatcher) PendingLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch == nil {
		return 0
	}
	return d.batch.Len()
}

// appendLocked adds one printable character to the batch, opening it
// if necessary, and flushes when the length threshold is reached.
func (d *Dispatcher) appendLocked(key string) error {
	if d.batch == nil {
		d.batchID++
		id := d.batchID
		now := d.clock.Now()
		d.batch = &Batch{
			startedAt:  now,
			lastAppend: now,
			id:         id,
			window:     d.clock.AfterFunc(BatchWindow, func() { d.timerFlush(id, "window") }),
			debounce:   d.clock.AfterFunc(DebounceIdle, func() { d.timerFlush(id, "debounce") }),
		}
	} else {
		d.batch.lastAppend = d.clock.Now()
		d.batch.debounce.Reset(DebounceIdle)
	}

	d.batch.text = append(d.batch.text, []rune(key)...)
	if d.batch.Len() >= MaxBatchLength {
		return d.flushLocked("length")
	}
	return nil
}

// timerFlush runs on a timer goroutine. The batch id check discards
// callbacks that lost the race with an earlier flush or a session
// stop.
func (d *Dispatcher) timerFlush(id uint64, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch == nil || d.batch.id != id {
		return
	}
	if reason == "debounce" && d.clock.Now().Sub(d.batch.lastAppend) < DebounceIdle {
		// The callback fired before a concurrent Reset landed. The
		// reset re-armed the timer, so a later callback will cover
		// the new deadline.
		return
	}
	if err := d.flushLocked(reason); err != nil {
		d.logger.Warn("batch flush failed", "reason", reason, "error", err)
	}
}

// flushLocked sends the open batch, if any, and destroys it. The send
// happens with the mutex held: no new character can start a new batch
// until the flush has fully completed.
func (d *Dispatcher) flushLocked(reason string) error {
	if d.batch == nil {
		return nil
	}

	batch := d.batch
	d.discardBatchLocked()

	if batch.Len() == 0 || d.active == nil {
		return nil
	}
	if !d.live {
		// Session stopped while the batch was open; result ignored.
		return nil
	}
	if err := d.sender.SendText(string(batch.text), d.active.Selector); err != nil {
		return fmt.Errorf("flush batch (%s, %d chars): %w", reason, batch.Len(), err)
	}
	d.logger.Debug("batch flushed", "reason", reason, "chars", batch.Len())
	return nil
}

// discardBatchLocked stops the batch timers and drops the batch
// without sending.
func (d *Dispatcher) discardBatchLocked() {
	if d.batch == nil {
		return
	}
	d.batch.window.Stop()
	d.batch.debounce.Stop()
	d.batch = nil
}
