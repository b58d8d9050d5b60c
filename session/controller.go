// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the mirroring engine's typing-mode state
// machine. The [Controller] owns the session lifecycle from connect
// request to explicit stop or unrecoverable transport failure, and it
// is the only mutator of the active zone: external callers hold a
// [Session] handle returned from Connect instead of reaching through
// shared state.
//
// State machine:
//
//	Idle → Connecting → Connected ⇄ TypingActive
//
// with Error reachable from any state on exhausted transport retry,
// and Idle the terminal state after an explicit stop. From Error only
// Idle (full reset) is reachable. Leaving TypingActive flushes any
// open keystroke batch before the transition completes.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/periscope-project/periscope/input"
	"github.com/periscope-project/periscope/zone"
)

// Mode is the session state.
type Mode int

const (
	// Idle: no session. The terminal state after stop, and the only
	// state a new connect may start from.
	Idle Mode = iota

	// Connecting: connect requested, no state delivered yet.
	Connecting

	// Connected: state flowing, not capturing keystrokes.
	Connected

	// TypingActive: keystrokes are captured and routed to the
	// active zone.
	TypingActive

	// Error: transport failed beyond the retry policy. Only a full
	// reset leads out.
	Error
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case TypingActive:
		return "typing-active"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Session is the handle external callers hold for one mirrored
// target. A handle is invalidated when its session stops; calls
// through a stale handle return [ErrStaleSession] instead of mutating
// a successor session.
type Session struct {
	// ID is the session's ordinal, unique within the controller.
	ID uint64

	// Target identifies the remote endpoint being mirrored.
	Target string

	controller *Controller
	generation uint64
}

// StopTyping leaves typing mode, flushing any open batch first.
func (s *Session) StopTyping() error {
	return s.controller.stopTyping(s.generation)
}

// Stop ends the session: timers cancelled, batch discarded, mode back
// to Idle. Idempotent through the same handle.
func (s *Session) Stop() error {
	return s.controller.stop(s.generation)
}

// Controller errors.
var (
	// ErrBusy is returned by Connect when a session already exists.
	ErrBusy = errors.New("session: already connected or connecting")

	// ErrNotConnected is returned for interaction with no live
	// connected session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrStaleSession is returned for calls through a handle whose
	// session has already ended.
	ErrStaleSession = errors.New("session: handle is stale")
)

// Config configures a Controller.
type Config struct {
	// Dispatcher routes the input this controller gates. Required.
	Dispatcher *input.Dispatcher

	// Logger is used for transition logging. Nil means
	// slog.Default().
	Logger *slog.Logger

	// OnModeChange, when set, is called after every mode
	// transition with the new mode. Called without internal locks
	// held; the viewer uses it to restyle the status line.
	OnModeChange func(Mode)
}

// Controller is the typing-mode state machine for one mirrored
// target at a time.
type Controller struct {
	dispatcher *input.Dispatcher
	logger     *slog.Logger
	onChange   func(Mode)

	mu         sync.Mutex
	mode       Mode
	session    *Session
	activeZone *zone.Zone
	generation uint64
	nextID     uint64
}

// NewController creates a Controller in Idle.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("session: Dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		onChange:   cfg.OnModeChange,
	}, nil
}

// Mode returns the current session mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ActiveZone returns the zone keystrokes currently target. Non-nil
// exactly when the mode is TypingActive.
func (c *Controller) ActiveZone() *zone.Zone {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeZone == nil {
		return nil
	}
	copied := *c.activeZone
	return &copied
}

// Connect starts a session toward the given target and moves Idle →
// Connecting. The returned handle stays valid until the session
// stops.
func (c *Controller) Connect(target string) (*Session, error) {
	c.mu.Lock()
	if c.mode != Idle {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (mode %s)", ErrBusy, c.mode)
	}
	c.generation++
	c.nextID++
	c.session = &Session{
		ID:         c.nextID,
		Target:     target,
		controller: c,
		generation: c.generation,
	}
	session := c.session
	c.setModeLocked(Connecting)
	c.mu.Unlock()

	c.notify(Connecting)
	return session, nil
}

// StateDelivered records a successful state delivery (push or
// fallback). The first one completes the connect: Connecting →
// Connected and the dispatcher goes live. Later deliveries are
// no-ops for the state machine.
func (c *Controller) StateDelivered() {
	c.mu.Lock()
	if c.mode != Connecting {
		c.mu.Unlock()
		return
	}
	c.setModeLocked(Connected)
	c.mu.Unlock()

	c.dispatcher.SetLive(true)
	c.notify(Connected)
}

// HandleClick routes a pointer click against a zone. The click is
// dispatched immediately; when the zone is typeable (editor,
// terminal, input) the session enters TypingActive targeting it.
// Chat zones take the click but never enter typing mode — their text
// arrives through the direct-submit affordance.
func (c *Controller) HandleClick(z zone.Zone) error {
	c.mu.Lock()
	if c.mode != Connected && c.mode != TypingActive {
		c.mu.Unlock()
		return fmt.Errorf("%w (mode %s)", ErrNotConnected, c.mode)
	}

	// Switching targets while typing flushes the old zone's batch
	// before the new zone takes over.
	left := false
	if c.mode == TypingActive {
		if err := c.dispatcher.Deactivate(); err != nil {
			c.logger.Warn("flush on zone switch failed", "error", err)
		}
		c.activeZone = nil
		c.setModeLocked(Connected)
		left = true
	}

	if err := c.dispatcher.Click(z); err != nil {
		c.mu.Unlock()
		if left {
			c.notify(Connected)
		}
		return err
	}

	entered := false
	if z.Typeable() {
		c.dispatcher.Activate(z)
		copied := z
		c.activeZone = &copied
		c.setModeLocked(TypingActive)
		entered = true
	}
	c.mu.Unlock()

	switch {
	case entered:
		c.notify(TypingActive)
	case left:
		c.notify(Connected)
	}
	return nil
}

// HandleKey routes a key event. The cancel key (Escape) leaves typing
// mode — flushing the open batch first — instead of being dispatched.
func (c *Controller) HandleKey(key string, modifiers []string) error {
	c.mu.Lock()
	mode := c.mode
	generation := c.generation
	c.mu.Unlock()

	if key == input.KeyEscape && mode == TypingActive {
		return c.stopTyping(generation)
	}
	return c.dispatcher.KeyPress(key, modifiers)
}

// stopTyping implements TypingActive → Connected with the mandatory
// flush-then-transition ordering.
func (c *Controller) stopTyping(generation uint64) error {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return ErrStaleSession
	}
	if c.mode != TypingActive {
		c.mu.Unlock()
		return nil
	}

	// Flush before the transition completes. Deactivate clears the
	// dispatcher's target only after the batch is on the wire.
	err := c.dispatcher.Deactivate()
	c.activeZone = nil
	c.setModeLocked(Connected)
	c.mu.Unlock()

	c.notify(Connected)
	return err
}

// TransportFailed moves the session to Error after the transport's
// retry policy is exhausted. Reachable from any state. The dispatcher
// goes dead: a flush already in flight completes, but its result is
// ignored.
func (c *Controller) TransportFailed(cause error) {
	c.mu.Lock()
	if c.mode == Idle || c.mode == Error {
		c.mu.Unlock()
		return
	}
	c.logger.Error("session transport failed", "mode", c.mode.String(), "error", cause)
	c.activeZone = nil
	c.setModeLocked(Error)
	c.mu.Unlock()

	c.dispatcher.SetLive(false)
	c.notify(Error)
}

// Reset performs the full Error → Idle reset, making the controller
// connectable again.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.mode != Error {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.session = nil
	c.setModeLocked(Idle)
	c.mu.Unlock()

	c.notify(Idle)
}

// stop implements the explicit stop: any state → Idle, timers
// cancelled, open batch discarded unsent.
func (c *Controller) stop(generation uint64) error {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return ErrStaleSession
	}
	c.generation++
	c.session = nil
	c.activeZone = nil
	c.setModeLocked(Idle)
	c.mu.Unlock()

	c.dispatcher.SetLive(false)
	c.notify(Idle)
	return nil
}

// setModeLocked records a transition. Must be called with c.mu held.
func (c *Controller) setModeLocked(next Mode) {
	if c.mode == next {
		return
	}
	c.logger.Debug("session mode change", "from", c.mode.String(), "to", next.String())
	c.mode = next
}

// notify invokes the mode-change hook outside the lock.
func (c *Controller) notify(mode Mode) {
	if c.onChange != nil {
		c.onChange(mode)
	}
}
