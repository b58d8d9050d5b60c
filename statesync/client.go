// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/periscope-project/periscope/lib/clock"
	"github.com/periscope-project/periscope/snapshot"
)

// Config holds configuration for creating a Client.
type Config struct {
	// APIURL is the base URL of the host's HTTP API
	// (e.g., "http://localhost:7810").
	APIURL string

	// PushAddress is the push stream listener address, in the
	// dialer's format. Empty disables the push channel; state then
	// arrives via fallback polling only.
	PushAddress string

	// Dialer opens push stream connections. Nil means a TCPDialer.
	Dialer Dialer

	// HTTPClient is used for all API requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client

	// Clock drives backoff and poll timing. Nil means the real
	// clock.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// ConnectTimeout bounds each push dial and each API request.
	// Zero means 5 seconds.
	ConnectTimeout time.Duration

	// InitialBackoff is the wait after the first failed push dial;
	// it doubles per consecutive failure up to MaxBackoff. Zero
	// means 500ms / 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxAttempts is the number of consecutive fallback poll
	// failures tolerated before the client reports an exhausted
	// transport and stops. Zero means 5.
	MaxAttempts int

	// PollInterval is the fallback polling cadence while the push
	// stream is down. Zero means 1 second.
	PollInterval time.Duration
}

// Update is one event from the host, delivered on Updates. Exactly
// one field is set.
type Update struct {
	// Snapshot is a new remote state, from the push stream, a
	// fallback poll, or a click response.
	Snapshot *snapshot.Snapshot

	// Confirmed acknowledges a previously dispatched input.
	Confirmed *InputConfirmation

	// Err reports a degraded or failed exchange: a *snapshot.DecodeError
	// for a malformed frame (previous state stays valid), a
	// *RemoteError from the host, or an exhausted *TransportError
	// (the session should move to its error state).
	Err error
}

// Client synchronizes remote state over two channels. The push stream
// is receive-only: frames arrive as they are produced, and a dropped
// stream reconnects with exponential backoff while fallback polling
// keeps state flowing. All outbound commands travel over the HTTP
// API.
type Client struct {
	baseURL     string
	pushAddress string
	dialer      Dialer
	httpClient  *http.Client
	clock       clock.Clock
	logger      *slog.Logger

	connectTimeout time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	pollInterval   time.Duration
	maxAttempts    int

	updates chan Update

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	started bool
	closed  bool
	pushUp  bool
}

// NewClient creates a Client. It performs no I/O; call Connect to
// reach the host.
func NewClient(config Config) (*Client, error) {
	if config.APIURL == "" {
		return nil, fmt.Errorf("statesync: APIURL is required")
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = &TCPDialer{Timeout: config.ConnectTimeout}
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &Client{
		baseURL:        trimTrailingSlash(config.APIURL),
		pushAddress:    config.PushAddress,
		dialer:         dialer,
		httpClient:     httpClient,
		clock:          clk,
		logger:         logger,
		connectTimeout: config.ConnectTimeout,
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
		pollInterval:   config.PollInterval,
		maxAttempts:    config.MaxAttempts,
		updates:        make(chan Update, 16),
	}
	if client.connectTimeout <= 0 {
		client.connectTimeout = 5 * time.Second
	}
	if client.initialBackoff <= 0 {
		client.initialBackoff = 500 * time.Millisecond
	}
	if client.maxBackoff <= 0 {
		client.maxBackoff = 30 * time.Second
	}
	if client.pollInterval <= 0 {
		client.pollInterval = time.Second
	}
	if client.maxAttempts <= 0 {
		client.maxAttempts = 5
	}
	client.runCtx, client.cancel = context.WithCancel(context.Background())
	client.wg = &sync.WaitGroup{}
	return client, nil
}

func trimTrailingSlash(url string) string {
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url
}

// Updates returns the channel of host events. The channel is never
// closed; after Close no further updates are delivered.
func (c *Client) Updates() <-chan Update { return c.updates }

// PushConnected reports whether the push stream is currently
// established. When false, state arrives via fallback polling.
func (c *Client) PushConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushUp
}

// Connect bootstraps the session: it fetches the initial snapshot
// over the API and starts the push stream and fallback polling. The
// returned snapshot is valid even when the push stream never
// establishes. Safe to call again after a session reset: when a
// previous run ended with an exhausted transport, the background
// loops are restarted. No loops start after Close.
func (c *Client) Connect(ctx context.Context) (*snapshot.Snapshot, error) {
	snap, err := c.requestSnapshot(ctx, http.MethodPost, PathConnect, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return snap, nil
	}
	if c.started && c.runCtx.Err() != nil {
		// The previous run ended. Let its goroutines finish, then
		// rebuild the run context so commands and loops work again.
		previous := c.wg
		c.mu.Unlock()
		previous.Wait()
		c.mu.Lock()
		if c.closed {
			return snap, nil
		}
		if c.runCtx.Err() != nil {
			c.runCtx, c.cancel = context.WithCancel(context.Background())
			c.wg = &sync.WaitGroup{}
			c.started = false
		}
	}
	if !c.started {
		c.started = true
		runCtx, cancelRun, runWG := c.runCtx, c.cancel, c.wg
		if c.pushAddress == "" {
			c.logger.Info("push channel disabled, state arrives via polling")
			runWG.Add(1)
		} else {
			runWG.Add(2)
			go c.runPush(runCtx, runWG)
		}
		go c.runPoll(runCtx, cancelRun, runWG)
	}

	return snap, nil
}

// runContext returns the context of the current run. Commands derive
// their request contexts from it so a closed or exhausted client
// fails them promptly.
func (c *Client) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runCtx
}

// State fetches the current snapshot over the API.
func (c *Client) State(ctx context.Context) (*snapshot.Snapshot, error) {
	return c.requestSnapshot(ctx, http.MethodGet, PathState, nil)
}

// Close stops the background loops and tears down the push stream.
// Close is terminal: a later Connect will not restart the loops.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	cancelRun, runWG := c.cancel, c.wg
	c.mu.Unlock()
	cancelRun()
	runWG.Wait()
	return nil
}

// SendClick dispatches a pointer click. The host responds with the
// post-click snapshot, which is delivered on Updates.
func (c *Client) SendClick(selector string, rect snapshot.Rect) error {
	runCtx := c.runContext()
	ctx, cancelRequest := context.WithTimeout(runCtx, c.connectTimeout)
	defer cancelRequest()

	snap, err := c.requestSnapshot(ctx, http.MethodPost, PathInputClick, ClickRequest{
		Selector: selector,
		Rect:     rect,
	})
	if err != nil {
		return err
	}
	c.emit(runCtx, Update{Snapshot: snap})
	return nil
}

// SendText dispatches accumulated batch text.
func (c *Client) SendText(text, selector string) error {
	ctx, cancelRequest := context.WithTimeout(c.runContext(), c.connectTimeout)
	defer cancelRequest()

	_, err := c.requestAck(ctx, PathInputBatch, BatchRequest{Text: text, Selector: selector})
	return err
}

// SendKey dispatches a single control key with modifiers.
func (c *Client) SendKey(key string, modifiers []string, selector string) error {
	ctx, cancelRequest := context.WithTimeout(c.runContext(), c.connectTimeout)
	defer cancelRequest()

	_, err := c.requestAck(ctx, PathInputKey, KeyRequest{
		Key:       key,
		Modifiers: modifiers,
		Selector:  selector,
	})
	return err
}

// SubmitText sends a complete chat message over the direct-submit
// path.
func (c *Client) SubmitText(ctx context.Context, text string) (AckResponse, error) {
	return c.requestAck(ctx, PathInputSubmit, SubmitRequest{Text: text})
}

// runPush maintains the push stream: dial, read until the stream
// drops, back off, redial. Dial failures degrade to fallback polling
// rather than ending the session, so the redial loop runs for the
// client's whole life.
func (c *Client) runPush(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	backoff := c.initialBackoff
	for {
		dialCtx, cancelDial := context.WithTimeout(ctx, c.connectTimeout)
		conn, err := c.dialer.DialContext(dialCtx, c.pushAddress)
		cancelDial()
		if ctx.Err() != nil {
			if err == nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			c.logger.Warn("push dial failed", "address", c.pushAddress, "backoff", backoff, "error", err)
			if !c.wait(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		backoff = c.initialBackoff
		c.setPushUp(true)
		c.logger.Info("push stream established", "address", c.pushAddress)
		c.readStream(ctx, conn)
		c.setPushUp(false)
		c.logger.Warn("push stream dropped", "address", c.pushAddress)
	}
}

// readStream consumes frames until the stream fails or the client
// closes. A malformed state frame is dropped (reported as a decode
// error); the stream keeps going.
func (c *Client) readStream(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock ReadFrame when the client closes.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("push stream read failed", "error", err)
			}
			return
		}

		switch frame.Type {
		case FrameTypeState:
			snap, err := snapshot.DecodeFrame(frame.Payload)
			if err != nil {
				c.emit(ctx, Update{Err: err})
				continue
			}
			c.emit(ctx, Update{Snapshot: snap})

		case FrameTypeInputConfirmed:
			confirmation, err := ParseInputConfirmed(frame.Payload)
			if err != nil {
				c.logger.Warn("bad input confirmation", "error", err)
				continue
			}
			c.emit(ctx, Update{Confirmed: &confirmation})

		case FrameTypeError:
			report, err := ParseErrorReport(frame.Payload)
			if err != nil {
				c.logger.Warn("bad error frame", "error", err)
				continue
			}
			c.emit(ctx, Update{Err: &RemoteError{
				Code:        report.Code,
				Message:     report.Message,
				Recoverable: report.Recoverable,
			}})

		default:
			c.logger.Debug("unknown push frame type", "type", frame.Type)
		}
	}
}

// runPoll keeps state flowing while the push stream is down. Polls
// only fire when the stream is down; consecutive poll failures beyond
// the retry budget end the client with an exhausted transport error.
func (c *Client) runPoll(ctx context.Context, cancelRun context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()

	failures := 0
	for {
		if !c.wait(ctx, c.pollInterval) {
			return
		}
		if c.PushConnected() {
			failures = 0
			continue
		}

		pollCtx, cancelPoll := context.WithTimeout(ctx, c.connectTimeout)
		snap, err := c.State(pollCtx)
		cancelPoll()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			c.logger.Warn("fallback poll failed", "failures", failures, "error", err)
			if failures >= c.maxAttempts {
				c.emit(ctx, Update{Err: &TransportError{
					Op:        "poll state",
					Exhausted: true,
					Err:       err,
				}})
				cancelRun()
				return
			}
			continue
		}
		failures = 0
		c.emit(ctx, Update{Snapshot: snap})
	}
}

// wait sleeps on the client's clock. Returns false when the run ended
// during the wait.
func (c *Client) wait(ctx context.Context, duration time.Duration) bool {
	select {
	case <-c.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) setPushUp(up bool) {
	c.mu.Lock()
	c.pushUp = up
	c.mu.Unlock()
}

func (c *Client) emit(ctx context.Context, update Update) {
	select {
	case c.updates <- update:
	case <-ctx.Done():
	}
}

// requestSnapshot performs an API request whose response body is a
// CBOR frame envelope and decodes it.
func (c *Client) requestSnapshot(ctx context.Context, method, path string, requestBody any) (*snapshot.Snapshot, error) {
	body, err := c.doRequest(ctx, method, path, requestBody)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.DecodeFrame(body)
	if err != nil {
		return nil, fmt.Errorf("statesync: %s response: %w", path, err)
	}
	return snap, nil
}

// requestAck performs a command request and parses the JSON ack.
func (c *Client) requestAck(ctx context.Context, path string, requestBody any) (AckResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, path, requestBody)
	if err != nil {
		return AckResponse{}, err
	}
	var ack AckResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		return AckResponse{}, fmt.Errorf("statesync: failed to parse %s response: %w", path, err)
	}
	return ack, nil
}

// doRequest performs an HTTP request to the host API and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *RemoteError. Transport-level failures return a *TransportError.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("statesync: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("statesync: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxFramePayload))
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All host error responses use the same JSON shape.
	var hostErr ErrorResponse
	if jsonErr := json.Unmarshal(responseBody, &hostErr); jsonErr != nil {
		// Non-JSON error body. Fail loud with what we got.
		return nil, fmt.Errorf("statesync: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	return nil, &RemoteError{
		Code:        hostErr.Code,
		Message:     hostErr.Message,
		Recoverable: hostErr.Recoverable,
		StatusCode:  response.StatusCode,
	}
}
