// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import "fmt"

// TransportError reports a failed exchange with the host: a refused
// dial, a dropped push stream, or an HTTP request that never got a
// response. Transport errors are retryable; the client degrades to
// fallback polling rather than failing the session. Only exhausted
// retries surface as a fatal update.
type TransportError struct {
	// Op names the exchange that failed ("dial push", "poll state").
	Op string

	// Exhausted marks the error as final: the retry budget is spent
	// and the session should move to its error state.
	Exhausted bool

	Err error
}

func (e *TransportError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("statesync: %s: retries exhausted: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("statesync: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is an error reported by the host itself, either as a
// non-2xx API response or an error frame on the push stream. A
// recoverable RemoteError degrades the session; an unrecoverable one
// ends it.
type RemoteError struct {
	Code        string
	Message     string
	Recoverable bool

	// StatusCode is set when the error arrived as an API response.
	StatusCode int
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("statesync: host error %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("statesync: host error %s: %s", e.Code, e.Message)
}
