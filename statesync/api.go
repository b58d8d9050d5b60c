// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"github.com/periscope-project/periscope/snapshot"
)

// HTTP API paths served by the IDE host. Snapshot-returning endpoints
// respond with the CBOR frame envelope (Content-Type
// application/cbor); command endpoints speak JSON both ways.
const (
	PathConnect     = "/v1/connect"
	PathState       = "/v1/state"
	PathInputClick  = "/v1/input/click"
	PathInputBatch  = "/v1/input/batch"
	PathInputKey    = "/v1/input/key"
	PathInputSubmit = "/v1/input/submit"
)

// ClickRequest dispatches a pointer click against a selector. The
// rectangle is the clicked zone's bounds in snapshot space.
type ClickRequest struct {
	Selector string        `json:"selector"`
	Rect     snapshot.Rect `json:"rect"`
}

// BatchRequest dispatches accumulated batch text to a selector.
type BatchRequest struct {
	Text     string `json:"text"`
	Selector string `json:"selector"`
}

// KeyRequest dispatches a single control key with modifiers.
type KeyRequest struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers,omitempty"`
	Selector  string   `json:"selector"`
}

// SubmitRequest carries a complete chat message for the direct-submit
// path. Chat input never travels as per-key dispatch.
type SubmitRequest struct {
	Text string `json:"text"`
}

// AckResponse acknowledges a command endpoint request. Sequence is
// the snapshot sequence that will reflect the input.
type AckResponse struct {
	Accepted bool   `json:"accepted"`
	Sequence uint64 `json:"sequence"`
}

// ErrorResponse is the JSON shape of every non-2xx response from the
// host API. Mirrors the push stream's ErrorReport.
type ErrorResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}
