// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package statesync connects the engine to a remote IDE host over two
// channels: a receive-only push stream of framed CBOR messages, and an
// HTTP JSON API for bootstrap, commands, and fallback polling when the
// push stream is down.
//
// The package is organized around the sync data flow:
//
//   - protocol.go: wire format for the push stream (framed binary messages)
//   - api.go: request and response bodies for the HTTP command API
//   - transport.go: Dialer abstraction, TCP and in-memory implementations
//   - client.go: connection lifecycle, reconnect, and command dispatch
package statesync

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/periscope-project/periscope/lib/codec"
)

// Frame type constants for the push stream wire format. Each frame is
// a 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by the payload.
const (
	// FrameTypeState carries a state-updated snapshot envelope
	// (see the snapshot package's frame encoding). Host→client only.
	FrameTypeState byte = 0x01

	// FrameTypeInputConfirmed acknowledges a dispatched input
	// command. Host→client only. Payload is a CBOR
	// InputConfirmation.
	FrameTypeInputConfirmed byte = 0x02

	// FrameTypeError carries a host-side error report. Host→client
	// only. Payload is a CBOR ErrorReport.
	FrameTypeError byte = 0x03
)

// frameHeaderLength is the fixed size of a frame header: 1 byte type
// + 4 bytes payload length.
const frameHeaderLength = 5

// maxFramePayload is the maximum allowed payload size. State frames
// carry a full-viewport image, so the ceiling is generous.
const maxFramePayload = 64 * 1024 * 1024

// Frame is a single push stream frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteFrame(w io.Writer, frame Frame) error {
	var header [frameHeaderLength]byte
	header[0] = frame.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a framed message from r. Returns an error if the
// stream is malformed or the payload exceeds maxFramePayload.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	frameType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxFramePayload {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxFramePayload)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return Frame{Type: frameType, Payload: payload}, nil
}

// InputConfirmation is the payload of an input-confirmed frame: the
// host echoes the key (or batch) it applied and the snapshot sequence
// that reflects it.
type InputConfirmation struct {
	Key      string `cbor:"key"`
	Sequence uint64 `cbor:"sequence"`
}

// ErrorReport is the payload of an error frame. Recoverable errors
// degrade the stream; unrecoverable ones end the session.
type ErrorReport struct {
	Code        string `cbor:"code"`
	Message     string `cbor:"message"`
	Recoverable bool   `cbor:"recoverable"`
}

// NewStateFrame wraps an encoded snapshot envelope in a state frame.
func NewStateFrame(envelope []byte) Frame {
	return Frame{Type: FrameTypeState, Payload: envelope}
}

// NewInputConfirmedFrame creates an input-confirmed frame.
func NewInputConfirmedFrame(confirmation InputConfirmation) (Frame, error) {
	payload, err := codec.Marshal(confirmation)
	if err != nil {
		return Frame{}, fmt.Errorf("encode input confirmation: %w", err)
	}
	return Frame{Type: FrameTypeInputConfirmed, Payload: payload}, nil
}

// ParseInputConfirmed extracts the confirmation from an
// input-confirmed frame payload.
func ParseInputConfirmed(payload []byte) (InputConfirmation, error) {
	var confirmation InputConfirmation
	if err := codec.Unmarshal(payload, &confirmation); err != nil {
		return InputConfirmation{}, fmt.Errorf("decode input confirmation: %w", err)
	}
	return confirmation, nil
}

// NewErrorFrame creates an error frame.
func NewErrorFrame(report ErrorReport) (Frame, error) {
	payload, err := codec.Marshal(report)
	if err != nil {
		return Frame{}, fmt.Errorf("encode error report: %w", err)
	}
	return Frame{Type: FrameTypeError, Payload: payload}, nil
}

// ParseErrorReport extracts the report from an error frame payload.
func ParseErrorReport(payload []byte) (ErrorReport, error) {
	var report ErrorReport
	if err := codec.Unmarshal(payload, &report); err != nil {
		return ErrorReport{}, fmt.Errorf("decode error report: %w", err)
	}
	return report, nil
}
