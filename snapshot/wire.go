// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"time"

	"github.com/periscope-project/periscope/lib/codec"
)

// DecodeError reports a malformed frame: CBOR that does not parse, a
// payload that fails decompression, or a content hash mismatch. The
// engine logs it, keeps the previous good frame on screen, and
// continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// frameEnvelope is the CBOR wire shape of a state-updated frame. The
// image payload travels compressed; ImageSize and ImageHash describe
// the uncompressed bytes so the receiver can verify integrity after
// decompression.
type frameEnvelope struct {
	Sequence    uint64      `cbor:"sequence"`
	CapturedAt  int64       `cbor:"captured_at"` // unix milliseconds
	Viewport    Size        `cbor:"viewport"`
	Compression uint8       `cbor:"compression"`
	ImageSize   int         `cbor:"image_size"`
	ImageHash   []byte      `cbor:"image_hash"`
	Image       []byte      `cbor:"image"`
	Root        ElementNode `cbor:"root"`
}

// EncodeFrame serializes a snapshot into the push-channel frame
// payload, compressing the image with the requested tag. Hosts that
// send PNG should pass CompressionNone; PNG does not recompress.
func EncodeFrame(snap *Snapshot, tag CompressionTag) ([]byte, error) {
	compressed, usedTag, err := compressPayload(snap.Image, tag)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", snap.Sequence, err)
	}
	digest := HashFrame(snap.Image)

	return codec.Marshal(frameEnvelope{
		Sequence:    snap.Sequence,
		CapturedAt:  snap.CapturedAt.UnixMilli(),
		Viewport:    snap.Viewport,
		Compression: uint8(usedTag),
		ImageSize:   len(snap.Image),
		ImageHash:   digest[:],
		Image:       compressed,
		Root:        snap.Root,
	})
}

// DecodeFrame parses a push-channel frame payload into a Snapshot.
// All failure modes return a *DecodeError.
func DecodeFrame(data []byte) (*Snapshot, error) {
	var envelope frameEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, &DecodeError{Reason: "invalid CBOR envelope", Err: err}
	}

	if envelope.Viewport.Zero() {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid viewport %dx%d",
			envelope.Viewport.Width, envelope.Viewport.Height)}
	}
	if len(envelope.ImageHash) != len(Hash{}) {
		return nil, &DecodeError{Reason: fmt.Sprintf("image hash is %d bytes, want %d",
			len(envelope.ImageHash), len(Hash{}))}
	}
	if envelope.ImageSize < 0 {
		return nil, &DecodeError{Reason: "negative image size"}
	}

	image, err := decompressPayload(envelope.Image, CompressionTag(envelope.Compression), envelope.ImageSize)
	if err != nil {
		return nil, &DecodeError{Reason: "image payload", Err: err}
	}

	var declared Hash
	copy(declared[:], envelope.ImageHash)
	if computed := HashFrame(image); computed != declared {
		return nil, &DecodeError{Reason: fmt.Sprintf("image hash mismatch: declared %s, computed %s",
			declared, computed)}
	}

	return &Snapshot{
		Sequence:   envelope.Sequence,
		CapturedAt: time.UnixMilli(envelope.CapturedAt),
		Viewport:   envelope.Viewport,
		Image:      image,
		ImageHash:  declared,
		Root:       envelope.Root,
	}, nil
}
