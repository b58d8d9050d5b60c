// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm applied to a
// frame's image payload. Tags travel in the frame envelope (1 byte).
// These values are protocol constants shared with IDE hosts —
// changing them breaks wire compatibility.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed payload. Hosts use
	// it for already-compressed formats (PNG) where recompression
	// costs CPU without shrinking anything.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. Fast default
	// for raw framebuffer payloads.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd at the default level. Better
	// ratio for text-heavy surfaces at higher CPU cost.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// errIncompressible signals that compression did not shrink the
// payload; the caller falls back to CompressionNone.
var errIncompressible = errors.New("payload is incompressible")

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses data with the requested algorithm.
// Returns the compressed bytes and the tag actually used: when the
// data is incompressible the payload is passed through unchanged
// under CompressionNone.
func compressPayload(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		compressed, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return data, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompressPayload reverses compressPayload. uncompressedSize must
// match the original length exactly; a mismatch is an error.
func decompressPayload(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match declared %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 when it judges the data incompressible.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
