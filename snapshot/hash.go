// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of a frame's uncompressed image
// payload.
type Hash [32]byte

// frameDomainKey is the BLAKE3 keyed-hash domain key for frame
// payloads. A fixed constant: changing it changes every frame hash.
// The byte values are the ASCII encoding of the domain name,
// zero-padded to 32 bytes, so the key is inspectable in hex dumps.
var frameDomainKey = [32]byte{
	'p', 'e', 'r', 'i', 's', 'c', 'o', 'p', 'e', '.', 'f', 'r', 'a', 'm', 'e',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFrame computes the frame-domain BLAKE3 keyed hash of the given
// payload. Hashes are always computed on uncompressed bytes so frame
// deduplication works regardless of the compression tag the host
// chose for a particular frame.
func HashFrame(payload []byte) Hash {
	hasher, err := blake3.NewKeyed(frameDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a key of the wrong length, and the
		// key is a 32-byte constant.
		panic("snapshot: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write(payload)

	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the hex encoding of the hash.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether the hash is the zero value (no payload
// hashed).
func (h Hash) IsZero() bool { return h == Hash{} }
