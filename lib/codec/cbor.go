// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Periscope's standard CBOR encoding. All push
// channel frames and snapshot envelopes go through this package so the
// encoder and decoder options are configured in exactly one place.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, which keeps frame hashes stable.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility with
// newer IDE hosts.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// When the decode target is any-typed (error payload detail
		// maps, for example), produce map[string]any rather than the
		// CBOR default map[interface{}]interface{}, which nothing in
		// Go wants to consume. Struct field decoding is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. It delays decoding of a
// frame's payload until the frame type is known. Type alias so
// consumers import only lib/codec, not fxamacker/cbor directly.
type RawMessage = cbor.RawMessage
