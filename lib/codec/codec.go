// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the engine's CBOR configuration.
//
// Everything that crosses the socket protocol or gets signed (token
// payloads, audit chain headers) goes through this package. Encoding
// is Core Deterministic Encoding (RFC 8949 §4.2), so the same logical
// value always produces identical bytes — a requirement for signature
// verification and for the audit chain, where a snapshot's identity is
// the hash of its bytes.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Map keys on the wire are always strings. When decoding into
		// an any-typed target the decoder has to pick a concrete map
		// type; the CBOR default map[any]any is useless to callers
		// that hand the value to encoding/json, so force
		// map[string]any. Struct targets are unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored for
// forward compatibility.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder aliases the underlying stream encoder so callers import only
// this package.
type Encoder = cbor.Encoder

// Decoder aliases the underlying stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a pre-encoded CBOR value, used to defer decoding of
// handler-specific payloads inside protocol envelopes.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8).
// Used by curia-call's --diag flag to show responses without lossy
// JSON conversion.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
