// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// flagUserPresent is bit 0 of the user presence byte, set when the token
// confirmed a local user action (e.g. a button touch) for this signature.
const flagUserPresent = 0x01

// RawSignResponse is the decoded authentication response message.
//
//	userPresence(1) ‖ counter(4, big-endian) ‖ signature (DER)
type RawSignResponse struct {
	Flags     byte
	Counter   uint32
	Signature []byte // DER
}

// DecodeSignResponse strictly decodes a raw authentication response message.
// Any structural defect fails with an error wrapping [ErrResponseFormat] and
// no partial result. Decoding is pure.
func DecodeSignResponse(raw []byte) (*RawSignResponse, error) {
	s := cryptobyte.String(raw)

	var flags uint8
	if !s.ReadUint8(&flags) {
		return nil, fmt.Errorf("%w: empty signature data", ErrResponseFormat)
	}
	var counter uint32
	if !s.ReadUint32(&counter) {
		return nil, fmt.Errorf("%w: counter truncated", ErrResponseFormat)
	}

	var sig cryptobyte.String
	if !s.ReadASN1Element(&sig, cryptobyte_asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: signature is not a complete DER object", ErrResponseFormat)
	}
	if !s.Empty() {
		return nil, fmt.Errorf("%w: %d trailing bytes after signature", ErrResponseFormat, len(s))
	}

	return &RawSignResponse{Flags: flags, Counter: counter, Signature: sig}, nil
}

// UserPresent reports whether the token asserted user presence.
func (r *RawSignResponse) UserPresent() bool { return r.Flags&flagUserPresent != 0 }

// EncodeBinary re-encodes the response into its raw message layout. For a
// value produced by [DecodeSignResponse] the output is byte-identical to the
// decoded input.
func (r *RawSignResponse) EncodeBinary() []byte {
	out := make([]byte, 0, 5+len(r.Signature))
	out = append(out, r.Flags)
	out = binary.BigEndian.AppendUint32(out, r.Counter)
	out = append(out, r.Signature...)
	return out
}

// signedData reconstructs the exact byte sequence covered by the device key
// signature:
//
//	SHA256(appID) ‖ userPresence(1) ‖ counter(4, big-endian) ‖ SHA256(clientDataJSON)
func (r *RawSignResponse) signedData(c CryptoProvider, appID string, clientDataJSON []byte) []byte {
	buf := make([]byte, 0, 2*32+5)
	buf = append(buf, c.SHA256([]byte(appID))...)
	buf = append(buf, r.Flags)
	buf = binary.BigEndian.AppendUint32(buf, r.Counter)
	buf = append(buf, c.SHA256(clientDataJSON)...)
	return buf
}
