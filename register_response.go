// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// publicKeyLen is the size of an uncompressed P-256 point.
	publicKeyLen = 65

	// uncompressedPointForm is the SEC 1 type byte of an uncompressed point.
	uncompressedPointForm = 0x04

	// registerReservedByte is the fixed first byte of a U2F_V2 registration
	// response message.
	registerReservedByte = 0x05
)

// RawRegisterResponse is the decoded registration response message.
//
//	reserved(1, 0x05) ‖ pubKey(65) ‖ khLen(1) ‖ keyHandle(khLen)
//	                  ‖ attestation certificate (DER) ‖ signature (DER)
//
// The attestation certificate is self-delimiting, so its boundary is found by
// walking its outer DER header; the signature is the remainder and must
// itself be a complete DER object with nothing following it.
type RawRegisterResponse struct {
	Reserved        byte
	PubKey          []byte // 65-byte uncompressed P-256 point
	KeyHandle       []byte
	AttestationCert []byte // DER
	Signature       []byte // DER

	cert *x509.Certificate
}

// DecodeRegisterResponse strictly decodes a raw registration response
// message. Any structural defect fails with an error wrapping
// [ErrResponseFormat] and no partial result. Decoding is pure: it neither
// verifies the signature nor touches any durable entity.
func DecodeRegisterResponse(raw []byte) (*RawRegisterResponse, error) {
	s := cryptobyte.String(raw)

	var reserved uint8
	if !s.ReadUint8(&reserved) {
		return nil, fmt.Errorf("%w: empty registration data", ErrResponseFormat)
	}
	if reserved != registerReservedByte {
		return nil, fmt.Errorf("%w: reserved byte is %#02x, want %#02x", ErrResponseFormat, reserved, registerReservedByte)
	}

	var pubKey []byte
	if !s.ReadBytes(&pubKey, publicKeyLen) {
		return nil, fmt.Errorf("%w: public key truncated", ErrResponseFormat)
	}
	if pubKey[0] != uncompressedPointForm {
		return nil, fmt.Errorf("%w: public key is not an uncompressed EC point", ErrResponseFormat)
	}

	var khLen uint8
	if !s.ReadUint8(&khLen) {
		return nil, fmt.Errorf("%w: key handle length missing", ErrResponseFormat)
	}
	var keyHandle []byte
	if !s.ReadBytes(&keyHandle, int(khLen)) {
		return nil, fmt.Errorf("%w: key handle length %d exceeds remaining %d bytes", ErrResponseFormat, khLen, len(s))
	}

	var certDER cryptobyte.String
	if !s.ReadASN1Element(&certDER, cryptobyte_asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: attestation certificate is not a complete DER object", ErrResponseFormat)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing attestation certificate: %v", ErrResponseFormat, err)
	}

	var sig cryptobyte.String
	if !s.ReadASN1Element(&sig, cryptobyte_asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: signature is not a complete DER object", ErrResponseFormat)
	}
	if !s.Empty() {
		return nil, fmt.Errorf("%w: %d trailing bytes after signature", ErrResponseFormat, len(s))
	}

	return &RawRegisterResponse{
		Reserved:        reserved,
		PubKey:          pubKey,
		KeyHandle:       keyHandle,
		AttestationCert: certDER,
		Signature:       sig,
		cert:            cert,
	}, nil
}

// AttestationCertificate returns the parsed attestation certificate. A value
// produced by [DecodeRegisterResponse] carries the certificate parsed at
// decode time; a hand-constructed value parses AttestationCert on demand.
func (r *RawRegisterResponse) AttestationCertificate() (*x509.Certificate, error) {
	if r.cert != nil {
		return r.cert, nil
	}
	return x509.ParseCertificate(r.AttestationCert)
}

// EncodeBinary re-encodes the response into its raw message layout. For a
// value produced by [DecodeRegisterResponse] the output is byte-identical to
// the decoded input.
func (r *RawRegisterResponse) EncodeBinary() []byte {
	out := make([]byte, 0, 2+len(r.PubKey)+len(r.KeyHandle)+len(r.AttestationCert)+len(r.Signature))
	out = append(out, r.Reserved)
	out = append(out, r.PubKey...)
	out = append(out, byte(len(r.KeyHandle)))
	out = append(out, r.KeyHandle...)
	out = append(out, r.AttestationCert...)
	out = append(out, r.Signature...)
	return out
}

// signedData reconstructs the exact byte sequence covered by the attestation
// signature:
//
//	0x00 ‖ SHA256(appID) ‖ SHA256(clientDataJSON) ‖ keyHandle ‖ pubKey
func (r *RawRegisterResponse) signedData(c CryptoProvider, appID string, clientDataJSON []byte) []byte {
	buf := make([]byte, 0, 1+2*32+len(r.KeyHandle)+len(r.PubKey))
	buf = append(buf, 0x00)
	buf = append(buf, c.SHA256([]byte(appID))...)
	buf = append(buf, c.SHA256(clientDataJSON)...)
	buf = append(buf, r.KeyHandle...)
	buf = append(buf, r.PubKey...)
	return buf
}
