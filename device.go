// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"crypto/x509"
	"encoding"
	"encoding/binary"
	"fmt"
)

// DeviceRegistration is the durable record of one registered token. It is
// created by a successful [RegisterServer.FinishRegistration] and owned by
// the caller's store from then on. The only field that changes afterward is
// Counter, written exclusively from the value returned by a successful
// [AuthenticateServer.FinishAuthentication], and only ever upward.
type DeviceRegistration struct {
	// PubKey is the device public key as a 65-byte uncompressed P-256
	// point.
	PubKey []byte

	// KeyHandle is the opaque device-chosen identifier echoed at
	// authentication to select the on-device key. Unique per device for a
	// given application.
	KeyHandle []byte

	// AttestationCert is the DER certificate that signed the registration
	// response. Retained for audit; not re-verified after registration.
	AttestationCert []byte

	// Counter is the monotonically non-decreasing signature counter
	// reported by the token. A response counter at or below this value is
	// rejected as a possible cloned token.
	Counter uint32
}

var (
	_ encoding.BinaryMarshaler   = (*DeviceRegistration)(nil)
	_ encoding.BinaryUnmarshaler = (*DeviceRegistration)(nil)
)

// MarshalBinary encodes the registration for storage-agnostic persistence:
//
//	pubKey(65) ‖ khLen(1) ‖ keyHandle(khLen) ‖ counter(4, big-endian) ‖ attestation certificate (DER)
func (d *DeviceRegistration) MarshalBinary() ([]byte, error) {
	if len(d.PubKey) != publicKeyLen {
		return nil, fmt.Errorf("public key must be %d bytes (got %d)", publicKeyLen, len(d.PubKey))
	}
	if len(d.KeyHandle) > 255 {
		return nil, fmt.Errorf("key handle exceeds 255 bytes (got %d)", len(d.KeyHandle))
	}
	out := make([]byte, 0, publicKeyLen+1+len(d.KeyHandle)+4+len(d.AttestationCert))
	out = append(out, d.PubKey...)
	out = append(out, byte(len(d.KeyHandle)))
	out = append(out, d.KeyHandle...)
	out = binary.BigEndian.AppendUint32(out, d.Counter)
	out = append(out, d.AttestationCert...)
	return out, nil
}

// UnmarshalBinary decodes the layout written by MarshalBinary.
func (d *DeviceRegistration) UnmarshalBinary(data []byte) error {
	if len(data) < publicKeyLen+1 {
		return fmt.Errorf("device registration truncated (%d bytes)", len(data))
	}
	pubKey := data[:publicKeyLen]
	rest := data[publicKeyLen:]

	khLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < khLen+4 {
		return fmt.Errorf("device registration truncated: key handle length %d exceeds remaining %d bytes", khLen, len(rest))
	}
	keyHandle := rest[:khLen]
	counter := binary.BigEndian.Uint32(rest[khLen : khLen+4])
	cert := rest[khLen+4:]
	if _, err := x509.ParseCertificate(cert); err != nil {
		return fmt.Errorf("parsing attestation certificate: %w", err)
	}

	d.PubKey = append([]byte(nil), pubKey...)
	d.KeyHandle = append([]byte(nil), keyHandle...)
	d.AttestationCert = append([]byte(nil), cert...)
	d.Counter = counter
	return nil
}
