// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import "errors"

// Every failure returned by a ceremony wraps exactly one of the sentinels
// below, so callers can classify outcomes with [errors.Is]. All of them are
// terminal for the current ceremony attempt; nothing is retried internally
// and no partial state is ever produced alongside an error.
var (
	// ErrClientDataFormat indicates the client data JSON could not be
	// parsed or was missing a required field.
	ErrClientDataFormat = errors.New("malformed client data")

	// ErrCeremonyType indicates the client data "typ" field did not match
	// the ceremony being finished. This binds a signed response to one
	// ceremony, so a registration response cannot be replayed as an
	// authentication response or vice versa.
	ErrCeremonyType = errors.New("client data type does not match ceremony")

	// ErrChallengeMismatch indicates the client data challenge was not the
	// challenge issued at ceremony start.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrUntrustedOrigin indicates the client data origin was not in the
	// caller-supplied set of allowed origins.
	ErrUntrustedOrigin = errors.New("untrusted origin")

	// ErrResponseFormat indicates the raw response message bytes were
	// structurally unsound: truncated, containing trailing data, or
	// otherwise not matching the U2F raw message layout.
	ErrResponseFormat = errors.New("malformed response message")

	// ErrSignatureInvalid indicates the token signature did not verify
	// over the reconstructed signed data.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrAttestationUntrusted indicates the attestation certificate did
	// not chain to a trusted root. Only returned when the register server
	// is configured with trust roots.
	ErrAttestationUntrusted = errors.New("attestation certificate not trusted")

	// ErrUserPresenceRequired indicates the token did not assert user
	// presence for the authentication signature.
	ErrUserPresenceRequired = errors.New("user presence not asserted")

	// ErrCounterReplay indicates the signature counter reported by the
	// token did not increase past the stored value. This is the clone
	// detection mechanism: treat it as a security event warranting device
	// revocation, not as a transient failure.
	ErrCounterReplay = errors.New("signature counter did not increase")

	// ErrCryptoProvider indicates that the wrapping error originated from
	// the crypto provider itself rather than from the data under
	// verification, so callers can tell infrastructure failures apart
	// from attacker-controlled input being rejected.
	ErrCryptoProvider = errors.New("crypto provider failure")
)
