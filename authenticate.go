// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"fmt"
	"time"
)

// StartedAuthentication is the ephemeral state of one authentication ceremony
// between start and finish. Like [StartedRegistration], it is owned and
// persisted by the caller and must not be reused across more than one finish
// attempt.
type StartedAuthentication struct {
	Challenge Challenge
	AppID     string

	// KeyHandle selects which registered device the ceremony targets.
	KeyHandle []byte

	// IssuedAt records when the challenge was drawn. Expiry is the
	// caller's policy.
	IssuedAt time.Time
}

// AuthenticateServer drives the authentication ceremony. The zero value is
// usable and verifies with the standard library crypto.
type AuthenticateServer struct {
	// Crypto supplies hashing, randomness, and signature verification.
	// Nil selects [StdCrypto].
	Crypto CryptoProvider
}

func (s *AuthenticateServer) crypto() CryptoProvider {
	if s.Crypto != nil {
		return s.Crypto
	}
	return StdCrypto{}
}

// StartAuthentication draws a fresh challenge targeting the given registered
// device. Its only effect is consuming randomness.
func (s *AuthenticateServer) StartAuthentication(appID string, device *DeviceRegistration) (*StartedAuthentication, error) {
	challenge, err := newChallenge(s.crypto())
	if err != nil {
		return nil, err
	}
	return &StartedAuthentication{
		Challenge: challenge,
		AppID:     appID,
		KeyHandle: device.KeyHandle,
		IssuedAt:  time.Now(),
	}, nil
}

// FinishAuthentication validates the client data against the started
// ceremony, decodes the raw authentication response, verifies the signature
// over the reconstructed signed data using the device public key, requires
// the user presence bit, and enforces that the reported counter is strictly
// greater than the stored one.
//
// On success it returns the new counter value. The caller must write it back
// into the persisted registration atomically with respect to concurrent
// authentications of the same device, re-validating newCounter > stored at
// write time (see [DeviceState.UpdateCounter]); the package does not enforce
// that atomicity itself. The device entity passed in is never mutated.
//
// A counter at or below the stored value fails with [ErrCounterReplay] even
// when the signature is valid: a cloned token may hold the same key with an
// independent counter, so this outcome warrants device revocation rather than
// retry.
func (s *AuthenticateServer) FinishAuthentication(started *StartedAuthentication, resp SignResponse, device *DeviceRegistration, allowedOrigins []string) (uint32, error) {
	c := s.crypto()

	clientDataJSON, err := decodeBase64(resp.ClientData)
	if err != nil {
		return 0, fmt.Errorf("%w: decoding client data: %v", ErrClientDataFormat, err)
	}
	if _, err := VerifyClientData(clientDataJSON, AuthenticateCeremony, started.Challenge, allowedOrigins); err != nil {
		return 0, err
	}

	raw, err := decodeBase64(resp.SignatureData)
	if err != nil {
		return 0, fmt.Errorf("%w: decoding signature data: %v", ErrResponseFormat, err)
	}
	sr, err := DecodeSignResponse(raw)
	if err != nil {
		return 0, err
	}

	ok, err := c.VerifyECDSAP256(device.PubKey, sr.signedData(c, started.AppID, clientDataJSON), sr.Signature)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCryptoProvider, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: device signature", ErrSignatureInvalid)
	}

	if !sr.UserPresent() {
		return 0, ErrUserPresenceRequired
	}

	if sr.Counter <= device.Counter {
		return 0, fmt.Errorf("%w: got %d, stored %d", ErrCounterReplay, sr.Counter, device.Counter)
	}

	return sr.Counter, nil
}
