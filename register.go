// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"crypto/x509"
	"fmt"
	"time"
)

// StartedRegistration is the ephemeral state of one registration ceremony
// between start and finish. The caller persists it (see [ChallengeState])
// and supplies the same value back to finish. It must not be reused across
// more than one finish attempt: the package keeps no nonce-burn storage, so
// callers discard the pending ceremony after one attempt regardless of
// outcome.
type StartedRegistration struct {
	Challenge Challenge
	AppID     string

	// IssuedAt records when the challenge was drawn. The package enforces
	// no expiry; callers wanting a validity window reject stale ceremonies
	// before calling finish.
	IssuedAt time.Time
}

// RegisterServer drives the registration ceremony. The zero value is usable
// and verifies with the standard library crypto.
type RegisterServer struct {
	// Crypto supplies hashing, randomness, and signature verification.
	// Nil selects [StdCrypto].
	Crypto CryptoProvider

	// TrustedRoots optionally restricts which attestation certificates
	// are accepted. When nil, any well-formed certificate is accepted and
	// retained for audit.
	TrustedRoots *x509.CertPool
}

func (s *RegisterServer) crypto() CryptoProvider {
	if s.Crypto != nil {
		return s.Crypto
	}
	return StdCrypto{}
}

// StartRegistration draws a fresh challenge for the given application. Its
// only effect is consuming randomness; the returned value is the caller's to
// persist.
func (s *RegisterServer) StartRegistration(appID string) (*StartedRegistration, error) {
	challenge, err := newChallenge(s.crypto())
	if err != nil {
		return nil, err
	}
	return &StartedRegistration{
		Challenge: challenge,
		AppID:     appID,
		IssuedAt:  time.Now(),
	}, nil
}

// FinishRegistration validates the client data against the started ceremony,
// decodes the raw registration response, and verifies the attestation
// signature over the reconstructed signed data using the attestation
// certificate's embedded public key (the manufacturer's device-issuance
// claim, not the new device key).
//
// On success it returns a new [DeviceRegistration] with Counter zero for the
// caller to persist. Any failure returns an error wrapping one of the package
// sentinels and produces no entity.
func (s *RegisterServer) FinishRegistration(started *StartedRegistration, resp RegisterResponse, allowedOrigins []string) (*DeviceRegistration, error) {
	c := s.crypto()

	clientDataJSON, err := decodeBase64(resp.ClientData)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding client data: %v", ErrClientDataFormat, err)
	}
	if _, err := VerifyClientData(clientDataJSON, RegisterCeremony, started.Challenge, allowedOrigins); err != nil {
		return nil, err
	}

	raw, err := decodeBase64(resp.RegistrationData)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding registration data: %v", ErrResponseFormat, err)
	}
	rr, err := DecodeRegisterResponse(raw)
	if err != nil {
		return nil, err
	}

	cert, err := rr.AttestationCertificate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseFormat, err)
	}
	if s.TrustedRoots != nil {
		if _, err := cert.Verify(x509.VerifyOptions{
			Roots:     s.TrustedRoots,
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAttestationUntrusted, err)
		}
	}
	attPub, err := marshalECPublicKey(cert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation certificate: %v", ErrResponseFormat, err)
	}

	ok, err := c.VerifyECDSAP256(attPub, rr.signedData(c, started.AppID, clientDataJSON), rr.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoProvider, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: attestation signature", ErrSignatureInvalid)
	}

	return &DeviceRegistration{
		PubKey:          rr.PubKey,
		KeyHandle:       rr.KeyHandle,
		AttestationCert: rr.AttestationCert,
		Counter:         0,
	}, nil
}
