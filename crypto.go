// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// CryptoProvider supplies the cryptographic primitives consumed by the
// ceremony servers: secure randomness for challenges, SHA-256 for signed-data
// reconstruction, and ECDSA P-256 verification of token signatures.
//
// Implementations must be safe for concurrent use. A nil provider on either
// server selects [StdCrypto].
type CryptoProvider interface {
	// RandomBytes returns n cryptographically secure random bytes.
	RandomBytes(n int) ([]byte, error)

	// SHA256 returns the SHA-256 digest of data.
	SHA256(data []byte) []byte

	// VerifyECDSAP256 verifies an ASN.1 DER signature over message using
	// a public key in uncompressed point form (65 bytes, leading 0x04).
	// The message is hashed with SHA-256 before verification. It returns
	// false with a nil error when the signature simply does not verify;
	// a non-nil error means the inputs could not be processed at all.
	VerifyECDSAP256(publicKey, message, signatureDER []byte) (bool, error)
}

// StdCrypto implements CryptoProvider with the Go standard library.
type StdCrypto struct{}

var _ CryptoProvider = StdCrypto{}

// RandomBytes implements CryptoProvider.
func (StdCrypto) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// SHA256 implements CryptoProvider.
func (StdCrypto) SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// VerifyECDSAP256 implements CryptoProvider.
func (StdCrypto) VerifyECDSAP256(publicKey, message, signatureDER []byte) (bool, error) {
	pub, err := parseECPublicKey(publicKey)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(message)
	return ecdsa.VerifyASN1(pub, digest[:], signatureDER), nil
}

// parseECPublicKey parses a 65-byte uncompressed P-256 point.
func parseECPublicKey(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != publicKeyLen || b[0] != uncompressedPointForm {
		return nil, fmt.Errorf("public key must be a %d-byte uncompressed EC point", publicKeyLen)
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), b)
	if x == nil {
		return nil, fmt.Errorf("public key is not a valid P-256 point")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// marshalECPublicKey encodes an ECDSA P-256 public key as a 65-byte
// uncompressed point for use with [CryptoProvider.VerifyECDSAP256].
func marshalECPublicKey(pub any) ([]byte, error) {
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok || ecPub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("public key must be ECDSA P-256 (got %T)", pub)
	}
	return elliptic.Marshal(ecPub.Curve, ecPub.X, ecPub.Y), nil
}
