// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package u2ftest contains test harnesses for the main u2f package, most
// importantly a software token that produces wire-exact registration and
// authentication responses, so full ceremonies can be exercised
// deterministically without hardware.
package u2ftest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	u2f "github.com/fido-tools/go-u2f"
)

// Token simulates a U2F hardware token. It holds a manufacturer attestation
// key with a self-signed certificate and mints a fresh P-256 key pair per
// registration, keyed by a random 32-byte key handle.
//
// The zero value is not usable; construct with [NewToken]. A Token is not
// safe for concurrent use.
type Token struct {
	// AttestationCert is the DER certificate embedded in every
	// registration response this token produces.
	AttestationCert []byte

	// Presence is the user presence byte placed in sign responses.
	// NewToken sets bit 0; tests clear it to provoke presence failures.
	Presence byte

	// Counter is the signature counter. It increments before each sign
	// response; tests may set it back to simulate a cloned token.
	Counter uint32

	attestationKey *ecdsa.PrivateKey
	keys           map[string]*ecdsa.PrivateKey
}

// NewToken generates an attestation key pair and self-signed certificate.
func NewToken() (*Token, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating attestation key: %w", err)
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "u2ftest attestation"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("creating attestation certificate: %w", err)
	}
	return &Token{
		AttestationCert: certDER,
		Presence:        0x01,
		attestationKey:  key,
		keys:            make(map[string]*ecdsa.PrivateKey),
	}, nil
}

// Roots returns a certificate pool containing only this token's attestation
// certificate, for configuring trust-root checks in tests.
func (t *Token) Roots() (*x509.CertPool, error) {
	cert, err := x509.ParseCertificate(t.AttestationCert)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return pool, nil
}

// Register answers a registration request the way a real token would: it
// mints a device key and key handle, assembles the client data for origin,
// and signs the registration signed-data with the attestation key.
func (t *Token) Register(req *u2f.RegisterRequest, origin string) (*u2f.RegisterResponse, error) {
	clientData, err := json.Marshal(u2f.ClientData{
		Type:      u2f.RegisterCeremony,
		Challenge: req.Challenge,
		Origin:    origin,
	})
	if err != nil {
		return nil, err
	}

	deviceKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}
	pubKey := elliptic.Marshal(elliptic.P256(), deviceKey.PublicKey.X, deviceKey.PublicKey.Y)
	keyHandle := make([]byte, 32)
	if _, err := rand.Read(keyHandle); err != nil {
		return nil, err
	}
	t.keys[string(keyHandle)] = deviceKey

	appIDSum := sha256.Sum256([]byte(req.AppID))
	clientDataSum := sha256.Sum256(clientData)
	signed := []byte{0x00}
	signed = append(signed, appIDSum[:]...)
	signed = append(signed, clientDataSum[:]...)
	signed = append(signed, keyHandle...)
	signed = append(signed, pubKey...)

	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, t.attestationKey, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing registration data: %w", err)
	}

	raw := []byte{0x05}
	raw = append(raw, pubKey...)
	raw = append(raw, byte(len(keyHandle)))
	raw = append(raw, keyHandle...)
	raw = append(raw, t.AttestationCert...)
	raw = append(raw, sig...)

	return &u2f.RegisterResponse{
		Version:          u2f.Version,
		RegistrationData: WebsafeEncode(raw),
		ClientData:       WebsafeEncode(clientData),
	}, nil
}

// Sign answers an authentication request with the device key minted for
// keyHandle, incrementing the counter first.
func (t *Token) Sign(req *u2f.WebSignRequest, origin string, keyHandle []byte) (*u2f.SignResponse, error) {
	deviceKey, ok := t.keys[string(keyHandle)]
	if !ok {
		return nil, fmt.Errorf("unknown key handle")
	}

	clientData, err := json.Marshal(u2f.ClientData{
		Type:      u2f.AuthenticateCeremony,
		Challenge: req.Challenge,
		Origin:    origin,
	})
	if err != nil {
		return nil, err
	}

	t.Counter++

	appIDSum := sha256.Sum256([]byte(req.AppID))
	clientDataSum := sha256.Sum256(clientData)
	signed := append([]byte{}, appIDSum[:]...)
	signed = append(signed, t.Presence)
	signed = binary.BigEndian.AppendUint32(signed, t.Counter)
	signed = append(signed, clientDataSum[:]...)

	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, deviceKey, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing authentication data: %w", err)
	}

	raw := []byte{t.Presence}
	raw = binary.BigEndian.AppendUint32(raw, t.Counter)
	raw = append(raw, sig...)

	return &u2f.SignResponse{
		KeyHandle:     WebsafeEncode(keyHandle),
		SignatureData: WebsafeEncode(raw),
		ClientData:    WebsafeEncode(clientData),
	}, nil
}

// WebsafeEncode encodes the padding-stripped websafe base64 used on the
// wire.
func WebsafeEncode(buf []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(buf), "=")
}

// WebsafeDecode is the inverse of [WebsafeEncode], for tests that tamper
// with response payloads.
func WebsafeDecode(s string) ([]byte, error) {
	for i := 0; i < len(s)%4; i++ {
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
