// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f_test

import (
	"errors"
	"fmt"
	"testing"

	u2f "github.com/fido-tools/go-u2f"
	"github.com/fido-tools/go-u2f/u2ftest"
)

// registerDevice runs a full registration ceremony and returns the token and
// the resulting device entity.
func registerDevice(t *testing.T) (*u2ftest.Token, *u2f.DeviceRegistration) {
	t.Helper()
	server, token, started, req := startRegistration(t)
	resp, err := token.Register(req, testOrigin)
	if err != nil {
		t.Fatal(err)
	}
	device, err := server.FinishRegistration(started, *resp, []string{testOrigin})
	if err != nil {
		t.Fatalf("registering device: %v", err)
	}
	return token, device
}

func startAuthentication(t *testing.T, device *u2f.DeviceRegistration) (*u2f.AuthenticateServer, *u2f.StartedAuthentication, *u2f.WebSignRequest) {
	t.Helper()
	server := &u2f.AuthenticateServer{}
	started, err := server.StartAuthentication(testAppID, device)
	if err != nil {
		t.Fatalf("starting authentication: %v", err)
	}
	return server, started, u2f.NewWebSignRequest(started, []*u2f.DeviceRegistration{device})
}

func TestAuthenticationCeremony(t *testing.T) {
	token, device := registerDevice(t)
	server, started, req := startAuthentication(t, device)

	resp, err := token.Sign(req, testOrigin, device.KeyHandle)
	if err != nil {
		t.Fatal(err)
	}
	newCounter, err := server.FinishAuthentication(started, *resp, device, []string{testOrigin})
	if err != nil {
		t.Fatalf("finishing authentication: %v", err)
	}
	if newCounter != device.Counter+1 {
		t.Errorf("new counter %d, want %d", newCounter, device.Counter+1)
	}
	if device.Counter != 0 {
		t.Errorf("finish mutated the device entity (counter %d)", device.Counter)
	}

	// The caller writes the counter back; subsequent ceremonies keep
	// increasing it.
	device.Counter = newCounter
	server, started, req = startAuthentication(t, device)
	resp, err = token.Sign(req, testOrigin, device.KeyHandle)
	if err != nil {
		t.Fatal(err)
	}
	newCounter, err = server.FinishAuthentication(started, *resp, device, nil)
	if err != nil {
		t.Fatal(err)
	}
	if newCounter != 2 {
		t.Errorf("new counter %d, want 2", newCounter)
	}
}

func TestFinishAuthenticationRejects(t *testing.T) {
	t.Run("counter replay with a valid signature", func(t *testing.T) {
		token, device := registerDevice(t)
		device.Counter = 10
		token.Counter = 9 // token signs with counter 10 == stored

		server, started, req := startAuthentication(t, device)
		resp, err := token.Sign(req, testOrigin, device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := server.FinishAuthentication(started, *resp, device, nil); !errors.Is(err, u2f.ErrCounterReplay) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrCounterReplay)
		}
		if device.Counter != 10 {
			t.Errorf("stored counter changed to %d on replay", device.Counter)
		}
	})

	t.Run("counter far behind", func(t *testing.T) {
		token, device := registerDevice(t)
		device.Counter = 1000

		server, started, req := startAuthentication(t, device)
		resp, err := token.Sign(req, testOrigin, device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := server.FinishAuthentication(started, *resp, device, nil); !errors.Is(err, u2f.ErrCounterReplay) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrCounterReplay)
		}
	})

	t.Run("user presence not asserted", func(t *testing.T) {
		token, device := registerDevice(t)
		token.Presence = 0x00

		server, started, req := startAuthentication(t, device)
		resp, err := token.Sign(req, testOrigin, device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := server.FinishAuthentication(started, *resp, device, nil); !errors.Is(err, u2f.ErrUserPresenceRequired) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrUserPresenceRequired)
		}
	})

	t.Run("response signed over a different app id", func(t *testing.T) {
		token, device := registerDevice(t)
		server, started, req := startAuthentication(t, device)
		req.AppID = "https://other.example"
		resp, err := token.Sign(req, testOrigin, device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := server.FinishAuthentication(started, *resp, device, nil); !errors.Is(err, u2f.ErrSignatureInvalid) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrSignatureInvalid)
		}
	})

	t.Run("tampered counter invalidates signature", func(t *testing.T) {
		token, device := registerDevice(t)
		server, started, req := startAuthentication(t, device)
		resp, err := token.Sign(req, testOrigin, device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		raw, err := u2ftest.WebsafeDecode(resp.SignatureData)
		if err != nil {
			t.Fatal(err)
		}
		raw[4] ^= 0x40 // low counter byte, still > stored
		resp.SignatureData = u2ftest.WebsafeEncode(raw)
		if _, err := server.FinishAuthentication(started, *resp, device, nil); !errors.Is(err, u2f.ErrSignatureInvalid) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrSignatureInvalid)
		}
	})

	t.Run("signature from a different device key", func(t *testing.T) {
		token, device := registerDevice(t)
		_, otherDevice := registerDevice(t)
		otherDevice.KeyHandle = device.KeyHandle

		server, started, req := startAuthentication(t, otherDevice)
		resp, err := token.Sign(req, testOrigin, device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := server.FinishAuthentication(started, *resp, otherDevice, nil); !errors.Is(err, u2f.ErrSignatureInvalid) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrSignatureInvalid)
		}
	})

	t.Run("untrusted origin", func(t *testing.T) {
		token, device := registerDevice(t)
		server, started, req := startAuthentication(t, device)
		resp, err := token.Sign(req, "https://evil.example", device.KeyHandle)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := server.FinishAuthentication(started, *resp, device, []string{testOrigin}); !errors.Is(err, u2f.ErrUntrustedOrigin) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrUntrustedOrigin)
		}
	})
}

type failingCrypto struct {
	u2f.StdCrypto
	err error
}

func (f failingCrypto) VerifyECDSAP256(publicKey, message, signatureDER []byte) (bool, error) {
	return false, f.err
}

func TestCryptoProviderFailureIsDistinct(t *testing.T) {
	token, device := registerDevice(t)
	server, started, req := startAuthentication(t, device)
	server.Crypto = failingCrypto{err: fmt.Errorf("hsm unreachable")}

	resp, err := token.Sign(req, testOrigin, device.KeyHandle)
	if err != nil {
		t.Fatal(err)
	}
	_, err = server.FinishAuthentication(started, *resp, device, nil)
	if !errors.Is(err, u2f.ErrCryptoProvider) {
		t.Fatalf("got error %v, want %v", err, u2f.ErrCryptoProvider)
	}
	if errors.Is(err, u2f.ErrSignatureInvalid) {
		t.Error("provider failure must not classify as signature rejection")
	}
}
