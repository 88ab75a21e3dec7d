// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sqlite_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	u2f "github.com/fido-tools/go-u2f"
	"github.com/fido-tools/go-u2f/sqlite"
)

const appID = "https://example.com"

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "u2f.db"), "")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testDevice(t *testing.T, keyHandle string) *u2f.DeviceRegistration {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test attestation"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	cert, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		t.Fatal(err)
	}
	return &u2f.DeviceRegistration{
		PubKey:          elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y),
		KeyHandle:       []byte(keyHandle),
		AttestationCert: cert,
		Counter:         0,
	}
}

func TestDeviceState(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	if _, err := db.Device(ctx, appID, []byte("kh1")); !errors.Is(err, u2f.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, u2f.ErrNotFound)
	}

	device := testDevice(t, "kh1")
	if err := db.SaveDevice(ctx, appID, device); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveDevice(ctx, appID, device); err == nil {
		t.Fatal("duplicate key handle accepted")
	}
	if err := db.SaveDevice(ctx, appID, testDevice(t, "kh2")); err != nil {
		t.Fatal(err)
	}

	stored, err := db.Device(ctx, appID, []byte("kh1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(stored.KeyHandle) != "kh1" {
		t.Errorf("key handle %q, want %q", stored.KeyHandle, "kh1")
	}
	if len(stored.PubKey) != 65 {
		t.Errorf("public key is %d bytes, want 65", len(stored.PubKey))
	}

	devices, err := db.Devices(ctx, appID)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("listed %d devices, want 2", len(devices))
	}

	t.Run("counter updates conditionally", func(t *testing.T) {
		if err := db.UpdateCounter(ctx, appID, []byte("kh1"), 7); err != nil {
			t.Fatal(err)
		}
		stored, err := db.Device(ctx, appID, []byte("kh1"))
		if err != nil {
			t.Fatal(err)
		}
		if stored.Counter != 7 {
			t.Fatalf("counter %d, want 7", stored.Counter)
		}

		if err := db.UpdateCounter(ctx, appID, []byte("kh1"), 7); !errors.Is(err, u2f.ErrCounterReplay) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrCounterReplay)
		}
		if err := db.UpdateCounter(ctx, appID, []byte("kh1"), 3); !errors.Is(err, u2f.ErrCounterReplay) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrCounterReplay)
		}
		if err := db.UpdateCounter(ctx, appID, []byte("missing"), 1); !errors.Is(err, u2f.ErrNotFound) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrNotFound)
		}
	})
}

func TestChallengeState(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	challenge := u2f.Challenge(make([]byte, 32))
	for i := range challenge {
		challenge[i] = byte(i)
	}
	issued := time.Now().Truncate(time.Second)

	t.Run("pending registration", func(t *testing.T) {
		started := &u2f.StartedRegistration{Challenge: challenge, AppID: appID, IssuedAt: issued}
		if err := db.SetPendingRegistration(ctx, appID, started); err != nil {
			t.Fatal(err)
		}
		// Replaces the previous pending ceremony.
		if err := db.SetPendingRegistration(ctx, appID, started); err != nil {
			t.Fatal(err)
		}

		got, err := db.PendingRegistration(ctx, appID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Challenge.String() != challenge.String() {
			t.Errorf("challenge %q, want %q", got.Challenge, challenge)
		}
		if !got.IssuedAt.Equal(issued) {
			t.Errorf("issued at %v, want %v", got.IssuedAt, issued)
		}
		if _, err := db.PendingRegistration(ctx, appID); !errors.Is(err, u2f.ErrNotFound) {
			t.Fatalf("pending registration served twice (err %v)", err)
		}
	})

	t.Run("pending authentication", func(t *testing.T) {
		started := &u2f.StartedAuthentication{
			Challenge: challenge,
			AppID:     appID,
			KeyHandle: []byte("kh1"),
			IssuedAt:  issued,
		}
		if err := db.SetPendingAuthentication(ctx, appID, started); err != nil {
			t.Fatal(err)
		}
		if _, err := db.PendingAuthentication(ctx, appID, []byte("other")); !errors.Is(err, u2f.ErrNotFound) {
			t.Fatalf("got error %v, want %v", err, u2f.ErrNotFound)
		}
		got, err := db.PendingAuthentication(ctx, appID, []byte("kh1"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got.KeyHandle) != "kh1" {
			t.Errorf("key handle %q, want %q", got.KeyHandle, "kh1")
		}
		if _, err := db.PendingAuthentication(ctx, appID, []byte("kh1")); !errors.Is(err, u2f.ErrNotFound) {
			t.Fatalf("pending authentication served twice (err %v)", err)
		}
	})
}
