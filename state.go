// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"context"
	"errors"
)

/*
	The ceremony servers never open a connection or store anything: they
	accept and return plain entities and the caller persists them. The
	interfaces in this file name the contract a backing store must meet.
	They may be implemented by the same logical backend or split, e.g.
	pending ceremonies in a session store and device registrations in a
	SQL database. The sqlite sub-module implements both.

	Stores index devices by (appID, keyHandle); how users map onto
	applications and key handles is the caller's key design.
*/

// ErrNotFound is used when the requested device or pending ceremony does not
// exist in the store.
var ErrNotFound = errors.New("not found")

// DeviceState stores device registrations.
type DeviceState interface {
	// SaveDevice persists a new registration for an application. It
	// fails if a device with the same key handle already exists.
	SaveDevice(ctx context.Context, appID string, device *DeviceRegistration) error

	// Device retrieves one registration by key handle.
	Device(ctx context.Context, appID string, keyHandle []byte) (*DeviceRegistration, error)

	// Devices lists all registrations for an application.
	Devices(ctx context.Context, appID string) ([]*DeviceRegistration, error)

	// UpdateCounter writes the counter returned by a successful
	// authentication. The write must be atomic and conditional: it only
	// applies while newCounter is still strictly greater than the stored
	// counter, so two concurrent authentications cannot silently undo
	// clone detection. A lost race fails with ErrCounterReplay.
	UpdateCounter(ctx context.Context, appID string, keyHandle []byte, newCounter uint32) error
}

// ChallengeState stores pending ceremonies between start and finish.
//
// Pending ceremonies are single-use: the getters remove what they return, so
// a second finish attempt finds nothing regardless of how the first attempt
// ended. Challenge expiry is also the store's (or its caller's) policy, using
// the IssuedAt field of the pending value; the ceremony servers enforce none.
type ChallengeState interface {
	// SetPendingRegistration saves the pending registration ceremony for
	// an application, replacing any previous one.
	SetPendingRegistration(ctx context.Context, appID string, started *StartedRegistration) error

	// PendingRegistration returns and removes the pending registration
	// ceremony.
	PendingRegistration(ctx context.Context, appID string) (*StartedRegistration, error)

	// SetPendingAuthentication saves the pending authentication ceremony
	// for a device, replacing any previous one.
	SetPendingAuthentication(ctx context.Context, appID string, started *StartedAuthentication) error

	// PendingAuthentication returns and removes the pending
	// authentication ceremony for a device.
	PendingAuthentication(ctx context.Context, appID string, keyHandle []byte) (*StartedAuthentication, error)
}
