// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package memory implements device and pending-ceremony state in
// non-persistent memory, for tests and single-process servers.
package memory

import (
	"context"
	"fmt"
	"sync"

	u2f "github.com/fido-tools/go-u2f"
)

type deviceKey struct {
	appID     string
	keyHandle string
}

// State implements [u2f.DeviceState] and [u2f.ChallengeState] with mutex-
// guarded maps. The counter update takes the same lock as reads, giving it
// the compare-and-swap semantics the interface requires.
type State struct {
	mu          sync.Mutex
	devices     map[deviceKey]*u2f.DeviceRegistration
	pendingReg  map[string]*u2f.StartedRegistration
	pendingAuth map[deviceKey]*u2f.StartedAuthentication
}

var (
	_ u2f.DeviceState    = (*State)(nil)
	_ u2f.ChallengeState = (*State)(nil)
)

// NewState initializes the in-memory state.
func NewState() *State {
	return &State{
		devices:     make(map[deviceKey]*u2f.DeviceRegistration),
		pendingReg:  make(map[string]*u2f.StartedRegistration),
		pendingAuth: make(map[deviceKey]*u2f.StartedAuthentication),
	}
}

// SaveDevice stores a new device registration.
func (s *State) SaveDevice(_ context.Context, appID string, device *u2f.DeviceRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceKey{appID, string(device.KeyHandle)}
	if _, ok := s.devices[key]; ok {
		return fmt.Errorf("device already registered")
	}
	s.devices[key] = cloneDevice(device)
	return nil
}

// Device retrieves a device registration by key handle.
func (s *State) Device(_ context.Context, appID string, keyHandle []byte) (*u2f.DeviceRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceKey{appID, string(keyHandle)}]
	if !ok {
		return nil, u2f.ErrNotFound
	}
	return cloneDevice(device), nil
}

// Devices lists all registrations for an application.
func (s *State) Devices(_ context.Context, appID string) ([]*u2f.DeviceRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []*u2f.DeviceRegistration
	for key, device := range s.devices {
		if key.appID == appID {
			devices = append(devices, cloneDevice(device))
		}
	}
	return devices, nil
}

// cloneDevice copies the registration including its byte slices, so neither
// side of the store boundary can mutate the other's view.
func cloneDevice(device *u2f.DeviceRegistration) *u2f.DeviceRegistration {
	return &u2f.DeviceRegistration{
		PubKey:          append([]byte(nil), device.PubKey...),
		KeyHandle:       append([]byte(nil), device.KeyHandle...),
		AttestationCert: append([]byte(nil), device.AttestationCert...),
		Counter:         device.Counter,
	}
}

// UpdateCounter applies a counter update while it still increases the stored
// value.
func (s *State) UpdateCounter(_ context.Context, appID string, keyHandle []byte, newCounter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceKey{appID, string(keyHandle)}]
	if !ok {
		return u2f.ErrNotFound
	}
	if newCounter <= device.Counter {
		return fmt.Errorf("%w: got %d, stored %d", u2f.ErrCounterReplay, newCounter, device.Counter)
	}
	device.Counter = newCounter
	return nil
}

// SetPendingRegistration saves the pending registration ceremony for an
// application.
func (s *State) SetPendingRegistration(_ context.Context, appID string, started *u2f.StartedRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReg[appID] = started
	return nil
}

// PendingRegistration returns and removes the pending registration ceremony.
func (s *State) PendingRegistration(_ context.Context, appID string) (*u2f.StartedRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started, ok := s.pendingReg[appID]
	if !ok {
		return nil, u2f.ErrNotFound
	}
	delete(s.pendingReg, appID)
	return started, nil
}

// SetPendingAuthentication saves the pending authentication ceremony for a
// device.
func (s *State) SetPendingAuthentication(_ context.Context, appID string, started *u2f.StartedAuthentication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAuth[deviceKey{appID, string(started.KeyHandle)}] = started
	return nil
}

// PendingAuthentication returns and removes the pending authentication
// ceremony for a device.
func (s *State) PendingAuthentication(_ context.Context, appID string, keyHandle []byte) (*u2f.StartedAuthentication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceKey{appID, string(keyHandle)}
	started, ok := s.pendingAuth[key]
	if !ok {
		return nil, u2f.ErrNotFound
	}
	delete(s.pendingAuth, key)
	return started, nil
}
