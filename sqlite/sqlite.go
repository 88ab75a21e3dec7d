// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package sqlite implements device and pending-ceremony persistence with a
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	u2f "github.com/fido-tools/go-u2f"
)

// DB implements [u2f.DeviceState] and [u2f.ChallengeState].
type DB struct {
	db *sql.DB
}

var (
	_ u2f.DeviceState    = (*DB)(nil)
	_ u2f.ChallengeState = (*DB)(nil)
)

// New creates a DB. The expected tables must already exist; in most cases use
// [Open], which calls [Init] implicitly. New is useful for alternative SQLite
// connections that do not use a local file.
func New(db *sql.DB) *DB { return &DB{db: db} }

// Init ensures all tables are created. It does not recognize if tables have
// been created with invalid schemas.
func Init(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices
			( app_id TEXT NOT NULL
			, key_handle BLOB NOT NULL
			, registration BLOB NOT NULL
			, counter INTEGER NOT NULL DEFAULT 0
			, PRIMARY KEY(app_id, key_handle)
			)`,
		`CREATE TABLE IF NOT EXISTS pending_registrations
			( app_id TEXT PRIMARY KEY
			, challenge BLOB NOT NULL
			, issued_at INTEGER NOT NULL
			)`,
		`CREATE TABLE IF NOT EXISTS pending_authentications
			( app_id TEXT NOT NULL
			, key_handle BLOB NOT NULL
			, challenge BLOB NOT NULL
			, issued_at INTEGER NOT NULL
			, PRIMARY KEY(app_id, key_handle)
			)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			if strings.Contains(err.Error(), "file is not a database") {
				return fmt.Errorf("file is not a database: likely due to incorrect or missing database password")
			}
			return fmt.Errorf("error creating tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.db.Close() }

// DB returns the underlying database/sql connection.
func (db *DB) DB() *sql.DB { return db.db }

// SaveDevice persists a new device registration.
func (db *DB) SaveDevice(ctx context.Context, appID string, device *u2f.DeviceRegistration) error {
	blob, err := device.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding device registration: %w", err)
	}
	_, err = db.db.ExecContext(ctx,
		`INSERT INTO devices (app_id, key_handle, registration, counter) VALUES (?, ?, ?, ?)`,
		appID, device.KeyHandle, blob, int64(device.Counter),
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Device retrieves one device registration by key handle.
func (db *DB) Device(ctx context.Context, appID string, keyHandle []byte) (*u2f.DeviceRegistration, error) {
	row := db.db.QueryRowContext(ctx,
		`SELECT registration, counter FROM devices WHERE app_id = ? AND key_handle = ?`,
		appID, keyHandle,
	)
	return scanDevice(row)
}

// Devices lists all registrations for an application.
func (db *DB) Devices(ctx context.Context, appID string) ([]*u2f.DeviceRegistration, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT registration, counter FROM devices WHERE app_id = ?`, appID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []*u2f.DeviceRegistration
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanDevice(row scanner) (*u2f.DeviceRegistration, error) {
	var blob []byte
	var counter int64
	if err := row.Scan(&blob, &counter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, u2f.ErrNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	var device u2f.DeviceRegistration
	if err := device.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("decoding device registration: %w", err)
	}
	// The live counter is the column, not the value frozen into the blob
	// at registration time.
	device.Counter = uint32(counter)
	return &device, nil
}

// UpdateCounter applies a counter update while it still increases the stored
// value. The condition is part of the UPDATE statement, so the re-validation
// happens atomically at write time even under concurrent authentications.
func (db *DB) UpdateCounter(ctx context.Context, appID string, keyHandle []byte, newCounter uint32) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE devices SET counter = ? WHERE app_id = ? AND key_handle = ? AND counter < ?`,
		int64(newCounter), appID, keyHandle, int64(newCounter),
	)
	if err != nil {
		return fmt.Errorf("updating counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating counter: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the device is gone or the counter already
	// advanced past newCounter.
	var stored int64
	err = db.db.QueryRowContext(ctx,
		`SELECT counter FROM devices WHERE app_id = ? AND key_handle = ?`,
		appID, keyHandle,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return u2f.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying counter: %w", err)
	}
	return fmt.Errorf("%w: got %d, stored %d", u2f.ErrCounterReplay, newCounter, stored)
}

// SetPendingRegistration saves the pending registration ceremony for an
// application, replacing any previous one.
func (db *DB) SetPendingRegistration(ctx context.Context, appID string, started *u2f.StartedRegistration) error {
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO pending_registrations (app_id, challenge, issued_at) VALUES (?, ?, ?)
			ON CONFLICT(app_id) DO UPDATE SET challenge = excluded.challenge, issued_at = excluded.issued_at`,
		appID, []byte(started.Challenge), started.IssuedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting pending registration: %w", err)
	}
	return nil
}

// PendingRegistration returns and removes the pending registration ceremony.
func (db *DB) PendingRegistration(ctx context.Context, appID string) (*u2f.StartedRegistration, error) {
	started := u2f.StartedRegistration{AppID: appID}
	var challenge []byte
	var issuedAt int64
	err := db.db.QueryRowContext(ctx,
		`DELETE FROM pending_registrations WHERE app_id = ? RETURNING challenge, issued_at`,
		appID,
	).Scan(&challenge, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, u2f.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming pending registration: %w", err)
	}
	started.Challenge = u2f.Challenge(challenge)
	started.IssuedAt = time.Unix(issuedAt, 0)
	return &started, nil
}

// SetPendingAuthentication saves the pending authentication ceremony for a
// device, replacing any previous one.
func (db *DB) SetPendingAuthentication(ctx context.Context, appID string, started *u2f.StartedAuthentication) error {
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO pending_authentications (app_id, key_handle, challenge, issued_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(app_id, key_handle) DO UPDATE SET challenge = excluded.challenge, issued_at = excluded.issued_at`,
		appID, started.KeyHandle, []byte(started.Challenge), started.IssuedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting pending authentication: %w", err)
	}
	return nil
}

// PendingAuthentication returns and removes the pending authentication
// ceremony for a device.
func (db *DB) PendingAuthentication(ctx context.Context, appID string, keyHandle []byte) (*u2f.StartedAuthentication, error) {
	started := u2f.StartedAuthentication{AppID: appID, KeyHandle: keyHandle}
	var challenge []byte
	var issuedAt int64
	err := db.db.QueryRowContext(ctx,
		`DELETE FROM pending_authentications WHERE app_id = ? AND key_handle = ? RETURNING challenge, issued_at`,
		appID, keyHandle,
	).Scan(&challenge, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, u2f.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming pending authentication: %w", err)
	}
	started.Challenge = u2f.Challenge(challenge)
	started.IssuedAt = time.Unix(issuedAt, 0)
	return &started, nil
}
