// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package u2f implements the server-side half of the [FIDO U2F] protocol:
// challenge issuance, parsing of the raw registration and authentication
// response messages, reconstruction of the exact byte sequences signed by the
// token, ECDSA P-256 signature verification, replay-counter enforcement, and
// the client-data (channel binding) check.
//
// The two ceremonies are driven by [RegisterServer] and [AuthenticateServer].
// Each ceremony is a single challenge/response round: Start draws a fresh
// 32-byte challenge and returns a value the caller persists; Finish consumes
// that value together with the browser's response and either fails with one
// of the package error sentinels or returns the result for the caller to
// persist ([DeviceRegistration] for registration, the new signature counter
// for authentication).
//
// Cryptographic primitives are consumed through the [CryptoProvider]
// capability so verification paths can be tested deterministically. The zero
// value of both servers uses the standard library implementation.
//
// The package holds no state of its own. Persistence is behind the
// [DeviceState] and [ChallengeState] interfaces, which the caller implements
// against its own store. A map-backed implementation is used internally for
// tests, and the optional sqlite sub-module provides a file-backed one,
// including the compare-and-swap counter write that concurrent
// authentications of one device require.
//
// The u2ftest package contains a software token producing wire-exact
// responses, for exercising full ceremonies without hardware.
//
// [FIDO U2F]: https://fidoalliance.org/specs/fido-u2f-v1.2-ps-20170411/fido-u2f-raw-message-formats-v1.2-ps-20170411.html
package u2f
