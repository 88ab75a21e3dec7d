// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
)

// Ceremony type values carried in the "typ" field of the signed client data.
// Each finish operation accepts only its own type, so a response signed for
// one ceremony cannot be presented to the other.
const (
	RegisterCeremony     = "RegisterCeremony"
	AuthenticateCeremony = "AuthenticateCeremony"
)

// ClientData is the channel-binding record assembled by the browser and
// covered by the token signature through its hash. It exists only for the
// duration of one verification call.
//
//	{
//	    "typ": "RegisterCeremony",
//	    "challenge": websafe-base64,
//	    "origin": facet origin,
//	    "cid_pubkey": optional channel id public key
//	}
type ClientData struct {
	Type      string          `json:"typ"`
	Challenge string          `json:"challenge"`
	Origin    string          `json:"origin"`
	CIDPubKey json.RawMessage `json:"cid_pubkey,omitempty"`
}

// VerifyClientData parses clientDataJSON and validates it against the
// ceremony type and the challenge issued at ceremony start. If
// allowedOrigins is non-empty, the asserted origin must be a member;
// otherwise any origin is accepted and callers wanting origin protection
// must supply the set explicitly.
//
// It is a pure check with no side effects. Failures wrap
// [ErrClientDataFormat], [ErrCeremonyType], [ErrChallengeMismatch], or
// [ErrUntrustedOrigin].
func VerifyClientData(clientDataJSON []byte, ceremonyType string, challenge Challenge, allowedOrigins []string) (*ClientData, error) {
	var cd ClientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientDataFormat, err)
	}
	switch {
	case cd.Type == "":
		return nil, fmt.Errorf("%w: missing typ", ErrClientDataFormat)
	case cd.Challenge == "":
		return nil, fmt.Errorf("%w: missing challenge", ErrClientDataFormat)
	case cd.Origin == "":
		return nil, fmt.Errorf("%w: missing origin", ErrClientDataFormat)
	}

	if cd.Type != ceremonyType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrCeremonyType, cd.Type, ceremonyType)
	}

	want := encodeBase64(challenge)
	if len(want) != len(cd.Challenge) ||
		subtle.ConstantTimeCompare([]byte(want), []byte(cd.Challenge)) != 1 {
		return nil, ErrChallengeMismatch
	}

	if len(allowedOrigins) > 0 {
		trusted := false
		for _, origin := range allowedOrigins {
			if origin == cd.Origin {
				trusted = true
				break
			}
		}
		if !trusted {
			return nil, fmt.Errorf("%w: %q", ErrUntrustedOrigin, cd.Origin)
		}
	}

	return &cd, nil
}
