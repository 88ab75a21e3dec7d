// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// challengeSize is the number of random bytes in a challenge.
const challengeSize = 32

// Challenge is a single-use random nonce bound into the signed client data of
// one ceremony. It is immutable once created and transported to the client as
// a websafe-base64 string.
//
// Challenges ensure that token signatures are created on demand and not
// replayed: the server only accepts a response whose signed client data
// carries the exact challenge it issued at ceremony start. The package does
// not expire challenges; callers wanting a validity window track issuance
// time (see [StartedRegistration.IssuedAt]) and reject stale ceremonies
// before calling finish.
type Challenge []byte

func newChallenge(c CryptoProvider) (Challenge, error) {
	b, err := c.RandomBytes(challengeSize)
	if err != nil {
		return nil, fmt.Errorf("%w: generating challenge: %v", ErrCryptoProvider, err)
	}
	if len(b) != challengeSize {
		return nil, fmt.Errorf("%w: short random read (%d bytes)", ErrCryptoProvider, len(b))
	}
	return Challenge(b), nil
}

// String returns the websafe-base64 transport encoding of the challenge.
func (c Challenge) String() string { return encodeBase64(c) }

// encodeBase64 encodes to the websafe-base64 alphabet without padding, as
// used by the U2F javascript API.
func encodeBase64(buf []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(buf), "=")
}

// decodeBase64 decodes websafe-base64, tolerating missing padding.
func decodeBase64(s string) ([]byte, error) {
	for i := 0; i < len(s)%4; i++ {
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
