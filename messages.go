// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package u2f

// Version is the U2F protocol version implemented by this package.
const Version = "U2F_V2"

// RegisterRequest is one registration request entry sent to the browser's
// u2f.register call.
type RegisterRequest struct {
	Version   string `json:"version"`
	Challenge string `json:"challenge"`
	AppID     string `json:"appId"`
}

// RegisteredKey describes an already-registered token, sent to the browser so
// the client can skip tokens the user already enrolled (during registration)
// or select a token to sign with (during authentication).
type RegisteredKey struct {
	Version   string `json:"version"`
	KeyHandle string `json:"keyHandle"`
	AppID     string `json:"appId"`
}

// WebRegisterRequest is the top-level object passed to u2f.register.
type WebRegisterRequest struct {
	AppID            string            `json:"appId"`
	RegisterRequests []RegisterRequest `json:"registerRequests"`
	RegisteredKeys   []RegisteredKey   `json:"registeredKeys"`
}

// NewWebRegisterRequest builds the browser registration request for a started
// ceremony, listing the user's registered devices so the client refuses to
// enroll the same token twice.
func NewWebRegisterRequest(started *StartedRegistration, registered []*DeviceRegistration) *WebRegisterRequest {
	req := &WebRegisterRequest{
		AppID: started.AppID,
		RegisterRequests: []RegisterRequest{{
			Version:   Version,
			Challenge: started.Challenge.String(),
			AppID:     started.AppID,
		}},
		RegisteredKeys: []RegisteredKey{},
	}
	for _, device := range registered {
		req.RegisteredKeys = append(req.RegisteredKeys, RegisteredKey{
			Version:   Version,
			KeyHandle: encodeBase64(device.KeyHandle),
			AppID:     started.AppID,
		})
	}
	return req
}

// RegisterResponse is the browser's response to u2f.register. Both payload
// fields are websafe-base64: RegistrationData carries the raw registration
// response message and ClientData the channel-binding JSON.
type RegisterResponse struct {
	Version          string `json:"version"`
	RegistrationData string `json:"registrationData"`
	ClientData       string `json:"clientData"`
}

// WebSignRequest is the top-level object passed to u2f.sign.
type WebSignRequest struct {
	AppID          string          `json:"appId"`
	Challenge      string          `json:"challenge"`
	RegisteredKeys []RegisteredKey `json:"registeredKeys"`
}

// NewWebSignRequest builds the browser authentication request for a started
// ceremony, listing the key handles the client may sign with.
func NewWebSignRequest(started *StartedAuthentication, registered []*DeviceRegistration) *WebSignRequest {
	req := &WebSignRequest{
		AppID:          started.AppID,
		Challenge:      started.Challenge.String(),
		RegisteredKeys: []RegisteredKey{},
	}
	for _, device := range registered {
		req.RegisteredKeys = append(req.RegisteredKeys, RegisteredKey{
			Version:   Version,
			KeyHandle: encodeBase64(device.KeyHandle),
			AppID:     started.AppID,
		})
	}
	return req
}

// SignResponse is the browser's response to u2f.sign. SignatureData carries
// the websafe-base64 raw authentication response message; KeyHandle
// identifies which registered device produced it, and is how the caller looks
// up the [DeviceRegistration] to finish with.
type SignResponse struct {
	KeyHandle     string `json:"keyHandle"`
	SignatureData string `json:"signatureData"`
	ClientData    string `json:"clientData"`
}
