/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"github.com/hyperledger/aries-payload/pkg/doc/payload"
)

// SendRequest model
//
// Keys are unpadded base64url public keys.
type SendRequest struct {
	// Plain text to encrypt, unpadded base64url encoded.
	Payload string `json:"payload"`

	// Optional sender key. When set it must be the node key.
	From string `json:"from,omitempty"`

	// Recipient public keys.
	To []string `json:"to"`
}

// KeyResponse model
//
// Returned by operations storing a payload.
type KeyResponse struct {
	// Digest of the stored payload, used as its key.
	Key string `json:"key"`
}

// ReceiveRequest model.
type ReceiveRequest struct {
	// Key of the stored payload.
	Key string `json:"key"`

	// Optional recipient key. When set it must be the node key.
	To string `json:"to,omitempty"`
}

// ReceiveResponse model.
type ReceiveResponse struct {
	// Decrypted plain text, unpadded base64url encoded.
	Payload string `json:"payload"`
}

// PushRequest model
//
// Carries a payload pushed by another node.
type PushRequest struct {
	Payload *payload.EncryptedPayload `json:"payload"`
}

// GetRequest model.
type GetRequest struct {
	// Key of the stored payload.
	Key string `json:"key"`

	// Optional format name ("json" or "cbor"). When set the response also carries the payload encoded in that
	// format.
	Format string `json:"format,omitempty"`
}

// GetResponse model.
type GetResponse struct {
	Payload *payload.EncryptedPayload `json:"payload"`

	// Payload encoded in the requested format, unpadded base64url encoded.
	Encoded string `json:"encoded,omitempty"`
}

// SlotForRequest model.
type SlotForRequest struct {
	// Key of the stored payload.
	Key string `json:"key"`

	// Recipient public key.
	Recipient string `json:"recipient"`
}

// SlotForResponse model.
type SlotForResponse struct {
	Slot  int  `json:"slot"`
	Found bool `json:"found"`
}

// DeleteRequest model.
type DeleteRequest struct {
	// Key of the stored payload.
	Key string `json:"key"`
}

// ListResponse model.
type ListResponse struct {
	// Keys of the stored payloads.
	Keys []string `json:"keys"`
}
