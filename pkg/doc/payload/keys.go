/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"encoding/base64"
	"fmt"
)

// Role markers. They are never instantiated, they only make each Bytes instantiation a distinct type.
type (
	senderKeyRole        struct{}
	recipientKeyRole     struct{}
	nonceRole            struct{}
	combinedKeyNonceRole struct{}
	combinedKeyRole      struct{}
	cipherTextRole       struct{}
)

type role interface {
	senderKeyRole | recipientKeyRole | nonceRole | combinedKeyNonceRole | combinedKeyRole | cipherTextRole
}

// Bytes is an immutable byte sequence tagged with the role it plays in an encrypted payload.
// Two values are equal iff they have the same role and the same content; values are comparable and can be
// used as map keys.
type Bytes[R role] struct {
	raw string
}

type (
	// SenderKey is the public key of the party that encrypted a payload.
	SenderKey = Bytes[senderKeyRole]
	// RecipientKey is the public key of an intended recipient of a payload.
	RecipientKey = Bytes[recipientKeyRole]
	// Nonce is the nonce used to encrypt the payload cipher text.
	Nonce = Bytes[nonceRole]
	// CombinedKeyNonce is the nonce used to seal the shared key for every recipient.
	CombinedKeyNonce = Bytes[combinedKeyNonceRole]
	// CombinedKey is one recipient's sealed copy of the shared data encryption key.
	CombinedKey = Bytes[combinedKeyRole]
	// CipherText is the payload encrypted once with the shared data encryption key.
	CipherText = Bytes[cipherTextRole]
)

// NewSenderKey returns a SenderKey holding a copy of b.
func NewSenderKey(b []byte) SenderKey { return newBytes[senderKeyRole](b) }

// NewRecipientKey returns a RecipientKey holding a copy of b.
func NewRecipientKey(b []byte) RecipientKey { return newBytes[recipientKeyRole](b) }

// NewNonce returns a Nonce holding a copy of b.
func NewNonce(b []byte) Nonce { return newBytes[nonceRole](b) }

// NewCombinedKeyNonce returns a CombinedKeyNonce holding a copy of b.
func NewCombinedKeyNonce(b []byte) CombinedKeyNonce { return newBytes[combinedKeyNonceRole](b) }

// NewCombinedKey returns a CombinedKey holding a copy of b.
func NewCombinedKey(b []byte) CombinedKey { return newBytes[combinedKeyRole](b) }

// NewCipherText returns a CipherText holding a copy of b.
func NewCipherText(b []byte) CipherText { return newBytes[cipherTextRole](b) }

// ParseSenderKey decodes the text form (unpadded base64url) of a sender key.
func ParseSenderKey(s string) (SenderKey, error) { return parseBytes[senderKeyRole](s) }

// ParseRecipientKey decodes the text form (unpadded base64url) of a recipient key.
func ParseRecipientKey(s string) (RecipientKey, error) { return parseBytes[recipientKeyRole](s) }

func newBytes[R role](b []byte) Bytes[R] {
	return Bytes[R]{raw: string(b)}
}

func parseBytes[R role](s string) (Bytes[R], error) {
	b, err := decodeText(s)
	if err != nil {
		return Bytes[R]{}, &Error{Kind: FormatMismatch, Err: err}
	}

	return newBytes[R](b), nil
}

// Bytes returns a copy of the underlying byte sequence.
func (b Bytes[R]) Bytes() []byte {
	return []byte(b.raw)
}

// Len returns the number of bytes.
func (b Bytes[R]) Len() int {
	return len(b.raw)
}

// Equal reports whether b and o hold the same bytes.
func (b Bytes[R]) Equal(o Bytes[R]) bool {
	return b.raw == o.raw
}

// String returns the text form of b: unpadded base64url, the encoding used by the JSON format.
func (b Bytes[R]) String() string {
	return encodeText([]byte(b.raw))
}

// text encoding shared by every byte field of the JSON format.
var textEncoding = base64.RawURLEncoding.Strict()

func encodeText(b []byte) string {
	return textEncoding.EncodeToString(b)
}

func decodeText(s string) ([]byte, error) {
	b, err := textEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64url value: %w", err)
	}

	return b, nil
}
