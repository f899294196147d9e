/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package payload implements the multi-recipient encrypted payload: a cipher text produced once with a shared data
// key, one sealed copy of that key per recipient (the combined keys) and an optional, local-only recipient index
// mapping recipient public keys to their combined key slot.
//
// Payloads are immutable once built and are serialized either as JSON (human readable) or as CBOR (compact binary).
// Only same-format round trips are guaranteed.
package payload

import (
	"crypto/sha512"
)

// EncryptedPayload is the envelope shared between nodes. The recipient index is bookkeeping kept by the node that
// produced the payload and is absent on payloads received from elsewhere.
type EncryptedPayload struct {
	sender           SenderKey
	nonce            Nonce
	combinedKeyNonce CombinedKeyNonce
	combinedKeys     []CombinedKey
	cipherText       CipherText
	recipientIndex   map[RecipientKey]int
	indexed          bool
}

type options struct {
	recipientIndex map[RecipientKey]int
	indexed        bool
}

// Opt configures optional payload fields.
type Opt func(opts *options)

// WithRecipientIndex attaches a recipient index to the payload. A nil or empty map still marks the index as present.
func WithRecipientIndex(index map[RecipientKey]int) Opt {
	return func(opts *options) {
		opts.recipientIndex = make(map[RecipientKey]int, len(index))
		for k, slot := range index {
			opts.recipientIndex[k] = slot
		}

		opts.indexed = true
	}
}

// New builds an EncryptedPayload from fully formed parts. Construction is all or nothing: it fails with an
// IndexOutOfRange error when a recipient index slot does not address one of combinedKeys.
// Cryptographic consistency of the parts is not checked.
func New(sender SenderKey, nonce Nonce, combinedKeyNonce CombinedKeyNonce, combinedKeys []CombinedKey,
	cipherText CipherText, opts ...Opt) (*EncryptedPayload, error) {
	o := &options{}

	for _, opt := range opts {
		opt(o)
	}

	keys := make([]CombinedKey, len(combinedKeys))
	copy(keys, combinedKeys)

	for k, slot := range o.recipientIndex {
		if slot < 0 || slot >= len(keys) {
			return nil, errorf(IndexOutOfRange, "slot %d of recipient %s is outside [0, %d)", slot, k, len(keys))
		}
	}

	return &EncryptedPayload{
		sender:           sender,
		nonce:            nonce,
		combinedKeyNonce: combinedKeyNonce,
		combinedKeys:     keys,
		cipherText:       cipherText,
		recipientIndex:   o.recipientIndex,
		indexed:          o.indexed,
	}, nil
}

// Sender returns the public key of the party that encrypted the payload.
func (p *EncryptedPayload) Sender() SenderKey {
	return p.sender
}

// Nonce returns the cipher text nonce.
func (p *EncryptedPayload) Nonce() Nonce {
	return p.nonce
}

// CombinedKeyNonce returns the nonce used to seal the combined keys.
func (p *EncryptedPayload) CombinedKeyNonce() CombinedKeyNonce {
	return p.combinedKeyNonce
}

// CombinedKeys returns a copy of the combined keys, in slot order.
func (p *EncryptedPayload) CombinedKeys() []CombinedKey {
	keys := make([]CombinedKey, len(p.combinedKeys))
	copy(keys, p.combinedKeys)

	return keys
}

// CombinedKey returns the combined key stored in slot.
func (p *EncryptedPayload) CombinedKey(slot int) (CombinedKey, bool) {
	if slot < 0 || slot >= len(p.combinedKeys) {
		return CombinedKey{}, false
	}

	return p.combinedKeys[slot], true
}

// NumRecipients returns the number of combined keys.
func (p *EncryptedPayload) NumRecipients() int {
	return len(p.combinedKeys)
}

// CipherText returns the shared cipher text.
func (p *EncryptedPayload) CipherText() CipherText {
	return p.cipherText
}

// RecipientIndex returns a copy of the recipient index and whether the index is present.
func (p *EncryptedPayload) RecipientIndex() (map[RecipientKey]int, bool) {
	if !p.indexed {
		return nil, false
	}

	index := make(map[RecipientKey]int, len(p.recipientIndex))
	for k, slot := range p.recipientIndex {
		index[k] = slot
	}

	return index, true
}

// SlotFor returns the slot of recipient's combined key. The second result is false when the payload has no
// recipient index or when recipient is not in it; neither case is an error.
func (p *EncryptedPayload) SlotFor(recipient RecipientKey) (int, bool) {
	if !p.indexed {
		return 0, false
	}

	slot, ok := p.recipientIndex[recipient]

	return slot, ok
}

// StripFor returns the payload as delivered to a single recipient: the only combined key is the recipient's and
// there is no recipient index. It returns false when the recipient has no local slot.
func (p *EncryptedPayload) StripFor(recipient RecipientKey) (*EncryptedPayload, bool) {
	slot, ok := p.SlotFor(recipient)
	if !ok {
		return nil, false
	}

	return &EncryptedPayload{
		sender:           p.sender,
		nonce:            p.nonce,
		combinedKeyNonce: p.combinedKeyNonce,
		combinedKeys:     []CombinedKey{p.combinedKeys[slot]},
		cipherText:       p.cipherText,
	}, true
}

// WithoutRecipientIndex returns a copy of the payload without its recipient index.
func (p *EncryptedPayload) WithoutRecipientIndex() *EncryptedPayload {
	return &EncryptedPayload{
		sender:           p.sender,
		nonce:            p.nonce,
		combinedKeyNonce: p.combinedKeyNonce,
		combinedKeys:     p.CombinedKeys(),
		cipherText:       p.cipherText,
	}
}

// Digest returns the unpadded base64url SHA-512 of the cipher text. Every node holding a copy of the payload,
// stripped or not, computes the same digest.
func (p *EncryptedPayload) Digest() string {
	sum := sha512.Sum512([]byte(p.cipherText.raw))

	return encodeText(sum[:])
}

// Equal reports whether p and o hold the same fields. Presence of the recipient index is significant: a payload with
// an index never equals the same payload without one.
func (p *EncryptedPayload) Equal(o *EncryptedPayload) bool {
	if p == nil || o == nil {
		return p == o
	}

	if p.sender != o.sender || p.nonce != o.nonce || p.combinedKeyNonce != o.combinedKeyNonce ||
		p.cipherText != o.cipherText || p.indexed != o.indexed {
		return false
	}

	if len(p.combinedKeys) != len(o.combinedKeys) || len(p.recipientIndex) != len(o.recipientIndex) {
		return false
	}

	for i := range p.combinedKeys {
		if p.combinedKeys[i] != o.combinedKeys[i] {
			return false
		}
	}

	for k, slot := range p.recipientIndex {
		if other, ok := o.recipientIndex[k]; !ok || other != slot {
			return false
		}
	}

	return true
}
